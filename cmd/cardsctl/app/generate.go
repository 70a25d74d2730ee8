package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/tenx-cards/internal/poller"
)

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var (
		file     string
		deckName string
		noWatch  bool
		wopts    watchOptions
	)
	cmd := &cobra.Command{
		Use:   "generate [text]",
		Short: "Submit source text for generation and watch the session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readSource(cmd.InOrStdin(), file, args)
			if err != nil {
				return err
			}
			var name *string
			if cmd.Flags().Changed("deck-name") {
				name = &deckName
			}

			c := opts.client()
			res, err := c.SubmitGeneration(cmd.Context(), text, name)
			if err != nil {
				return describe(err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "session %s started for deck %q (%s)\n", res.SessionID, res.DeckName, res.DeckID)
			if noWatch {
				return nil
			}
			return watch(cmd.Context(), out, c, res.SessionID, wopts)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read source text from file (- for stdin)")
	cmd.Flags().StringVar(&deckName, "deck-name", "", "name for the new deck")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "return right after submitting")
	wopts.bind(cmd)
	return cmd
}

func readSource(stdin io.Reader, file string, args []string) (string, error) {
	switch {
	case file == "-":
		b, err := io.ReadAll(stdin)
		return string(b), err
	case file != "":
		b, err := os.ReadFile(file)
		return string(b), err
	case len(args) == 1:
		return args[0], nil
	}
	return "", errors.New("provide source text as an argument or with --file")
}

// describe prefixes API errors with their display category.
func describe(err error) error {
	k := poller.ErrorKind(err)
	if k == "" {
		return err
	}
	hint := ""
	if !poller.Retryable(k) {
		hint = " (wait for the running generation to finish)"
	}
	return fmt.Errorf("%s: %s%s", k, strings.TrimSpace(err.Error()), hint)
}
