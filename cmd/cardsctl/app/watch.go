package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/suPer8Hu/tenx-cards/internal/generation"
	"github.com/suPer8Hu/tenx-cards/internal/poller"
)

type watchOptions struct {
	interval time.Duration
	timeout  time.Duration
}

func (w *watchOptions) bind(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&w.interval, "interval", 2*time.Second, "poll interval")
	cmd.Flags().DurationVar(&w.timeout, "timeout", 5*time.Minute, "give up after this long")
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var wopts watchOptions
	cmd := &cobra.Command{
		Use:   "watch <session-id>",
		Short: "Poll a generation session until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid session id %q", args[0])
			}
			return watch(cmd.Context(), cmd.OutOrStdout(), opts.client(), id, wopts)
		},
	}
	wopts.bind(cmd)
	return cmd
}

func watch(ctx context.Context, out io.Writer, f poller.Fetcher, id uuid.UUID, o watchOptions) error {
	p := poller.New(f)
	p.Interval = o.interval
	p.Timeout = o.timeout

	var (
		last generation.Status
		deck uuid.UUID
	)
	for u := range p.Observe(ctx, id) {
		if u.Err != nil {
			return describe(u.Err)
		}
		st := u.Status
		// repeat lines only when the state changes
		if st.State == last {
			continue
		}
		last, deck = st.State, st.DeckID
		fmt.Fprintf(out, "[%s] %s\n", st.State, st.Message)
		if st.ErrorCode != nil {
			msg := ""
			if st.ErrorMessage != nil {
				msg = *st.ErrorMessage
			}
			fmt.Fprintf(out, "  %s: %s\n", *st.ErrorCode, msg)
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	switch last {
	case generation.StatusCompleted:
		fmt.Fprintf(out, "deck %s is ready for review\n", deck)
	case generation.StatusFailed, generation.StatusTimeout:
		return fmt.Errorf("generation %s ended as %s", id, last)
	}
	return nil
}
