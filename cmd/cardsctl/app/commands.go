// Package app holds the cardsctl commands.
package app

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/tenx-cards/internal/client"
)

type rootOptions struct {
	baseURL string
	token   string
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "cardsctl",
		Short:         "Generate and watch flashcard decks from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.baseURL, "api", envOr("TENX_API_URL", "http://localhost:8080"), "API base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("TENX_TOKEN"), "bearer token (or TENX_TOKEN)")

	root.AddCommand(newLoginCmd(opts))
	root.AddCommand(newGenerateCmd(opts))
	root.AddCommand(newWatchCmd(opts))
	return root
}

func (o *rootOptions) client() *client.Client {
	c := client.New(o.baseURL, o.token)
	c.HTTP.Timeout = 15 * time.Second
	return c
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
