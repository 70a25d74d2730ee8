package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/suPer8Hu/tenx-cards/cmd/cardsctl/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
