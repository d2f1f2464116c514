package main

import (
	"context"
	"fmt"
	"os"

	"github.com/smukkama/solar-watch/internal/alerting"
	"github.com/smukkama/solar-watch/internal/app"
)

func main() {
	root := newRootCmd(openManager)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

// openManager connects to the configured store. Lifecycle events are
// published when Kafka is configured; no notifier is attached.
func openManager(ctx context.Context) (*alerting.Manager, func() error, error) {
	a, err := app.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	return a.Manager(nil), a.Close, nil
}
