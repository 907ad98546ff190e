package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/deltastream-lab/tradesim/internal/config"
	"github.com/deltastream-lab/tradesim/internal/engine"
	"github.com/deltastream-lab/tradesim/internal/logger"
	"github.com/deltastream-lab/tradesim/internal/version"
)

// serveAction loads the configuration, assembles the engine, and serves
// until interrupted.
func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	appLogger, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() {
		_ = appLogger.Sync()
	}()

	eng, err := engine.New(cfg, appLogger)
	if err != nil {
		return err
	}

	// Stop gracefully on Ctrl-C or SIGTERM.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, stopping...")
		cancel()
	}()

	return eng.Run(ctx)
}

func main() {
	cmd := &cli.Command{
		Name:    "tradesim-server",
		Usage:   "Run the simulated trading backend",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the YAML configuration file; defaults and environment apply without one",
				Required: false,
			},
		},
		Action: serveAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
