package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/deltastream-lab/tradesim/internal/config"
	"github.com/deltastream-lab/tradesim/internal/engine"
	"github.com/deltastream-lab/tradesim/internal/logger"
	"github.com/deltastream-lab/tradesim/internal/version"
)

// rebuildAction replays the persisted trade log into a fresh ledger and
// writes the reconstructed positions and portfolios back to the store.
func rebuildAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	// Replay is an offline pass over the trade log; nothing is published
	// and the engine never serves.
	cfg.Events.NATSURL = ""
	cfg.Database.ReplayOnStart = false

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
	defer eng.Close()

	count, err := eng.Rebuild()
	if err != nil {
		return err
	}

	source := cfg.Database.Path
	if source == "" {
		source = "in-memory database"
	}

	log.Printf("Replayed %d trades from %s", count, source)

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "tradesim-replay",
		Usage:   "Rebuild positions and portfolios from the persisted trade log",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the YAML configuration file pointing at the database to replay",
				Required: false,
			},
		},
		Action: rebuildAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
