package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"PriceFeatures/internal/di"
	"PriceFeatures/internal/usecase"
	"PriceFeatures/pkg/config"
	applogger "PriceFeatures/pkg/logger"
)

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"}

// loadConfig reads the config and moves logging off stdout, which carries
// command output.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.Log.Output == "" || cfg.Log.Output == "stdout" {
		cfg.Log.Output = "stderr"
	}
	return cfg, nil
}

// withToolkit loads the config named by --config, wires the enrichment
// service and runs fn with it.
func withToolkit(ctx context.Context, cmd *cli.Command, fn func(context.Context, *di.Toolkit) error) error {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	tk, cleanup, err := di.InitializeToolkit(cfg)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer cleanup()
	return fn(ctx, tk)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func backfillAction(ctx context.Context, cmd *cli.Command) error {
	opts := usecase.BackfillOptions{
		From:  cmd.Timestamp("from"),
		To:    cmd.Timestamp("to"),
		Limit: int(cmd.Int("limit")),
	}
	if !opts.From.IsZero() && !opts.To.IsZero() && opts.To.Before(opts.From) {
		return fmt.Errorf("--to must not be before --from")
	}
	return withToolkit(ctx, cmd, func(ctx context.Context, tk *di.Toolkit) error {
		res, err := tk.Service.Backfill(ctx, opts)
		if err != nil {
			return fmt.Errorf("backfill failed: %w", err)
		}
		return printJSON(res)
	})
}

func statsAction(ctx context.Context, cmd *cli.Command) error {
	return withToolkit(ctx, cmd, func(ctx context.Context, tk *di.Toolkit) error {
		stats, err := tk.Service.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(stats)
	})
}

func latestAction(ctx context.Context, cmd *cli.Command) error {
	return withToolkit(ctx, cmd, func(ctx context.Context, tk *di.Toolkit) error {
		rec, err := tk.Service.Latest(ctx)
		if err != nil {
			return err
		}
		return printJSON(rec)
	})
}

func cleanupAction(ctx context.Context, cmd *cli.Command) error {
	return withToolkit(ctx, cmd, func(ctx context.Context, tk *di.Toolkit) error {
		n, err := tk.Service.Cleanup(ctx)
		if err != nil {
			return err
		}
		tk.Log.Info("retention cleanup done", applogger.Int64("deleted", n))
		return nil
	})
}

// trainingAction writes one JSON row per line.
func trainingAction(ctx context.Context, cmd *cli.Command) error {
	return withToolkit(ctx, cmd, func(ctx context.Context, tk *di.Toolkit) error {
		rows, err := tk.Service.TrainingSet(ctx, cmd.Timestamp("from"), cmd.Timestamp("to"), cmd.Bool("partial"), int(cmd.Int("limit")))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
		tk.Log.Info("training set written", applogger.Int("rows", len(rows)))
		return nil
	})
}

func namesAction(ctx context.Context, cmd *cli.Command) error {
	return withToolkit(ctx, cmd, func(_ context.Context, tk *di.Toolkit) error {
		schema := tk.Service.Schema()
		return printJSON(map[string]interface{}{
			"version": schema.Version,
			"count":   schema.Len(),
			"names":   schema.Names(),
		})
	})
}

func rangeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.TimestampFlag{
			Name:   "from",
			Usage:  "Start minute, inclusive (`RFC3339` or YYYY-MM-DD)",
			Config: cli.TimestampConfig{Layouts: timeLayouts},
		},
		&cli.TimestampFlag{
			Name:   "to",
			Usage:  "End minute, inclusive (`RFC3339` or YYYY-MM-DD)",
			Config: cli.TimestampConfig{Layouts: timeLayouts},
		},
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Keep only the most recent N points, 0 for all",
		},
	}
}

func main() {
	trainingFlags := append(rangeFlags(), &cli.BoolFlag{
		Name:  "partial",
		Usage: "Include rows with missing features or targets",
	})

	cmd := &cli.Command{
		Name:  "enrich",
		Usage: "Run feature enrichment tasks against the configured stores",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the config file",
				Value:   "config/config.yaml",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "backfill",
				Usage:  "Enrich stored price history and persist the features",
				Flags:  rangeFlags(),
				Action: backfillAction,
			},
			{
				Name:   "training",
				Usage:  "Print feature rows joined with their targets as JSON lines",
				Flags:  trainingFlags,
				Action: trainingAction,
			},
			{
				Name:   "stats",
				Usage:  "Show enrichment statistics",
				Action: statsAction,
			},
			{
				Name:   "latest",
				Usage:  "Show the newest enriched record",
				Action: latestAction,
			},
			{
				Name:   "cleanup",
				Usage:  "Delete records older than the retention period",
				Action: cleanupAction,
			},
			{
				Name:   "names",
				Usage:  "List feature names in schema order",
				Action: namesAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
