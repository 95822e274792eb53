package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap/zapcore"

	"github.com/simfolio-lab/simfolio/internal/backtest/engine"
	enginev1 "github.com/simfolio-lab/simfolio/internal/backtest/engine/engine_v1"
	"github.com/simfolio-lab/simfolio/internal/bundle"
	"github.com/simfolio-lab/simfolio/internal/logger"
	"github.com/simfolio-lab/simfolio/internal/runtime"
	"github.com/simfolio-lab/simfolio/internal/types"
	"github.com/simfolio-lab/simfolio/internal/version"
	"github.com/simfolio-lab/simfolio/pkg/marketdata"
)

// strategies built into the binary, by name.
var builtinStrategies = map[string]func() runtime.Strategy{
	"buy_and_hold": func() runtime.Strategy { return NewBuyAndHoldStrategy() },
	"ma_cross":     func() runtime.Strategy { return NewMACrossStrategy() },
}

// newLogger builds the command logger, at debug level when --verbose is
// set.
func newLogger(cmd *cli.Command) (*logger.Logger, error) {
	level := zapcore.InfoLevel
	if cmd.Bool("verbose") {
		level = zapcore.DebugLevel
	}

	return logger.NewLoggerWithLevel(level)
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	configData, err := os.ReadFile(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := bundle.NewStore(cmd.String("data"), log)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Initialize(); err != nil {
		return err
	}

	handle, err := store.Load(cmd.String("bundle"), cmd.String("bundle-version"))
	if err != nil {
		return err
	}

	newStrategy, ok := builtinStrategies[cmd.String("strategy")]
	if !ok {
		return fmt.Errorf("unknown strategy %q", cmd.String("strategy"))
	}

	backtester := enginev1.NewSimulationEngineV1()
	if err := backtester.Initialize(string(configData)); err != nil {
		return err
	}

	if err := backtester.SetBundles([]*bundle.Bundle{handle}); err != nil {
		return err
	}

	if folder := cmd.String("results"); folder != "" {
		if err := backtester.SetResultsFolder(folder); err != nil {
			return err
		}
	}

	if err := backtester.LoadStrategy(newStrategy()); err != nil {
		return err
	}

	var bar *progressbar.ProgressBar

	onStart := engine.OnRunStartCallback(func(runID string, totalTicks int) error {
		bar = progressbar.NewOptions(totalTicks,
			progressbar.OptionSetDescription(fmt.Sprintf("Run %s", runID[:8])),
			progressbar.OptionShowCount(),
		)

		return nil
	})

	onTick := engine.OnProcessTickCallback(func(current int, total int) error {
		//nolint:errcheck // progress rendering is best effort
		bar.Set(current)

		return nil
	})

	result, err := backtester.Run(ctx, engine.LifecycleCallbacks{
		OnRunStart:    &onStart,
		OnProcessTick: &onTick,
	})
	if result != nil {
		fmt.Printf("\nrun %s: %d snapshots, %d errors, ending NAV %.2f\n",
			result.RunID, len(result.Snapshots), len(result.Errors), result.Stats.EndingNAV)
	}

	return err
}

func ingestAction(ctx context.Context, cmd *cli.Command) error {
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	frequency, err := types.ParseFrequency(cmd.String("frequency"))
	if err != nil {
		return err
	}

	store, err := bundle.NewStore(cmd.String("data"), log)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Initialize(); err != nil {
		return err
	}

	source, err := marketdata.NewPolygonSource(os.Getenv("POLYGON_API_KEY"), log)
	if err != nil {
		return err
	}

	ingestor := marketdata.NewIngestor(source, store, int(cmd.Int("workers")), log)

	symbols := strings.Split(cmd.String("symbols"), ",")
	for i := range symbols {
		symbols[i] = strings.TrimSpace(symbols[i])
	}

	version, err := ingestor.Ingest(
		ctx, cmd.String("bundle"), symbols,
		cmd.Timestamp("start"), cmd.Timestamp("end"),
		frequency, cmd.String("calendar"),
	)
	if err != nil {
		return err
	}

	fmt.Printf("ingested bundle %s version %s\n", cmd.String("bundle"), version)

	return nil
}

func versionsAction(ctx context.Context, cmd *cli.Command) error {
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := bundle.NewStore(cmd.String("data"), log)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Initialize(); err != nil {
		return err
	}

	versions, err := store.Versions(cmd.String("bundle"))
	if err != nil {
		return err
	}

	for _, version := range versions {
		fmt.Println(version)
	}

	return nil
}

func schemaAction(ctx context.Context, cmd *cli.Command) error {
	backtester := enginev1.NewSimulationEngineV1()

	schema, err := backtester.GetConfigSchema()
	if err != nil {
		return err
	}

	fmt.Println(schema)

	return nil
}

func main() {
	dataFlag := &cli.StringFlag{
		Name:    "data",
		Aliases: []string{"d"},
		Usage:   "Path to the bundle database",
		Value:   "data/bundles.duckdb",
	}

	bundleFlag := &cli.StringFlag{
		Name:     "bundle",
		Aliases:  []string{"b"},
		Usage:    "Bundle name",
		Required: true,
	}

	cmd := &cli.Command{
		Name:    "simfolio",
		Usage:   "Event-driven portfolio simulation",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run a strategy over an ingested bundle",
				Flags: []cli.Flag{
					dataFlag,
					bundleFlag,
					&cli.StringFlag{
						Name:  "bundle-version",
						Usage: "Bundle version to run against",
						Value: bundle.VersionLatest,
					},
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "Path to the simulation config YAML",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "strategy",
						Aliases:  []string{"s"},
						Usage:    "Built-in strategy name",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "results",
						Aliases: []string{"r"},
						Usage:   "Results output folder",
					},
				},
				Action: runAction,
			},
			{
				Name:  "ingest",
				Usage: "Fetch bars from a provider and save them as a bundle version",
				Flags: []cli.Flag{
					dataFlag,
					bundleFlag,
					&cli.StringFlag{
						Name:     "symbols",
						Usage:    "Comma-separated symbols to ingest",
						Required: true,
					},
					&cli.TimestampFlag{
						Name:     "start",
						Usage:    "Start date in `YYYY-MM-DD` format",
						Required: true,
						Config: cli.TimestampConfig{
							Layouts: []string{"2006-01-02"},
						},
					},
					&cli.TimestampFlag{
						Name:  "end",
						Usage: "End date in `YYYY-MM-DD` format. Defaults to today.",
						Value: time.Now(),
						Config: cli.TimestampConfig{
							Layouts: []string{"2006-01-02"},
						},
					},
					&cli.StringFlag{
						Name:  "frequency",
						Usage: "Native bar frequency to ingest",
						Value: "1d",
					},
					&cli.StringFlag{
						Name:  "calendar",
						Usage: "Trading calendar of the bundle",
						Value: "weekday",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent fetch workers (0 = one per CPU)",
					},
				},
				Action: ingestAction,
			},
			{
				Name:   "versions",
				Usage:  "List saved versions of a bundle",
				Flags:  []cli.Flag{dataFlag, bundleFlag},
				Action: versionsAction,
			},
			{
				Name:   "schema",
				Usage:  "Print the JSON schema of the simulation config",
				Action: schemaAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
