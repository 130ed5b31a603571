package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"probewatch/internal/core/services"
	"probewatch/internal/infrastructure/atlas"
	"probewatch/internal/infrastructure/sink"
	"probewatch/pkg/config"
	"probewatch/pkg/logger"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type replayOptions struct {
	seed bool
}

func replayCmd() *cobra.Command {
	opts := replayOptions{}

	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Feed a capture of stream frames through the engine and print alerts",
		Long: heredoc.Doc(`
			Reads one stream frame per line, for example
			["atlas_probestatus", {"prb_id": 1001, "event": "disconnect", "timestamp": 1700000000, "probe": {"asn_v4": 3333}}]
			and writes every alert raised as a JSON line to stdout. Use "-" to read stdin.
		`),
		Example: heredoc.Doc(`
			$ probewatch replay ./capture.jsonl
			$ probewatch replay --seed ./capture.jsonl
			$ cat capture.jsonl | probewatch replay -
		`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			in, closeIn, err := openCapture(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer closeIn()

			zapLogger, err := logger.NewWithConfig(loggerConfig(cfg))
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer zapLogger.Sync()

			return runReplay(cmd.Context(), cfg, opts, in, cmd.OutOrStdout(), zapLogger.Sugar())
		},
	}

	cmd.Flags().BoolVar(&opts.seed, "seed", false, "Seed the tracker from the Atlas probe inventory before replaying")
	return cmd
}

func openCapture(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open capture: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// runReplay routes every frame of in through a fresh engine. Malformed lines
// are logged and skipped. Measurement intervals are not looked up.
func runReplay(ctx context.Context, cfg *config.Config, opts replayOptions, in io.Reader, out io.Writer, log *zap.SugaredLogger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	engine := services.NewEngine(engineConfig(cfg), services.RealClock{}, sink.NewWriterSink(out), nil, log.Named("engine"))
	engine.Start(ctx)

	if opts.seed {
		client := atlas.NewClient(clientConfig(cfg), nil, log.Named("atlas"))
		records, err := client.FetchInventory(ctx)
		client.Close()
		if err != nil {
			engine.Stop(ctx)
			return fmt.Errorf("failed to fetch inventory: %w", err)
		}
		if err := engine.Seed(ctx, records); err != nil {
			engine.Stop(ctx)
			return fmt.Errorf("failed to seed tracker: %w", err)
		}
	}

	router := atlas.NewFrameRouter(engine, nil, log.Named("replay"))

	maxLine := int(cfg.Stream.MaxMessageSizeBytes)
	if maxLine <= 0 {
		maxLine = 1 << 20
	}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	lineNo, routed, skipped := 0, 0, 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := router.Route(ctx, line); err != nil {
			if errors.Is(err, atlas.ErrMalformedFrame) {
				skipped++
				log.Warnw("skipping malformed frame", "line", lineNo, "error", err)
				continue
			}
			engine.Stop(ctx)
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		routed++
	}
	scanErr := scanner.Err()

	if err := engine.Stop(ctx); err != nil {
		return fmt.Errorf("failed to drain engine: %w", err)
	}
	if scanErr != nil {
		return fmt.Errorf("failed to read capture: %w", scanErr)
	}

	log.Infow("replay finished", "frames", routed, "skipped", skipped)
	return nil
}
