package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/elastic/file-to-elasticsearch/internal/config"
	"github.com/elastic/file-to-elasticsearch/internal/indexer"
	"github.com/elastic/file-to-elasticsearch/internal/stats"
	"github.com/elastic/file-to-elasticsearch/internal/tail"
	"github.com/elastic/file-to-elasticsearch/internal/transform"
)

const defaultConfigPath = "/etc/file-to-elasticsearch.yaml"
const defaultBatchDir = "/var/spool/file-to-elasticsearch"

type cliFlags struct {
	configPath      string
	log4perlConfig  string
	statsInterval   float64
	debug           bool
}

func newRootCmd() *cobra.Command {
	flags := &cliFlags{}
	cmd := &cobra.Command{
		Use:   "tailindex",
		Short: "Tail log files and bulk-index their lines into Elasticsearch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(flags)
		},
	}
	pf := cmd.Flags()
	pf.StringVar(&flags.configPath, "config", defaultConfigPath, "path to the tail configuration YAML file")
	pf.StringVar(&flags.log4perlConfig, "log4perl-config", "", "path to a log4perl-style logging config (presence selects the verbose logging preset)")
	pf.Float64Var(&flags.statsInterval, "stats-interval", 0, "override the stats callback interval, in seconds (0 keeps the configured default)")
	pf.BoolVar(&flags.debug, "debug", false, "enable debug-level logging")
	return cmd
}

func newLogger(flags *cliFlags) (*zap.Logger, error) {
	if flags.debug || flags.log4perlConfig != "" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// run wires the Line Source, Transformer, and indexer session together
// for every tail instruction in the loaded configuration (spec §2's data
// flow, driven end-to-end by this CLI).
func run(flags *cliFlags) error {
	logger, err := newLogger(flags)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	raw, err := os.ReadFile(flags.configPath)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", flags.configPath, err)
	}
	file, err := config.Load(raw)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	idxCfg := config.FromFile(file, defaultBatchDir)
	if flags.statsInterval > 0 {
		idxCfg.StatsInterval = time.Duration(flags.statsInterval * float64(time.Second))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sess := indexer.New(idxCfg, sugar)

	instructions := make([]tail.Instruction, 0, len(file.Tail))
	pipelines := make(map[tail.FileID]*transform.Pipeline, len(file.Tail))
	for i, t := range file.Tail {
		id := tail.FileID(fmt.Sprintf("%s#%d", t.File, i))
		instructions = append(instructions, tail.Instruction{ID: id, Path: t.File, Interval: t.PollInterval()})
		pipelines[id] = transform.New(t, t.File)
	}

	_, events, err := tail.Start(ctx, instructions)
	if err != nil {
		return fmt.Errorf("starting tail sources: %w", err)
	}

	go sess.RunStatsTicker(ctx, idxCfg.StatsInterval, func(snapshot map[string]int64) {
		fmt.Println(stats.Render(snapshot))
	})

	for ev := range events {
		if ev.Err != nil {
			sugar.Warnw("tail error", "file_id", ev.FileID, "op", ev.Err.Op, "message", ev.Err.Message)
			sess.ReportTailError()
			continue
		}
		pipeline, ok := pipelines[ev.FileID]
		if !ok {
			continue
		}
		doc, ok := pipeline.Transform(ev.Line)
		if !ok {
			continue
		}
		sess.Enqueue(doc)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	sess.Close(shutdownCtx)
	return nil
}
