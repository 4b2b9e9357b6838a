package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bascanada/logmerge/internal/config"
	"github.com/bascanada/logmerge/internal/engine/entry"
	"github.com/bascanada/logmerge/internal/engine/parser"
	"github.com/bascanada/logmerge/internal/engine/session"
)

var (
	mergeDir             string
	mergeOutDir          string
	mergeBatchSize       int
	mergeChunkMaxLines   int
	mergeJumpThresholdMs int64
	mergeMinSuspectLines int
	mergeWarmupTarget    int
	mergeParserTemplate  string
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Run one merge session against a directory of rotated log files",
	RunE:  runMerge,
}

func init() {
	mergeCmd.Flags().StringVar(&mergeDir, "dir", "", "input directory of rotated log files")
	mergeCmd.Flags().StringVar(&mergeOutDir, "out", "", "output directory for chunks and manifest")
	mergeCmd.Flags().IntVar(&mergeBatchSize, "batch-size", 0, "onBatch delivery size (0 = engine default)")
	mergeCmd.Flags().IntVar(&mergeChunkMaxLines, "chunk-max-lines", 0, "lines per chunk file (0 = engine default)")
	mergeCmd.Flags().Int64Var(&mergeJumpThresholdMs, "jump-threshold-ms", 0, "timezone corrector jump threshold (0 = engine default)")
	mergeCmd.Flags().IntVar(&mergeMinSuspectLines, "min-suspect-lines", 0, "timezone corrector confirmation run length (0 = engine default)")
	mergeCmd.Flags().IntVar(&mergeWarmupTarget, "warmup", 0, "deliver a warm-up prefix of this many lines before staging (0 disables)")
	mergeCmd.Flags().StringVar(&mergeParserTemplate, "parser-template", "", "parser template JSON file")
}

func runMerge(cmd *cobra.Command, args []string) error {
	cfg, err := resolveMergeConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitInvalidConfig)
		return nil
	}

	var rules *parser.RuleSet
	if cfg.ParserTemplatePath != "" {
		rules, err = loadParserTemplate(cfg.ParserTemplatePath)
		if err != nil {
			appLogger.Error("invalid parser template", "err", err)
			os.Exit(ExitInvalidConfig)
			return nil
		}
	}

	var sessionOpts *session.WarmupOptions
	if cfg.Warmup != nil && cfg.Warmup.Target > 0 {
		sessionOpts = &session.WarmupOptions{Target: cfg.Warmup.Target, PerTypeLimit: cfg.Warmup.PerTypeLimit}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	o := session.New(session.Config{
		Dir:             cfg.Dir,
		OutDir:          cfg.OutDir,
		BatchSize:       cfg.BatchSize,
		ChunkMaxLines:   cfg.ChunkMaxLines,
		Rules:           rules,
		JumpThresholdMs: cfg.JumpThresholdMs,
		MinSuspectLines: cfg.MinSuspectLines,
		Warmup:          sessionOpts,
		OnProgress: func(inc, done, total int) {
			appLogger.Info("merge progress", "inc", inc, "done", done)
		},
		OnWarmupBatch: func(batch []entry.LogEntry) {
			appLogger.Info("warm-up delivered", "lines", len(batch))
		},
		OnSaved: func(info session.SavedInfo) {
			fmt.Printf("merged %d lines into %d chunk(s) at %s\n", info.Merged, info.ChunkCount, info.ManifestPath)
		},
		OnError: func(err error) {
			appLogger.Error("merge failed", "err", err)
		},
	})

	go func() {
		<-ctx.Done()
		o.Cancel()
	}()

	state, err := o.Start(ctx)
	switch state {
	case session.StateDone:
		os.Exit(ExitSuccess)
	case session.StateCanceled:
		os.Exit(ExitCanceled)
	default:
		if err != nil {
			appLogger.Error("merge session failed", "err", err)
		}
		os.Exit(ExitIOFailure)
	}
	return nil
}

func resolveMergeConfig() (*config.SessionConfig, error) {
	if sessionConfigPath != "" {
		path, err := config.ResolveConfigPath(sessionConfigPath)
		if err != nil {
			return nil, err
		}
		return config.Load(path)
	}
	cfg := &config.SessionConfig{
		Dir:                mergeDir,
		OutDir:             mergeOutDir,
		BatchSize:          mergeBatchSize,
		ChunkMaxLines:      mergeChunkMaxLines,
		JumpThresholdMs:    mergeJumpThresholdMs,
		MinSuspectLines:    mergeMinSuspectLines,
		ParserTemplatePath: mergeParserTemplate,
	}
	if mergeWarmupTarget > 0 {
		cfg.Warmup = &config.WarmupConfig{Target: mergeWarmupTarget}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadParserTemplate(path string) (*parser.RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tmpl, err := parser.LoadTemplate(data)
	if err != nil {
		return nil, err
	}
	return parser.CompileRuleSet(tmpl)
}
