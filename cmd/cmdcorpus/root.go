package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"cmdcorpus/internal/classify"
	"cmdcorpus/internal/config"
	"cmdcorpus/internal/corpuscore"
	"cmdcorpus/internal/logger"
)

var (
	version = "dev"
	log     = logger.New("cmdcorpus")
)

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:          "cmdcorpus",
		Short:        "Builds a classified corpus of offensive commands and scripts.",
		Version:      version,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Configuration file path (default is ./cmdcorpus.yaml or $HOME/.config/cmdcorpus/cmdcorpus.yaml)")
	pf.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	pf.Bool("no-color", false, "Disable colored log output")
	pf.String("db-path", "", "Bolt database path")
	pf.String("index-path", "", "Bleve index path")
	pf.String("output-dir", "", "Directory for exported datasets")
	pf.Bool("compress", false, "Write exported datasets as zstd-compressed JSON")
	pf.Int("batch-size", 100, "Index batch size")
	pf.Int("cache-size", 4096, "Verdict cache entries (0 disables)")
	pf.StringSlice("enable-rulesets", nil, "Enable reserved rule sets (e.g. sql,javascript)")

	load := func(cmd *cobra.Command) (*config.Config, error) {
		return config.Load(cfgFile, cmd.Flags())
	}

	root.AddCommand(
		newClassifyCmd(load),
		newIngestCmd(load),
		newProduceCmd(load),
		newConsumeCmd(load),
		newIndexCmd(load),
		newServeCmd(load),
		newMergeCmd(load),
		newStatsCmd(load),
	)
	return root
}

type configLoader func(cmd *cobra.Command) (*config.Config, error)

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// newClassifier applies the enabled rule sets from cfg to the embedded table.
func newClassifier(cfg *config.Config) (*classify.Classifier, error) {
	if len(cfg.EnableRuleSets) == 0 {
		return classify.Default(), nil
	}
	rules, err := classify.DefaultRules().WithEnabled(cfg.EnableRuleSets...)
	if err != nil {
		return nil, err
	}
	return classify.New(rules), nil
}

// techniqueTable prefers the technique CSV and falls back to the ATT&CK
// bundle. Neither being available is not fatal.
func techniqueTable(cfg *config.Config) corpuscore.TechniqueTable {
	if cfg.TechniqueCSV != "" {
		table, err := corpuscore.LoadTechniqueCSV(cfg.TechniqueCSV)
		if err == nil {
			return table
		}
		log.Warn("⚠️  Could not load technique CSV: %v", err)
	}
	if cfg.MitrePath != "" {
		techniques, err := corpuscore.LoadMITREData(cfg.MitrePath)
		if err == nil {
			return corpuscore.TechniqueTableFromAttack(techniques)
		}
		log.Warn("⚠️  Could not load MITRE data: %v", err)
	}
	return nil
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}
