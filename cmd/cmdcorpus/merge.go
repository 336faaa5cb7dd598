package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"cmdcorpus/internal/corpuscore"
)

func newMergeCmd(load configLoader) *cobra.Command {
	var (
		pattern string
		out     string
	)

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge exported datasets into one file with IDs renumbered from 1",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			if out == "" {
				out = filepath.Join(cfg.OutputDir, "merged.json")
				if cfg.Compress {
					out += ".zst"
				}
			}
			if err := ensureParentDir(out); err != nil {
				return err
			}

			n, err := corpuscore.MergeDir(cfg.OutputDir, pattern, out, cfg.Compress)
			if err != nil {
				return err
			}
			log.Info("✅ Merged %d records into %s", n, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&pattern, "pattern", "*.json*", "Glob selecting the dataset files to merge")
	cmd.Flags().StringVar(&out, "out", "", "Merged output file (default <output-dir>/merged.json)")
	return cmd
}
