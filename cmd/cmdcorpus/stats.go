package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"cmdcorpus/internal/corpuscore"
)

type statsOutput struct {
	*corpuscore.CorpusStats
	Datasets []corpuscore.DatasetInfo `json:"datasets"`
}

func newStatsCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print corpus statistics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}

			store, err := corpuscore.OpenStore(cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.GetStats()
			if err != nil {
				return err
			}
			datasets, err := store.Datasets()
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(statsOutput{CorpusStats: stats, Datasets: datasets})
		},
	}
}
