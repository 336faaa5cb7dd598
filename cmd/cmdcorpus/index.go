package main

import (
	"github.com/spf13/cobra"

	"cmdcorpus/internal/corpuscore"
)

func newIndexCmd(load configLoader) *cobra.Command {
	var dataset string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the search index from the record store",
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

			records, err := store.ListRecords("", dataset, 0)
			if err != nil {
				return err
			}
			log.Info("📄 Loaded %d records from %s", len(records), cfg.DBPath)

			if err := ensureParentDir(cfg.IndexPath); err != nil {
				return err
			}
			indexer, err := corpuscore.OpenIndexer(cfg.IndexPath, cfg.BatchSize)
			if err != nil {
				return err
			}
			defer indexer.Close()

			if err := indexer.SaveRecords(records); err != nil {
				return err
			}
			count, err := indexer.DocCount()
			if err != nil {
				return err
			}
			log.Info("✅ Index %s holds %d documents", cfg.IndexPath, count)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "Only index records from this dataset")
	return cmd
}
