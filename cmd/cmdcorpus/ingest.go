package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"cmdcorpus/internal/config"
	"cmdcorpus/internal/corpuscore"
)

// datasetSelection is shared by ingest and produce.
type datasetSelection struct {
	all  bool
	path string
}

func (ds *datasetSelection) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&ds.all, "all", false, "Process every configured dataset")
	cmd.Flags().StringVar(&ds.path, "path", "", "Override the dataset location (single dataset only)")
}

func (ds *datasetSelection) names(cfg *config.Config, args []string) ([]string, error) {
	names := args
	if ds.all {
		names = cfg.DatasetNames()
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no dataset given (known: %v)", cfg.DatasetNames())
	}
	if ds.path != "" && len(names) > 1 {
		return nil, fmt.Errorf("--path needs exactly one dataset")
	}
	return names, nil
}

// read parses every selected dataset. A dataset that fails to parse aborts
// the run.
func (ds *datasetSelection) read(cfg *config.Config, names []string) (map[string][]corpuscore.RawEntry, error) {
	var techniques corpuscore.TechniqueTable
	if slices.Contains(names, config.DatasetMetta) {
		techniques = techniqueTable(cfg)
	}
	ingester := corpuscore.NewDataIngester(techniques)

	out := make(map[string][]corpuscore.RawEntry, len(names))
	for _, name := range names {
		path := ds.path
		if path == "" {
			p, err := cfg.DatasetPath(name)
			if err != nil {
				return nil, err
			}
			path = p
		}
		entries, err := ingester.Ingest(name, path)
		if err != nil {
			return nil, fmt.Errorf("failed to ingest %s: %w", name, err)
		}
		out[name] = entries
	}
	return out, nil
}

func newIngestCmd(load configLoader) *cobra.Command {
	var (
		sel   datasetSelection
		index bool
	)

	cmd := &cobra.Command{
		Use:   "ingest [dataset...]",
		Short: "Parse, classify and store source datasets",
		Long: `Ingest reads each named dataset, classifies every entry, stores the
records in the bolt database and writes one JSON file per dataset to the
output directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			names, err := sel.names(cfg, args)
			if err != nil {
				return err
			}
			classifier, err := newClassifier(cfg)
			if err != nil {
				return err
			}

			if err := ensureParentDir(cfg.DBPath); err != nil {
				return err
			}
			store, err := corpuscore.OpenStore(cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			var indexer *corpuscore.Indexer
			if index {
				if err := ensureParentDir(cfg.IndexPath); err != nil {
					return err
				}
				indexer, err = corpuscore.OpenIndexer(cfg.IndexPath, cfg.BatchSize)
				if err != nil {
					return err
				}
				defer indexer.Close()
			}

			builder, err := corpuscore.NewRecordBuilder(classifier, store, cfg.CacheSize)
			if err != nil {
				return err
			}

			entries, err := sel.read(cfg, names)
			if err != nil {
				return err
			}

			for _, name := range names {
				records, skipped := builder.BuildAll(entries[name])
				if err := store.SaveRecords(records); err != nil {
					return fmt.Errorf("failed to store %s records: %w", name, err)
				}
				path, err := corpuscore.WriteDataset(cfg.OutputDir, name, records, cfg.Compress)
				if err != nil {
					return err
				}
				if indexer != nil {
					if err := indexer.SaveRecords(records); err != nil {
						return err
					}
				}
				log.Info("✅ %s: %d records (%d skipped) written to %s", name, len(records), skipped, path)
			}
			return nil
		},
	}

	sel.register(cmd)
	cmd.Flags().BoolVar(&index, "index", false, "Also add the new records to the search index")
	return cmd
}
