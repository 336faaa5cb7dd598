package main

import (
	"github.com/spf13/cobra"

	"cmdcorpus/internal/corpuscore"
)

func newConsumeCmd(load configLoader) *cobra.Command {
	var noIndex bool

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Classify raw entries from Kafka into the store and index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
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

			sinks := []corpuscore.RecordSink{store}
			if !noIndex {
				if err := ensureParentDir(cfg.IndexPath); err != nil {
					return err
				}
				indexer, err := corpuscore.OpenIndexer(cfg.IndexPath, cfg.BatchSize)
				if err != nil {
					return err
				}
				defer indexer.Close()
				sinks = append(sinks, indexer)
			}

			builder, err := corpuscore.NewRecordBuilder(classifier, store, cfg.CacheSize)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			log.Info("Connecting to Kafka broker %s, topic %s, group %s", cfg.Kafka.Broker, cfg.Kafka.Topic, cfg.Kafka.GroupID)
			consumer := corpuscore.NewConsumer(
				corpuscore.NewKafkaReader(cfg.Kafka.Broker, cfg.Kafka.Topic, cfg.Kafka.GroupID),
				builder,
				sinks...,
			)
			defer consumer.Close()

			return consumer.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&noIndex, "no-index", false, "Store records without indexing them")
	return cmd
}
