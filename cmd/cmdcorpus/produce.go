package main

import (
	"github.com/spf13/cobra"

	"cmdcorpus/internal/corpuscore"
)

func newProduceCmd(load configLoader) *cobra.Command {
	var sel datasetSelection

	cmd := &cobra.Command{
		Use:   "produce [dataset...]",
		Short: "Parse source datasets and publish raw entries to Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			names, err := sel.names(cfg, args)
			if err != nil {
				return err
			}
			entries, err := sel.read(cfg, names)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			log.Info("Connecting to Kafka broker %s, topic %s", cfg.Kafka.Broker, cfg.Kafka.Topic)
			producer := corpuscore.NewProducer(corpuscore.NewKafkaWriter(cfg.Kafka.Broker, cfg.Kafka.Topic))
			defer producer.Close()

			total := 0
			for _, name := range names {
				n, err := producer.Publish(ctx, entries[name])
				total += n
				if err != nil {
					return err
				}
			}
			log.Info("✅ Producer finished: %d entries published", total)
			return nil
		},
	}

	sel.register(cmd)
	return cmd
}
