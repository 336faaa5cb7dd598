package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"cmdcorpus/internal/corpuscore"
)

func newServeCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search and classify HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			classifier, err := newClassifier(cfg)
			if err != nil {
				return err
			}

			if err := ensureParentDir(cfg.IndexPath); err != nil {
				return err
			}
			indexer, err := corpuscore.OpenIndexer(cfg.IndexPath, cfg.BatchSize)
			if err != nil {
				return err
			}
			defer indexer.Close()

			srv := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           corpuscore.NewAPIHandler(indexer, classifier),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info("Search server listening on %s", cfg.ListenAddr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			log.Info("Shutting down search server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().String("listen-addr", "", "HTTP listen address (default :8080)")
	return cmd
}
