package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hollis-labs/ragline/internal/domain"
	"github.com/hollis-labs/ragline/internal/logger"
	"github.com/hollis-labs/ragline/internal/metrics"
	chiTransport "github.com/hollis-labs/ragline/internal/transport/chi"
	"github.com/hollis-labs/ragline/internal/version"
)

func main() {
	// Missing .env is fine; explicit env vars still apply.
	_ = godotenv.Load()

	var flags rootFlags

	rootCmd := &cobra.Command{
		Use:          "ragline",
		Short:        "ragline ingests documents and answers questions over them",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.env, "env", "", "config environment (default: ENV or local)")
	rootCmd.PersistentFlags().StringVar(&flags.embeddingProvider, "embedding-provider", "",
		"override embedding provider (openai, huggingface)")
	rootCmd.PersistentFlags().StringVar(&flags.llmProvider, "llm-provider", "",
		"override generation provider (openai, huggingface)")
	rootCmd.PersistentFlags().StringVar(&flags.chunkingStrategy, "chunking-strategy", "",
		"override chunking strategy (character, token)")

	rootCmd.AddCommand(
		newIngestCmd(&flags),
		newQueryCmd(&flags),
		newResumeCmd(&flags),
		newServeCmd(&flags),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	env               string
	embeddingProvider string
	llmProvider       string
	chunkingStrategy  string
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ragline %s (%s)\n", version.Version, version.Commit)
		},
	}
}

func newIngestCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <path>",
		Short: "ingest a document into the retrieval store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(flags)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := logger.ContextWithLogger(cmd.Context(), app.logger)
			res, err := app.pipeline.Ingest(ctx, args[0])
			if err != nil {
				if res.DocumentID != "" {
					app.logger.Warn("document stored without embeddings, run resume to finish",
						zap.String("document_id", res.DocumentID))
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "document %s: %d chunks, %d embeddings (job %s)\n",
				res.DocumentID, res.Chunks, res.Embeddings, res.JobID)
			return nil
		},
	}
}

func newQueryCmd(flags *rootFlags) *cobra.Command {
	var (
		source  string
		page    int
		pageMin float64
		pageMax float64
	)

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "answer a question over ingested documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(flags)
			if err != nil {
				return err
			}
			defer app.Close()

			var filters []domain.Filter
			if source != "" {
				filters = append(filters, domain.Eq("source_path", source))
			}
			if cmd.Flags().Changed("page") {
				filters = append(filters, domain.Eq(domain.MetaPageNumber, page))
			}
			if cmd.Flags().Changed("page-min") || cmd.Flags().Changed("page-max") {
				var min, max *float64
				if cmd.Flags().Changed("page-min") {
					min = &pageMin
				}
				if cmd.Flags().Changed("page-max") {
					max = &pageMax
				}
				filters = append(filters, domain.Between(domain.MetaPageNumber, min, max))
			}

			ctx := logger.ContextWithLogger(cmd.Context(), app.logger)
			answer, err := app.pipeline.Query(ctx, args[0], filters)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), answer.Text)
			for _, src := range answer.Sources {
				fmt.Fprintf(cmd.OutOrStdout(), "  [%.3f] chunk %s (document %s)\n",
					src.Score, src.ChunkID, src.DocumentID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "restrict to chunks from this source path")
	cmd.Flags().IntVar(&page, "page", 0, "restrict to chunks starting on this page")
	cmd.Flags().Float64Var(&pageMin, "page-min", 0, "restrict to pages >= this value")
	cmd.Flags().Float64Var(&pageMax, "page-max", 0, "restrict to pages <= this value")
	return cmd
}

func newResumeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <document-id>",
		Short: "embed the chunks of a document that are missing embeddings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(flags)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := logger.ContextWithLogger(cmd.Context(), app.logger)
			n, err := app.pipeline.Resume(ctx, args[0])
			if err != nil {
				return err
			}

			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "document is fully embedded")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "embedded %d chunks\n", n)
			}
			return nil
		},
	}
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp(flags)
			if err != nil {
				return err
			}
			defer app.Close()

			server := chiTransport.NewServer(app.pipeline, app.store, app.logger, app.health...)

			addr := fmt.Sprintf(":%d", app.cfg.HTTP.Port)
			srv := &http.Server{
				Addr:         addr,
				Handler:      server.Router(),
				ReadTimeout:  time.Duration(app.cfg.HTTP.ReadTimeoutSec) * time.Second,
				WriteTimeout: time.Duration(app.cfg.HTTP.WriteTimeoutSec) * time.Second,
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

			go func() {
				app.logger.Info("starting HTTP server", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					app.logger.Fatal("HTTP server error", zap.Error(err))
				}
			}()

			<-quit
			app.logger.Info("received shutdown signal")

			shutdownCtx, cancel := context.WithTimeout(context.Background(),
				time.Duration(app.cfg.HTTP.ShutdownSec)*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				app.logger.Error("error during shutdown", zap.Error(err))
			}
			app.logger.Info("server stopped gracefully")
			return nil
		},
	}
}

func init() {
	metrics.RegisterEmbeddingMetrics()
}
