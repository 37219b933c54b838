package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/terralab/landcover-cli/internal/classify"
	"github.com/terralab/landcover-cli/internal/model"
	"github.com/terralab/landcover-cli/internal/resilience"
	"github.com/terralab/landcover-cli/internal/store"
)

var servePort int

// jobRunner runs one classification job end to end.
type jobRunner interface {
	Run(ctx context.Context, job model.Job) (*model.Result, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for classification requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		mux := newServeMux(classify.New(cfg), st)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newServeMux builds the server routes. Classification runs synchronously so
// the caller gets the result or failure in the response body.
func newServeMux(pipe jobRunner, st store.Store) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /classify", func(w http.ResponseWriter, r *http.Request) {
		var job model.Job
		if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		var runID string
		if run, err := st.CreateRun(r.Context(), job); err != nil {
			zap.L().Warn("recording run failed", zap.Error(err))
		} else {
			runID = run.ID
		}

		result, err := pipe.Run(r.Context(), job)
		w.Header().Set("Content-Type", "application/json")

		if err != nil {
			// The pipeline never retries, so a transient marker means nothing
			// in the final record.
			final := resilience.Permanent(err)
			if runID != "" {
				if ferr := st.FailRun(r.Context(), runID, final.Error()); ferr != nil {
					zap.L().Warn("recording run failure failed", zap.Error(ferr))
				}
			}
			zap.L().Error("classification failed",
				zap.String("item", job.STACItemURL),
				zap.Error(final),
			)
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(model.ErrorRecord{
				Error:     final.Error(),
				Traceback: eris.ToString(final, true),
			})
			return
		}

		if runID != "" {
			if cerr := st.CompleteRun(r.Context(), runID, result); cerr != nil {
				zap.L().Warn("recording run result failed", zap.Error(cerr))
			}
		}
		zap.L().Info("classification complete",
			zap.String("item", job.STACItemURL),
			zap.Float64("accuracy", result.TrainingAccuracy),
		)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(result)
	})

	return mux
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
