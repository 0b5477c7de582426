package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/retail-lens/wb-crawler/internal/report"
	"github.com/retail-lens/wb-crawler/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve run history, metrics and a crawl trigger over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		env, err := initCrawlEnv()
		if err != nil {
			return err
		}

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type"},
		}))

		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Handle("/metrics", promhttp.HandlerFor(env.Metrics.Registry, promhttp.HandlerOpts{}))

		r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
			runs, err := st.ListRuns(req.Context(), 50)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, runs)
		})

		r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
			run, err := st.GetRun(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
				return
			}
			stats, err := st.ListCatalogStats(req.Context(), run.ID)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"run": run, "catalogs": stats})
		})

		var crawling atomic.Bool
		r.Post("/crawl", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Mode string `json:"mode"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if body.Mode == "" {
				body.Mode = "catalogs"
			}

			if !crawling.CompareAndSwap(false, true) {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "a crawl is already running"})
				return
			}

			// Runs on the server context, not the request context, so the
			// crawl survives the HTTP response.
			go func() {
				defer crawling.Store(false)
				runCrawl(ctx, env, st, body.Mode)
			}()

			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "mode": body.Mode})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background()) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// runCrawl is the async crawl body behind POST /crawl.
func runCrawl(ctx context.Context, env *crawlEnv, st store.Store, mode string) {
	catalogs, err := loadTargets(ctx, mode)
	if err != nil {
		zap.L().Error("triggered crawl failed to load targets", zap.String("mode", mode), zap.Error(err))
		return
	}

	writer, err := report.NewWriter(cfg.Report.Dir, cfg.Report.FilePrefix)
	if err != nil {
		zap.L().Error("triggered crawl failed to open report", zap.Error(err))
		return
	}

	summary, err := newOrchestrator(env, st, writer).Run(ctx, catalogs, mode == "skus")
	if err != nil {
		zap.L().Error("triggered crawl failed", zap.String("mode", mode), zap.Error(err))
		return
	}

	if err := shipReport(ctx, writer, summary.Products); err != nil {
		zap.L().Error("triggered crawl failed to ship report", zap.Error(err))
		return
	}
	zap.L().Info("triggered crawl complete",
		zap.String("run_id", summary.RunID),
		zap.Int("products", summary.Products),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
