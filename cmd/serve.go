package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BlueGIS760404/UrbanPlanning/internal/present"
	"github.com/BlueGIS760404/UrbanPlanning/internal/report"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Score once and serve the report, GeoJSON and metrics over HTTP",
	Long: `Runs the suitability pipeline once at startup and serves:

  GET /health            liveness probe
  GET /report            the HTML report
  GET /parcels.geojson   scored parcels as a GeoJSON FeatureCollection (CORS enabled)
  GET /metrics           Prometheus metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyInputOverrides(cmd)
		log := zap.L().With(zap.String("command", "serve"))

		reg := prometheus.NewRegistry()
		env, err := initScoring(ctx, cfg, "serve", reg)
		if err != nil {
			return err
		}
		composer, err := newComposer(cfg.Report)
		if err != nil {
			return err
		}

		res, err := env.Pipeline.Run(ctx, env.Store)
		if err != nil {
			log.Error("scoring failed", zap.Error(err))
			return eris.Wrap(err, "serve: run")
		}
		doc, err := composer.Compose(res)
		if err != nil {
			return err
		}
		view, err := present.MapView(res)
		if err != nil {
			return eris.Wrap(err, "serve: map view")
		}
		geojson, err := present.GeoJSON(view)
		if err != nil {
			return eris.Wrap(err, "serve: geojson")
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      buildRouter(doc, geojson, reg, cfg.Server.AllowedOrigins),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			log.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		log.Info("starting server", zap.Int("port", port), zap.String("run_id", doc.RunID))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().String("dataset", "", "YAML dataset path (overrides config)")
	serveCmd.Flags().Float64("radius", -1, "transit buffer radius (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

// buildRouter wires the preview routes. gatherer may be nil, in which case
// /metrics is not mounted.
func buildRouter(doc *report.Document, geojson []byte, gatherer prometheus.Gatherer, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/report", func(w http.ResponseWriter, _ *http.Request) {
		if doc == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "report not available"})
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("X-Run-ID", doc.RunID)
		w.WriteHeader(http.StatusOK)
		w.Write(doc.HTML) //nolint:errcheck
	})

	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			MaxAge:         300,
		}))
		r.Get("/parcels.geojson", func(w http.ResponseWriter, _ *http.Request) {
			if geojson == nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "parcels not available"})
				return
			}
			w.Header().Set("Content-Type", "application/geo+json")
			w.WriteHeader(http.StatusOK)
			w.Write(geojson) //nolint:errcheck
		})
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
