package telemetry

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nextlevelbuilder/tracereader/internal/store"
)

// NewMux builds the reader's minimal operator-facing HTTP surface:
// "/healthz" for liveness, "/metrics" for Prometheus scraping, and
// "/generation" as a real (if tiny) instantiation of "a viewer reads a
// store snapshot via a read handle" — it takes a shared read guard just
// long enough to report the generation counter and root count, without
// building out the excluded interactive viewer protocol.
func NewMux(container *store.Container, reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	mux.HandleFunc("/generation", func(w http.ResponseWriter, r *http.Request) {
		g := container.Read()
		stats := g.Stats()
		g.Release()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats)
	})

	return mux
}
