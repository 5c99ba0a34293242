// Package metrics exposes compile and playback counters. The listener is
// optional; counters are cheap to bump whether or not anyone scrapes them.
package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ParseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lightscript_parse_errors_total",
		Help: "Script parse or schedule-generation failures.",
	})
	ScheduleRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lightscript_schedule_records_total",
		Help: "Schedule records produced by successful generations.",
	})
	DeviceWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lightscript_device_writes_total",
		Help: "Animation events dispatched to the controller.",
	})
	DeviceWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lightscript_device_write_errors_total",
		Help: "Controller dispatch failures.",
	})
	PlaybacksActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lightscript_playbacks_active",
		Help: "Whether a playback worker is running (0 or 1).",
	})
	PlaybackSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lightscript_playback_seconds_total",
		Help: "Wall-clock seconds spent in playback.",
	})
)

// Serve starts the metrics/health listener on addr. Blocks; run it in a
// goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	log.Printf("metrics: listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
