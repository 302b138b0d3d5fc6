package monitor

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/lspbridge/pkg/consts"
	"github.com/turtacn/lspbridge/pkg/logger"
)

var (
	// StateGauge is 1 for the current connection manager state and 0 for every other state.
	StateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lspbridge_state",
		Help: "Current connection manager state",
	}, []string{"state"})
	// ReconnectAttempts counts automatic reconnect attempts made after a lost connection.
	ReconnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lspbridge_reconnect_attempts_total",
		Help: "Total number of automatic reconnect attempts",
	})
	// HeadlessLaunches counts headless language server launches, partitioned by result.
	HeadlessLaunches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lspbridge_headless_launches_total",
		Help: "Total number of headless language server launches",
	}, []string{"result"})
	// ProcessKills counts process trees terminated by the registry.
	ProcessKills = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lspbridge_process_kills_total",
		Help: "Total number of child process trees killed",
	})
	// ClientStatusEvents counts status notifications received from the language server client.
	ClientStatusEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lspbridge_client_status_events_total",
		Help: "Total number of client status notifications",
	}, []string{"status"})
)

// Launch results
const (
	LaunchOK       = "ok"
	LaunchRejected = "rejected"
	LaunchFailed   = "failed"
)

var (
	registry     = prometheus.NewRegistry()
	registerOnce sync.Once
)

func register() {
	registerOnce.Do(func() {
		registry.MustRegister(StateGauge, ReconnectAttempts, HeadlessLaunches, ProcessKills, ClientStatusEvents)
	})
}

// SetState marks state as the only active connection manager state.
func SetState(state consts.ManagerState) {
	for _, s := range consts.AllStates {
		v := 0.0
		if s == state {
			v = 1
		}
		StateGauge.WithLabelValues(string(s)).Set(v)
	}
}

// Handler serves the lspbridge metrics in the Prometheus text format.
func Handler() http.Handler {
	register()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// InitMetrics registers the metrics and starts an HTTP server exposing them on addr.
// An empty addr registers the metrics without serving them.
func InitMetrics(addr string) {
	register()
	if addr == "" {
		return
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", Handler())
		logger.Log.Info("Metrics server starting", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Log.Error("Metrics server failed", "err", err)
		}
	}()
}

// Personal.AI order the ending
