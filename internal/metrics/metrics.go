// Package metrics holds the Prometheus collectors shared by the bridge.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/AlexisBRENON/hyperion2boblight/internal/logging"
)

var logger = logging.New("metrics")

var (
	// CommandsTotal counts inbound requests by command and result.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyperion_commands_total",
		Help: "Inbound remote protocol requests by command and result",
	}, []string{"command", "result"})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hyperion_connections_active",
		Help: "Open remote protocol connections",
	})

	// ActivePriority is the priority driving the lights, -1 when none.
	ActivePriority = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_active_priority",
		Help: "Priority of the active entry, -1 when the list is empty",
	})

	DriverState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_driver_state",
		Help: "Output driver state (0 connecting, 1 idle, 2 driving, 3 effecting, 4 shutting down, 5 terminated, 6 stalled)",
	})

	// DownstreamWrites counts writes to the light service by kind.
	DownstreamWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boblight_writes_total",
		Help: "Writes to the light service by kind",
	}, []string{"kind"})

	DownstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boblight_write_errors_total",
		Help: "Failed writes to the light service by kind",
	}, []string{"kind"})

	EffectTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_effect_ticks_total",
		Help: "Effect frames written by effect name",
	}, []string{"effect"})
)

// Serve exposes /metrics on address until ctx is done.
func Serve(ctx context.Context, address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.With(zap.String("address", address)).Info("Serving metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
