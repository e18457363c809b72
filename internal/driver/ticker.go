package driver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/AlexisBRENON/hyperion2boblight/internal/effects"
	"github.com/AlexisBRENON/hyperion2boblight/internal/lights"
	"github.com/AlexisBRENON/hyperion2boblight/internal/metrics"
)

// effectTicker periodically writes the colors of one effect instance. It is
// owned by the Driver, which stops and joins it before any other write.
type effectTicker struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// startTicker runs effect until the returned ticker is stopped, ctx ends or a
// write fails. The write error is reported through failed before the ticker
// returns.
func startTicker(ctx context.Context, name string, effect effects.Effect, service lights.LightService,
	interval time.Duration, failed func(error)) *effectTicker {
	ctx, cancel := context.WithCancel(ctx)
	t := &effectTicker{
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go t.run(ctx, effect, service, interval, failed)
	return t
}

// stop signals the ticker and waits until it has returned.
func (t *effectTicker) stop() {
	t.cancel()
	<-t.done
}

func (t *effectTicker) run(ctx context.Context, effect effects.Effect, service lights.LightService,
	interval time.Duration, failed func(error)) {
	defer close(t.done)

	log := logger.With(zap.String("effect", t.name))
	log.Debug("Effect started")
	defer log.Debug("Effect stopped")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fixtures := service.Lights()

	var lastWarning time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}

		startTime := time.Now()
		colors := make([]lights.LightColor, len(fixtures))
		for i, light := range fixtures {
			colors[i] = lights.LightColor{Name: light.Name, RGB: effect.Color(light)}
		}

		metrics.DownstreamWrites.WithLabelValues("effect").Inc()
		if err := service.SetColors(colors); err != nil {
			metrics.DownstreamErrors.WithLabelValues("effect").Inc()
			log.With(zap.Error(err)).Error("Failed to write effect colors, stopping effect")
			failed(err)
			return
		}
		metrics.EffectTicks.WithLabelValues(t.name).Inc()
		effect.Increment()

		if totalDuration := time.Since(startTime); totalDuration > interval && time.Since(lastWarning) > 10*time.Second {
			log.With(zap.Stringer("totalDuration", totalDuration),
				zap.Stringer("interval", interval)).
				Warn("Cannot keep up with EFFECT_INTERVAL. Consider increasing it.")
			lastWarning = time.Now()
		}
	}
}
