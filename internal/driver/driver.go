// Package driver keeps a light service showing whatever the priority list
// deems active. It is the only writer to the light service.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/AlexisBRENON/hyperion2boblight/internal/effects"
	"github.com/AlexisBRENON/hyperion2boblight/internal/lights"
	"github.com/AlexisBRENON/hyperion2boblight/internal/logging"
	"github.com/AlexisBRENON/hyperion2boblight/internal/metrics"
	"github.com/AlexisBRENON/hyperion2boblight/internal/priority"
)

var logger = logging.New("driver")

const DefaultEffectInterval = 100 * time.Millisecond

type Config struct {
	// EffectInterval is the period of the effect ticker.
	EffectInterval time.Duration
}

type Driver struct {
	list    *priority.List
	service lights.LightService
	config  Config

	state  atomic.Int32
	ticker *effectTicker
}

func New(list *priority.List, service lights.LightService, config Config) *Driver {
	if config.EffectInterval <= 0 {
		config.EffectInterval = DefaultEffectInterval
	}
	d := &Driver{
		list:    list,
		service: service,
		config:  config,
	}
	d.setState(Connecting)
	return d
}

func (d *Driver) State() State {
	return State(d.state.Load())
}

func (d *Driver) setState(s State) {
	if State(d.state.Swap(int32(s))) != s {
		logger.With(zap.Stringer("state", s)).Debug("Driver state changed")
	}
	metrics.DriverState.Set(float64(s))
}

// Run drives the light service until a Shutdown command becomes active, the
// connection is lost or ctx ends. A Shutdown turns the lights off and closes
// the light service before Run returns nil.
func (d *Driver) Run(ctx context.Context) error {
	ctx, fail := context.WithCancelCause(ctx)
	defer fail(nil)
	defer d.stopTicker()

	entry := d.list.First()
	for {
		if _, ok := entry.Command.(priority.Shutdown); ok {
			return d.shutdown()
		}

		if err := d.apply(ctx, fail, entry); err != nil {
			if errors.Is(err, lights.ErrConnectionLost) {
				logger.With(zap.Error(err)).Error("Light service connection lost")
				d.stopTicker()
				d.setState(Terminated)
				return err
			}
			logger.With(zap.Stringer("entry", entry), zap.Error(err)).
				Error("Failed to update lights, waiting for the next change")
			d.setState(Stalled)
		} else if entry.IsNone() {
			metrics.ActivePriority.Set(-1)
		} else {
			metrics.ActivePriority.Set(float64(entry.Priority))
		}

		next, err := d.list.WaitForChange(ctx, entry)
		if err != nil {
			d.stopTicker()
			d.setState(Terminated)
			return context.Cause(ctx)
		}
		entry = next
	}
}

// apply stops any running effect, then writes entry to the light service.
// The state only changes once the light service accepted the entry.
func (d *Driver) apply(ctx context.Context, fail context.CancelCauseFunc, entry priority.Entry) error {
	d.stopTicker()

	logger.With(zap.Stringer("entry", entry)).Debug("Executing")
	switch command := entry.Command.(type) {
	case nil:
		if err := d.lightsOff(); err != nil {
			return err
		}
		d.setState(Idle)
		return nil

	case priority.Color:
		if err := d.setPriority(entry.Priority); err != nil {
			return err
		}
		color := lights.Color(command).Normalized()
		if err := d.setColors(lights.Broadcast(d.service.Lights(), color)); err != nil {
			return err
		}
		d.setState(Driving)
		return nil

	case priority.Effect:
		effect, err := effects.New(command.Name)
		if err != nil {
			return err
		}
		if err := d.setPriority(entry.Priority); err != nil {
			return err
		}
		d.setState(Effecting)
		d.ticker = startTicker(ctx, command.Name, effect, d.service, d.config.EffectInterval, d.effectFailed(fail))
		return nil

	default:
		return fmt.Errorf("command not recognized: %s", entry)
	}
}

// effectFailed handles a ticker write error. It runs on the ticker goroutine
// before the ticker is joined, so it never races a later setState.
func (d *Driver) effectFailed(fail context.CancelCauseFunc) func(error) {
	return func(err error) {
		if errors.Is(err, lights.ErrConnectionLost) {
			fail(err)
			return
		}
		d.setState(Stalled)
	}
}

func (d *Driver) shutdown() error {
	logger.Info("Shutting down")
	d.stopTicker()
	d.setState(ShuttingDown)

	err := d.lightsOff()
	if err != nil {
		logger.With(zap.Error(err)).Warn("Failed to turn the lights off")
	}
	if closeErr := d.service.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	d.setState(Terminated)
	return err
}

func (d *Driver) stopTicker() {
	if d.ticker == nil {
		return
	}
	d.ticker.stop()
	d.ticker = nil
}

func (d *Driver) lightsOff() error {
	if err := d.setPriority(0); err != nil {
		return err
	}
	return d.setColors(lights.Broadcast(d.service.Lights(), lights.Off))
}

func (d *Driver) setPriority(p int) error {
	metrics.DownstreamWrites.WithLabelValues("priority").Inc()
	if err := d.service.SetPriority(p); err != nil {
		metrics.DownstreamErrors.WithLabelValues("priority").Inc()
		return err
	}
	return nil
}

func (d *Driver) setColors(colors []lights.LightColor) error {
	metrics.DownstreamWrites.WithLabelValues("color").Inc()
	if err := d.service.SetColors(colors); err != nil {
		metrics.DownstreamErrors.WithLabelValues("color").Inc()
		return err
	}
	return nil
}
