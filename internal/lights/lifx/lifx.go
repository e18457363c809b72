// Package lifx drives a LIFX LAN group as a single light covering the whole
// capture area.
package lifx

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/pdf/golifx"
	"github.com/pdf/golifx/common"
	"github.com/pdf/golifx/protocol"
	"go.uber.org/zap"

	"github.com/AlexisBRENON/hyperion2boblight/internal/lights"
	"github.com/AlexisBRENON/hyperion2boblight/internal/logging"
	"github.com/AlexisBRENON/hyperion2boblight/internal/util"
)

var logger = logging.New("lifx")

var errNoGroup = errors.New("LIFX group not discovered yet")

type LifxLights struct {
	config Config
	client *golifx.Client
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error

	lightsMu sync.RWMutex
	group    common.Group
}

var _ lights.LightService = (*LifxLights)(nil)

type Config struct {
	GroupName     string
	MaxBrightness float64
	MinBrightness float64
	// Transition is the fade duration of each color change.
	Transition time.Duration
}

func NewLifx(ctx context.Context, config Config) (*LifxLights, error) {
	client, err := golifx.NewClient(&protocol.V2{})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	l := &LifxLights{
		config: config,
		client: client,
		cancel: cancel,
	}
	go l.Start(ctx)
	return l, nil
}

func (l *LifxLights) Start(ctx context.Context) {
	discoveryInterval := 15 * time.Second
	ticker := time.NewTicker(discoveryInterval)
	defer ticker.Stop()

	l.client.SetDiscoveryInterval(discoveryInterval)

	timeout := 5 * time.Second
	ctxWithTimeout, cancel := context.WithTimeout(ctx, timeout)
	l.discover(ctxWithTimeout)
	cancel()

	for {
		select {
		case <-ticker.C:
			ctxWithTimeout, cancel := context.WithTimeout(ctx, timeout)
			l.discover(ctxWithTimeout)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

func (l *LifxLights) discover(ctx context.Context) {
	logger.With(zap.String("group", l.config.GroupName)).Debug("LIFX discovery starting...")

	type result struct {
		group common.Group
		err   error
	}
	completed := make(chan result, 1)
	go func() {
		g, err := l.client.GetGroupByLabel(l.config.GroupName)
		completed <- result{group: g, err: err}
	}()

	select {
	case <-ctx.Done():
		logger.With(zap.Error(ctx.Err())).Warn("LIFX discovery timed out.")
	case r := <-completed:
		if r.err != nil || r.group == nil {
			logger.With(zap.Error(r.err)).Warn("Couldn't discover group.")
			return
		}
		logger.With(zap.String("group", r.group.GetLabel())).Info("LIFX group found")
		l.lightsMu.Lock()
		l.group = r.group
		l.lightsMu.Unlock()
	}
}

// Lights reports the group as one light spanning the capture area.
func (l *LifxLights) Lights() []lights.Light {
	return []lights.Light{{
		Name:  l.config.GroupName,
		HScan: [2]float64{0, 1},
		VScan: [2]float64{0, 1},
	}}
}

// SetPriority is a no-op: LIFX has no notion of priority.
func (l *LifxLights) SetPriority(priority int) error {
	logger.With(zap.Int("priority", priority)).Debug("Ignoring priority for LIFX group")
	return nil
}

func (l *LifxLights) SetColors(colors []lights.LightColor) error {
	if len(colors) == 0 {
		return nil
	}

	l.lightsMu.RLock()
	group := l.group
	l.lightsMu.RUnlock()
	if group == nil {
		return errNoGroup
	}

	color := colors[0].RGB
	lifxColor := adjustColor(newLifxColor(color), l.config)

	logger.With(zap.Any("color", color),
		zap.Any("lifxColor", lifxColor)).
		Debug("Setting LIFX group color")

	if err := group.SetColor(lifxColor, l.config.Transition); err != nil {
		logger.With(zap.Error(err)).Warn("Failed to set color for LIFX group")
		return err
	}
	return nil
}

func (l *LifxLights) Close() error {
	l.closeOnce.Do(func() {
		l.cancel()
		l.closeErr = l.client.Close()
	})
	return l.closeErr
}

func newLifxColor(color lights.RGB) common.Color {
	hue, saturation, brightness := util.RgbToHsb(util.To255(color.R), util.To255(color.G), util.To255(color.B))

	return common.Color{
		Hue:        hue,
		Saturation: saturation,
		Brightness: brightness,
		Kelvin:     3500,
	}
}

func adjustColor(color common.Color, config Config) common.Color {
	blackThreshold := 0.015 * 0xFFFF
	if color.Brightness <= uint16(blackThreshold) {
		// blackish color - turn off the light
		return common.Color{
			Hue:        0,
			Saturation: 0,
			Brightness: 0,
			Kelvin:     3500,
		}
	}

	color.Brightness = uint16(math.Min(config.MaxBrightness*0xFFFF, math.Max(config.MinBrightness*0xFFFF, float64(color.Brightness))))

	return color
}
