package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AlexisBRENON/hyperion2boblight/internal/driver"
	"github.com/AlexisBRENON/hyperion2boblight/internal/hyperion"
	"github.com/AlexisBRENON/hyperion2boblight/internal/lights"
	"github.com/AlexisBRENON/hyperion2boblight/internal/lights/boblight"
	"github.com/AlexisBRENON/hyperion2boblight/internal/lights/lifx"
	"github.com/AlexisBRENON/hyperion2boblight/internal/logging"
	"github.com/AlexisBRENON/hyperion2boblight/internal/metrics"
	"github.com/AlexisBRENON/hyperion2boblight/internal/priority"
)

var (
	logger = logging.New("main")
	config = BridgeConfig{}

	rootCmd = &cobra.Command{
		Use:           "hyperion2boblight",
		Short:         "A server to command a boblight server with a hyperion client",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), config)
		},
	}
)

type BridgeConfig struct {
	ListenAddress   string        `env:"LISTEN_ADDRESS" envDefault:"localhost"`
	ListenPort      int           `env:"LISTEN_PORT" envDefault:"19444"`
	BoblightAddress string        `env:"BOBLIGHT_ADDRESS" envDefault:"localhost"`
	BoblightPort    int           `env:"BOBLIGHT_PORT" envDefault:"19333"`
	LightType       string        `env:"LIGHT_TYPE" envDefault:"BOBLIGHT"`
	LightGroupName  string        `env:"LIGHT_GROUP_NAME" envDefault:"ARCADE"`
	MaxBrightness   float64       `env:"MAX_BRIGHTNESS" envDefault:"1"`
	MinBrightness   float64       `env:"MIN_BRIGHTNESS" envDefault:"0"`
	EffectInterval  time.Duration `env:"EFFECT_INTERVAL" envDefault:"100ms"`
	DialTimeout     time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"1s"`
	EnumerateLights bool          `env:"ENUMERATE_LIGHTS" envDefault:"true"`
	DefaultLight    string        `env:"DEFAULT_LIGHT" envDefault:"screen"`
	MetricsAddress  string        `env:"METRICS_ADDRESS"`
	Debug           bool          `env:"DEBUG" envDefault:"false"`
}

func main() {
	defer logger.Sync()

	err := env.Parse(&config)
	if err != nil {
		logger.With(zap.Error(err)).Fatal("Failed to parse environment variables")
	}

	// Flags default to the environment so that they only override what is set.
	flags := rootCmd.Flags()
	flags.StringVarP(&config.ListenAddress, "listening-address", "A", config.ListenAddress, "Address to bind the server to")
	flags.IntVarP(&config.ListenPort, "listening-port", "P", config.ListenPort, "Port to bind the server to")
	flags.StringVarP(&config.BoblightAddress, "boblight-address", "a", config.BoblightAddress, "Address of the boblight server to command")
	flags.IntVarP(&config.BoblightPort, "boblight-port", "p", config.BoblightPort, "Port that boblight server is listening")
	flags.BoolVarP(&config.Debug, "debug", "d", config.Debug, "Print debug messages")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logger.With(zap.Error(err)).Fatal("hyperion2boblight stopped")
	}
}

func Run(ctx context.Context, config BridgeConfig) error {
	if config.Debug {
		logging.GetLeveler().SetAllLevels(zap.DebugLevel)
		logger.Debug("Debug output activated")
	}

	logger.With(zap.Any("config", config)).Info("Starting hyperion2boblight")
	logger.Info("LIGHT_TYPE supports BOBLIGHT and LIFX.")
	logger.Info("Adjust EFFECT_INTERVAL to change how often effects update the lights.")
	logger.Info("Set ENUMERATE_LIGHTS=false to address DEFAULT_LIGHT only.")
	logger.Info("Set METRICS_ADDRESS to expose Prometheus metrics.")
	logger.Info("Press Ctrl+C to stop")

	lightService, err := newLightService(ctx, config)
	if err != nil {
		return err
	}

	list := priority.NewList()
	d := driver.New(list, lightService, driver.Config{EffectInterval: config.EffectInterval})
	server := hyperion.NewServer(list, hyperion.Config{
		Address: net.JoinHostPort(config.ListenAddress, strconv.Itoa(config.ListenPort)),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Once the driver is gone there is nothing left to serve.
		defer cancel()
		return d.Run(gCtx)
	})
	g.Go(func() error {
		return server.ListenAndServe(gCtx)
	})
	if config.MetricsAddress != "" {
		g.Go(func() error {
			return metrics.Serve(gCtx, config.MetricsAddress)
		})
	}
	g.Go(func() error {
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case sig := <-shutdown:
			logger.With(zap.Stringer("signal", sig)).Info("Shutting down")
			list.RequestShutdown()
		case <-gCtx.Done():
		}
		return nil
	})

	err = g.Wait()
	if d.State() != driver.Terminated || err != nil {
		// The driver only closes the light service on an orderly shutdown.
		if closeErr := lightService.Close(); closeErr != nil {
			logger.With(zap.Error(closeErr)).Debug("Failed to close light service")
		}
	}
	if err != nil {
		return err
	}
	logger.Info("Exiting")
	return nil
}

func newLightService(ctx context.Context, config BridgeConfig) (lights.LightService, error) {
	switch strings.ToUpper(config.LightType) {
	case "BOBLIGHT":
		address := net.JoinHostPort(config.BoblightAddress, strconv.Itoa(config.BoblightPort))
		client, err := boblight.Connect(ctx, boblight.Config{
			Address:      address,
			DialTimeout:  config.DialTimeout,
			ReadTimeout:  config.DialTimeout,
			WriteTimeout: config.WriteTimeout,
			DefaultLight: config.DefaultLight,
		}, config.EnumerateLights)
		if err != nil {
			return nil, fmt.Errorf("connect to boblight server at %s: %w", address, err)
		}
		return client, nil
	case "LIFX":
		lifxLights, err := lifx.NewLifx(ctx, lifx.Config{
			GroupName:     config.LightGroupName,
			MinBrightness: config.MinBrightness,
			MaxBrightness: config.MaxBrightness,
			Transition:    config.EffectInterval / 2,
		})
		if err != nil {
			return nil, fmt.Errorf("create LIFX light service: %w", err)
		}
		return lifxLights, nil
	default:
		return nil, errors.New("unknown light type: " + config.LightType)
	}
}
