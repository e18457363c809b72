package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AlexisBRENON/hyperion2boblight/internal/hyperion"
	"github.com/AlexisBRENON/hyperion2boblight/internal/logging"
	"github.com/AlexisBRENON/hyperion2boblight/internal/util"
)

var logger = logging.New("remote")

var (
	address  string
	prio     int
	timeout  time.Duration
	debugLog bool

	rootCmd = &cobra.Command{
		Use:           "hyperion-remote",
		Short:         "Send Hyperion JSON remote commands to a hyperion2boblight server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debugLog {
				logging.GetLeveler().SetAllLevels(zap.DebugLevel)
			}
		},
	}

	serverInfoCmd = &cobra.Command{
		Use:   "serverinfo",
		Short: "Print the effects and active priorities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd.Context(), hyperion.Request{Command: "serverinfo"})
		},
	}
	colorCmd = &cobra.Command{
		Use:   "color <red> <green> <blue>",
		Short: "Show a static color, components between 0 and 255",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			color := make([]any, 0, 3)
			for _, arg := range args {
				v, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					return fmt.Errorf("invalid color component %q: %w", arg, err)
				}
				color = append(color, v)
			}
			return send(cmd.Context(), hyperion.Request{Command: "color", Priority: prio, Color: color})
		},
	}
	effectCmd = &cobra.Command{
		Use:   "effect <name>",
		Short: "Run an effect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd.Context(), hyperion.Request{
				Command:  "effect",
				Priority: prio,
				Effect:   &hyperion.EffectRequest{Name: args[0]},
			})
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove the command set at --priority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd.Context(), hyperion.Request{Command: "clear", Priority: prio})
		},
	}
	clearAllCmd = &cobra.Command{
		Use:   "clearall",
		Short: "Remove every command",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd.Context(), hyperion.Request{Command: "clearall"})
		},
	}
	quitCmd = &cobra.Command{
		Use:   "quit",
		Short: "Turn the lights off and stop the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd.Context(), hyperion.Request{Command: "quit"})
		},
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&address, "address", "a", util.Getenv("HYPERION_ADDRESS", "localhost:19444"), "Address of the Hyperion server")
	flags.IntVarP(&prio, "priority", "p", util.Getenv("HYPERION_PRIORITY", 100), "Priority of the command, lower wins")
	flags.DurationVarP(&timeout, "timeout", "t", util.Getenv("HYPERION_TIMEOUT", 5*time.Second), "Connection and reply timeout")
	flags.BoolVarP(&debugLog, "debug", "d", false, "Print debug messages")

	rootCmd.AddCommand(serverInfoCmd, colorCmd, effectCmd, clearCmd, clearAllCmd, quitCmd)
}

func send(ctx context.Context, req hyperion.Request) error {
	client, err := hyperion.Dial(ctx, address, timeout)
	if err != nil {
		return err
	}
	defer client.Close()

	logger.With(zap.String("address", address), zap.String("command", req.Command)).Debug("Sending")
	reply, err := client.Send(req)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(reply, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if !reply.Success {
		return errors.New(reply.Error)
	}
	return nil
}

func main() {
	defer logger.Sync()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logger.With(zap.Error(err)).Error("Command failed")
		logger.Sync()
		os.Exit(1)
	}
}
