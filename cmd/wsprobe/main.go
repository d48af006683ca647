package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"pushgate/internal/log"
	"pushgate/internal/wsclient"
)

var (
	gatewayURL string
	identifier string
	endpoints  []string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:   "wsprobe",
		Short: "Connect to a pushgate gateway and print pushed frames",
		Long: "wsprobe keeps a WebSocket connection to a pushgate gateway open,\n" +
			"joins the given invalidation endpoints and prints every frame the\n" +
			"server pushes. It reconnects with exponential backoff when the\n" +
			"connection drops, so it doubles as a soak tool for the gateway.",
		RunE: runProbe,
	}

	root.Flags().StringVarP(&gatewayURL, "url", "u", "ws://localhost:8080/ws", "gateway WebSocket URL")
	root.Flags().StringVarP(&identifier, "identifier", "i", "", "client-sourced identifier (client identity mode only)")
	root.Flags().StringSliceVarP(&endpoints, "endpoint", "e", nil, "endpoint to subscribe to (repeatable)")
	root.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runProbe(cmd *cobra.Command, args []string) error {
	logger := log.New(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := wsclient.New(wsclient.Options{
		URL:        gatewayURL,
		Identifier: identifier,
		Endpoints:  endpoints,
		Logger:     logger,
		OnReady: func(id string) {
			fmt.Printf("ready identifier=%s\n", id)
		},
		OnRooms: func(rooms []string) {
			fmt.Printf("rooms [%s]\n", strings.Join(rooms, ", "))
		},
		OnAuthorization: func(level string) {
			fmt.Printf("authorization level=%s\n", level)
		},
		OnInvalidate: func(rooms []string) {
			fmt.Printf("invalidate [%s]\n", strings.Join(rooms, ", "))
		},
		OnError: func(message string, canRetry bool) {
			fmt.Printf("error message=%q can_retry=%v\n", message, canRetry)
		},
	})

	logger.Info().Str("url", gatewayURL).Strs("endpoints", endpoints).Msg("starting probe")
	if err := client.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
