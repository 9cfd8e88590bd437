package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/app"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/common"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML configuration file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	portShort := flag.Int("p", 0, "HTTP server port (shorthand)")
	host := flag.String("host", "", "HTTP server host (overrides config)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(common.GetFullVersion())
		os.Exit(0)
	}

	config, err := common.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	flagPort := *port
	if flagPort == 0 {
		flagPort = *portShort
	}
	common.ApplyFlagOverrides(config, flagPort, *host)

	common.PrintBanner(common.GetVersion())

	instance, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Startup error: %v\n", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- instance.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		instance.Logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			instance.Logger.Error().Err(err).Msg("Server failed")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := instance.Shutdown(ctx); err != nil {
		instance.Logger.Warn().Err(err).Msg("Shutdown incomplete")
	}
	instance.Logger.Info().Msg("Platform instance stopped")
}
