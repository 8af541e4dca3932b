package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ellykits/lite-quest/internal/config"
	"github.com/ellykits/lite-quest/internal/engine"
	"github.com/ellykits/lite-quest/internal/questionnaire"
	"github.com/ellykits/lite-quest/internal/server"
	"github.com/ellykits/lite-quest/internal/session"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "litequest-server",
		Short: "Headless questionnaire engine",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(extractCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the questionnaire session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// validateCmd checks a response document against a questionnaire without
// starting a server.
func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <questionnaire.json> <response.json>",
		Short: "Validate a response document against a questionnaire",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, resp, err := loadPair(args[0], args[1])
			if err != nil {
				return err
			}

			errs := engine.New(q).ValidateResponse(resp, nil)
			if errs == nil {
				errs = []questionnaire.ValidationError{}
			}
			out, err := json.MarshalIndent(map[string]any{
				"isValid": len(errs) == 0,
				"errors":  errs,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if len(errs) > 0 {
				os.Exit(1)
			}
			return nil
		},
	}
}

// extractCmd projects a response through the questionnaire's extraction
// template and prints the result.
func extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <questionnaire.json> <response.json>",
		Short: "Extract data from a response using the questionnaire template",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, resp, err := loadPair(args[0], args[1])
			if err != nil {
				return err
			}
			if q.ExtractionTemplate == nil {
				return fmt.Errorf("questionnaire %q has no extraction template", q.ID)
			}

			extracted := engine.New(q).ExtractData(resp)
			out, err := extracted.MarshalJSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func loadPair(qPath, respPath string) (*questionnaire.Questionnaire, *questionnaire.Response, error) {
	qRaw, err := os.ReadFile(qPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read questionnaire: %w", err)
	}
	q, err := questionnaire.Parse(qRaw)
	if err != nil {
		return nil, nil, fmt.Errorf("parse questionnaire: %w", err)
	}

	respRaw, err := os.ReadFile(respPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	resp, err := questionnaire.ParseResponse(respRaw)
	if err != nil {
		return nil, nil, fmt.Errorf("parse response: %w", err)
	}
	return q, resp, nil
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	registry := session.NewRegistry()

	// Reap idle sessions in the background.
	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.SessionSweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := registry.Sweep(cfg.SessionIdleTimeout); n > 0 {
					logger.Info().Int("count", n).Msg("reaped idle sessions")
				}
			case <-sweepDone:
				return
			}
		}
	}()

	e := server.New(cfg, registry, logger)
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	close(sweepDone)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
