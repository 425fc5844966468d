package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zodiacbot/zodiacbot/internal/api"
	"github.com/zodiacbot/zodiacbot/internal/config"
	"github.com/zodiacbot/zodiacbot/internal/i18n"
	"github.com/zodiacbot/zodiacbot/internal/telemetry"
	"github.com/zodiacbot/zodiacbot/pkg/clock"
	"github.com/zodiacbot/zodiacbot/pkg/httpkit"
)

func serveCmd(load func() (*config.Config, error)) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server.port")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) (err error) {
	srv := httpkit.New(&httpkit.Config{
		Name:            "zodiacbot",
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		Verbose:         cfg.Log.Verbose,
	}, nil)
	logger := srv.Logger

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
	})
	if err != nil {
		return err
	}
	defer func() {
		// ctx is already cancelled on the way out.
		if serr := shutdown(context.WithoutCancel(ctx)); serr != nil {
			err = errors.Join(err, fmt.Errorf("telemetry shutdown: %w", serr))
		}
	}()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.Close()) }()

	api.NewHandler(api.Deps{
		APIKey:   cfg.Auth.APIKey,
		Locale:   i18n.Parse(cfg.Locale),
		Profiles: a.profiles,
		Ledger:   a.ledger,
		Oracle:   a.oracle,
		Billing:  a.billing,
		Clock:    clock.System{},
		Logger:   logger,
	}).Routes(srv.Router)

	logger.Info("zodiacbot ready", "port", cfg.Server.Port, "version", version, "telemetry", cfg.Telemetry.Endpoint != "")
	return srv.Serve(ctx)
}
