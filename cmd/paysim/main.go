// paysim simulates the YooKassa v3 payments API for local development and
// end-to-end tests. Payments stay pending until the admin plane succeeds
// or cancels them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zodiacbot/zodiacbot/internal/paysim/api"
	"github.com/zodiacbot/zodiacbot/internal/paysim/store"
	"github.com/zodiacbot/zodiacbot/pkg/admin"
	"github.com/zodiacbot/zodiacbot/pkg/httpkit"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "paysim:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := httpkit.ParseFlags("paysim", os.Args[1:])
	if err != nil {
		return err
	}
	if cfg.Port == 0 {
		cfg.Port = 12180
	}

	srv := httpkit.New(cfg, nil)
	memStore := store.New()

	// Credentials from env; empty values accept any shop.
	creds := api.Credentials{
		ShopID:    os.Getenv("YUKASSA_SHOP_ID"),
		SecretKey: os.Getenv("YUKASSA_SECRET_KEY"),
	}
	api.NewHandler(memStore, srv.Middleware(), creds, srv.Logger).Routes(srv.Router)
	admin.NewHandler(memStore, srv.Middleware(), memStore.Clock).Routes(srv.Router)

	if seed := os.Getenv("PAYSIM_SEED_FILE"); seed != "" {
		data, err := os.ReadFile(seed)
		if err != nil {
			return fmt.Errorf("reading seed file: %w", err)
		}
		if err := memStore.LoadState(data); err != nil {
			return fmt.Errorf("loading seed file: %w", err)
		}
		srv.Logger.Info("loaded seed data", "file", seed)
	}

	srv.Logger.Info("paysim ready", "port", cfg.Port, "shop_id", creds.ShopID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Serve(ctx)
}
