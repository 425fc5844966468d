package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zodiacbot/zodiacbot/internal/billing"
	"github.com/zodiacbot/zodiacbot/internal/config"
	"github.com/zodiacbot/zodiacbot/internal/history"
	"github.com/zodiacbot/zodiacbot/internal/i18n"
	"github.com/zodiacbot/zodiacbot/internal/identity"
	"github.com/zodiacbot/zodiacbot/internal/llm"
	"github.com/zodiacbot/zodiacbot/internal/oracle"
	"github.com/zodiacbot/zodiacbot/internal/storage"
	"github.com/zodiacbot/zodiacbot/internal/storage/memory"
	"github.com/zodiacbot/zodiacbot/internal/storage/sqlite"
	"github.com/zodiacbot/zodiacbot/internal/yookassa"
	"github.com/zodiacbot/zodiacbot/pkg/clock"
)

// app is the wired service graph shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    storage.Store
	profiles *identity.Service
	ledger   *history.Ledger
	oracle   *oracle.Pipeline
	billing  *billing.Engine
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		st, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	st, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	clk := clock.System{}

	profiles := identity.New(st, clk, logger)
	ledger := history.New(st, clk, logger)

	gen := llm.New(llm.Config{
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout,
	}, nil)
	pipeline := oracle.New(gen, oracle.NewGate(clk, cfg.LLM.GateInterval), profiles, ledger, clk,
		oracle.WithLogger(logger))

	gateway := yookassa.New(cfg.Payment.BaseURL, cfg.Payment.ShopID, cfg.Payment.SecretKey, cfg.Payment.Timeout)
	engine := billing.New(st, profiles, gateway, clk, billing.Config{
		ReturnURL:    cfg.Payment.ReturnURL,
		Currency:     cfg.Payment.Currency,
		MonthlyPrice: cfg.Payment.MonthlyPrice,
		AnnualPrice:  cfg.Payment.AnnualPrice,
	}, logger)

	logger.Info("services wired",
		"storage", cfg.Storage.Driver,
		"llm_model", cfg.LLM.Model,
		"gate_interval", cfg.LLM.GateInterval,
		"locale", i18n.Parse(cfg.Locale).String(),
	)
	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		profiles: profiles,
		ledger:   ledger,
		oracle:   pipeline,
		billing:  engine,
	}, nil
}

func (a *app) Close() error {
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
