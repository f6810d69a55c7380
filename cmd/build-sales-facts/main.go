package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fluxdrive/internal/calendar"
	"github.com/smallbiznis/fluxdrive/internal/clock"
	"github.com/smallbiznis/fluxdrive/internal/config"
	"github.com/smallbiznis/fluxdrive/internal/migration"
	"github.com/smallbiznis/fluxdrive/internal/observability"
	"github.com/smallbiznis/fluxdrive/internal/salesfact"
	"github.com/smallbiznis/fluxdrive/internal/salesfact/domain"
	"github.com/smallbiznis/fluxdrive/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(openService, os.Stdout)
	err := cmd.ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

// openService builds the rebuild service with the same wiring as the
// scheduler process and returns a func that tears it down.
func openService(ctx context.Context, sourceOverride string) (domain.Service, *zap.Logger, func(context.Context) error, error) {
	var (
		svc domain.Service
		log *zap.Logger
	)

	opts := []fx.Option{
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		calendar.Module,
		migration.Module,
		salesfact.Module,
		fx.Populate(&svc, &log),
	}
	if sourceOverride != "" {
		opts = append(opts, fx.Decorate(func(cfg config.Config) config.Config {
			cfg.Rebuild.Source = sourceOverride
			return cfg
		}))
	}

	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		return nil, nil, nil, err
	}
	if err := app.Start(ctx); err != nil {
		return nil, nil, nil, err
	}
	return svc, log.Named("build-sales-facts"), app.Stop, nil
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	var usage *usageError
	if errors.As(err, &usage) {
		return 2
	}
	return 1
}
