package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fluxdrive/internal/calendar"
	"github.com/smallbiznis/fluxdrive/internal/clock"
	"github.com/smallbiznis/fluxdrive/internal/config"
	"github.com/smallbiznis/fluxdrive/internal/lock"
	"github.com/smallbiznis/fluxdrive/internal/migration"
	"github.com/smallbiznis/fluxdrive/internal/observability"
	"github.com/smallbiznis/fluxdrive/internal/salesfact"
	"github.com/smallbiznis/fluxdrive/internal/scheduler"
	"github.com/smallbiznis/fluxdrive/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		calendar.Module,
		migration.Module,
		lock.Module,

		salesfact.Module,
		scheduler.Module,

		// No server module!
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
