package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fluxdrive/internal/calendar"
	"github.com/smallbiznis/fluxdrive/internal/clock"
	"github.com/smallbiznis/fluxdrive/internal/config"
	"github.com/smallbiznis/fluxdrive/internal/lock"
	"github.com/smallbiznis/fluxdrive/internal/migration"
	"github.com/smallbiznis/fluxdrive/internal/observability"
	"github.com/smallbiznis/fluxdrive/internal/scheduler"
	"github.com/smallbiznis/fluxdrive/internal/server"
	"github.com/smallbiznis/fluxdrive/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		calendar.Module,
		migration.Module,
		lock.Module,

		// server.Module brings in the dashboard and sales fact services.
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
