package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fluxdrive/internal/calendar"
	"github.com/smallbiznis/fluxdrive/internal/clock"
	"github.com/smallbiznis/fluxdrive/internal/config"
	"github.com/smallbiznis/fluxdrive/internal/observability"
	"github.com/smallbiznis/fluxdrive/internal/server"
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

		// Dashboard reads plus the rebuild queue endpoints. The scheduler
		// process drains the queue.
		server.Module,
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
