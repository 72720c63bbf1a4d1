package main

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/productdesk/internal/clock"
	"github.com/smallbiznis/productdesk/internal/config"
	"github.com/smallbiznis/productdesk/internal/logger"
	"github.com/smallbiznis/productdesk/internal/metrics"
	"github.com/smallbiznis/productdesk/internal/migration"
	"github.com/smallbiznis/productdesk/internal/product"
	"github.com/smallbiznis/productdesk/internal/server"
	"github.com/smallbiznis/productdesk/internal/tracing"
	"github.com/smallbiznis/productdesk/internal/ui"
	"github.com/smallbiznis/productdesk/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		logger.Module,
		metrics.Module,
		tracing.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional Domains
		product.Module,
		ui.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.SnowflakeNode, err)
	}
	return node, nil
}
