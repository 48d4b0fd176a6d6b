package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"ideapulse-marketplace/pkg/config"
	"ideapulse-marketplace/pkg/db"
	"ideapulse-marketplace/pkg/logger"
	"ideapulse-marketplace/pkg/task"
	"ideapulse-marketplace/services/ledger"
	"ideapulse-marketplace/services/post"
)

// The worker binary runs the asynq server plus the expiry-sweep scheduler; it
// serves no HTTP routes.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		task.Client,
		task.Server,
		fx.Provide(
			provideSnowflakeNode,
			ledger.NewService,
		),
		post.TaskModule,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
