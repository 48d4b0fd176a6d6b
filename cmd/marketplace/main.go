package main

import (
	"log"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"ideapulse-marketplace/pkg/config"
	"ideapulse-marketplace/pkg/db"
	"ideapulse-marketplace/pkg/logger"
	"ideapulse-marketplace/pkg/redis"
	"ideapulse-marketplace/pkg/server"
	"ideapulse-marketplace/services/ledger"
	"ideapulse-marketplace/services/post"
	"ideapulse-marketplace/services/validation"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		fx.Provide(
			provideSnowflakeNode,
		),
		fx.Invoke(
			migrate,
			registerReadyz,
		),
		server.Module,
		ledger.Module,
		post.Module,
		validation.Module,
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

// registerReadyz reports whether the backing stores answer, as opposed to
// /healthz which only proves the process is up.
func registerReadyz(engine *gin.Engine, gdb *gorm.DB, rdb *goredis.Client) {
	engine.GET("/readyz", func(c *gin.Context) {
		ctx := c.Request.Context()

		sqlDB, err := gdb.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "component": "database"})
			return
		}

		if err := rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "component": "redis"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
}

// migrate keeps dev and sqlite deployments self-contained; production schemas
// are managed externally.
func migrate(gdb *gorm.DB, cfg *config.Config) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}
	return gdb.AutoMigrate(
		&ledger.Account{},
		&ledger.Entry{},
		&post.Post{},
		&validation.Validation{},
	)
}
