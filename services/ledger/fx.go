package ledger

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)

func registerRoutes(engine *gin.Engine, service *Service) {
	v1 := engine.Group("/v1")
	v1.POST("/accounts", service.handleCreateAccount)
	v1.GET("/accounts/:id", service.handleGetAccount)
	v1.GET("/accounts/:id/transactions", service.handleListEntries)
}
