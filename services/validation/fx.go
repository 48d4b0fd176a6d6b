package validation

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("validation.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)

func registerRoutes(engine *gin.Engine, service *Service) {
	v1 := engine.Group("/v1")
	v1.POST("/posts/:id/validations", service.handleSubmit)
	v1.GET("/posts/:id/validations", service.handleListForPost)
	v1.GET("/validations/:id", service.handleGet)
	v1.POST("/validations/:id/approve", service.handleApprove)
	v1.POST("/validations/:id/reject", service.handleReject)
}
