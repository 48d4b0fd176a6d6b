package post

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("post.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)

func registerRoutes(engine *gin.Engine, service *Service) {
	v1 := engine.Group("/v1")
	v1.POST("/posts", service.handleCreatePost)
	v1.GET("/posts/:id", service.handleGetPost)
	v1.GET("/posts", service.handleListPosts)
}
