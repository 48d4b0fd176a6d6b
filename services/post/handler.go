package post

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ideapulse-marketplace/pkg/errutil"
	"ideapulse-marketplace/pkg/middleware"
)

func (s *Service) handleCreatePost(c *gin.Context) {
	authorID, err := middleware.CurrentUser(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	p, err := s.Create(c.Request.Context(), authorID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, p)
}

func (s *Service) handleGetPost(c *gin.Context) {
	p, err := s.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, p)
}

func (s *Service) handleListPosts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	posts, err := s.List(c.Request.Context(), ListFilter{
		AuthorID: c.Query("author_id"),
		Category: c.Query("category"),
		Status:   Status(c.Query("status")),
		Limit:    limit,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": posts})
}
