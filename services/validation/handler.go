package validation

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ideapulse-marketplace/pkg/errutil"
	"ideapulse-marketplace/pkg/middleware"
)

func (s *Service) handleSubmit(c *gin.Context) {
	validatorID, err := middleware.CurrentUser(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}
	req.PostID = c.Param("id")

	v, err := s.Submit(c.Request.Context(), validatorID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, v)
}

func (s *Service) handleGet(c *gin.Context) {
	v, err := s.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, v)
}

func (s *Service) handleListForPost(c *gin.Context) {
	validations, err := s.ListForPost(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": validations})
}

func (s *Service) handleApprove(c *gin.Context) {
	approverID, err := middleware.CurrentUser(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	v, err := s.Approve(c.Request.Context(), approverID, c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, v)
}

type rejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (s *Service) handleReject(c *gin.Context) {
	approverID, err := middleware.CurrentUser(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	v, err := s.Reject(c.Request.Context(), approverID, c.Param("id"), req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, v)
}
