package ledger

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ideapulse-marketplace/pkg/errutil"
)

func (s *Service) handleCreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	acct, err := s.CreateAccount(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, acct)
}

func (s *Service) handleGetAccount(c *gin.Context) {
	acct, err := s.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, acct)
}

func (s *Service) handleListEntries(c *gin.Context) {
	entries, err := s.ListEntries(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}
