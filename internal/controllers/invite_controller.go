package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zaqqye/fiche_backend_v1/internal/services"
)

// InviteController manages the operator allow-list.
type InviteController struct {
	Auth *services.AuthService
}

type inviteRequest struct {
	Email string `json:"email" binding:"required"`
}

func (ic *InviteController) Create(c *gin.Context) {
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	inv, err := ic.Auth.Invite(c.Request.Context(), session(c), req.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "invited", "invitation": inv})
}

func (ic *InviteController) List(c *gin.Context) {
	items, err := ic.Auth.ListInvites(c.Request.Context(), session(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}
