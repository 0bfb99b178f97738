package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/zaqqye/fiche_backend_v1/internal/lifecycle"
	"github.com/zaqqye/fiche_backend_v1/internal/services"
)

// GuardianController serves the anonymous, code-gated form.
type GuardianController struct {
	Guardian *services.GuardianService
}

// respondGuardianError never tells an invalid code apart from a completed
// form. Backend failures ask the guardian to retry later.
func respondGuardianError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": msgAccessDenied})
	case errors.Is(err, lifecycle.ErrMissingRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "please fill in all required fields"})
	case errors.Is(err, lifecycle.ErrInvalidField):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.WithError(err).WithField("prefix", "guardian").Error("guardian request failed")
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable, please retry later"})
	}
}

func (g *GuardianController) Get(c *gin.Context) {
	view, err := g.Guardian.Lookup(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondGuardianError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (g *GuardianController) Submit(c *gin.Context) {
	var payload lifecycle.Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		bindError(c, err)
		return
	}
	if err := g.Guardian.Submit(c.Request.Context(), c.Param("code"), payload); err != nil {
		respondGuardianError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "form submitted"})
}
