package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/zaqqye/fiche_backend_v1/internal/lifecycle"
	"github.com/zaqqye/fiche_backend_v1/internal/services"
	"github.com/zaqqye/fiche_backend_v1/internal/store"
)

const (
	msgAccessDenied = "invalid code or form already completed"
	msgRetry        = "something went wrong, please retry"
	msgInvalidID    = "invalid id"
)

var errInvalidID = errors.New(msgInvalidID)

// respondError maps service errors to HTTP answers. Unknown errors are
// logged and hidden behind a generic retry message.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": msgAccessDenied})
	case errors.Is(err, lifecycle.ErrMissingRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "please fill in all required fields"})
	case errors.Is(err, lifecycle.ErrInvalidField),
		errors.Is(err, services.ErrWeakPassword),
		errors.Is(err, services.ErrPasswordTooLong),
		errors.Is(err, services.ErrPasswordMismatch),
		errors.Is(err, services.ErrInvalidEmail),
		errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, services.ErrEmptyRoster),
		errors.Is(err, errInvalidID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotInvited):
		c.JSON(http.StatusForbidden, gin.H{"error": "this email is not invited"})
	case errors.Is(err, services.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "view": "home"})
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, services.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrAlreadyInvited):
		c.JSON(http.StatusConflict, gin.H{"error": "already invited"})
	case errors.Is(err, services.ErrAccountExists),
		errors.Is(err, services.ErrCodeSpaceExhausted),
		errors.Is(err, lifecycle.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrStatusConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "fiche was changed meanwhile, reload and retry"})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		log.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("request failed")
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgRetry})
	}
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func session(c *gin.Context) *services.Session {
	return services.SessionFrom(c.Request.Context())
}

func confirmed(c *gin.Context) bool {
	ok, _ := strconv.ParseBool(c.Query("confirm"))
	return ok
}

// confirmationRequired answers the first, unconfirmed call of a
// destructive action with what is about to be affected.
func confirmationRequired(c *gin.Context, action string, f *services.ConsoleFiche) {
	c.JSON(http.StatusPreconditionRequired, gin.H{
		"error":   "confirmation required",
		"action":  action,
		"confirm": "repeat the request with ?confirm=true",
		"fiche": gin.H{
			"id":     f.ID,
			"code":   f.Code,
			"nom":    f.Nom,
			"prenom": f.Prenom,
			"email":  f.Email,
			"status": f.Status,
		},
	})
}
