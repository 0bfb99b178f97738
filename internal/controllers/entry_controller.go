package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zaqqye/fiche_backend_v1/internal/utils"
)

// Entry tells the front-end which screen to open. A code in the URL wins
// over a reset token, which wins over an existing session.
func Entry(c *gin.Context) {
	if raw, ok := c.GetQuery("code"); ok {
		code := utils.NormalizeCode(raw)
		if len(code) == utils.CodeLength {
			c.JSON(http.StatusOK, gin.H{"view": "form", "code": code})
			return
		}
	}
	if c.Query("reset_token") != "" {
		c.JSON(http.StatusOK, gin.H{"view": "reset"})
		return
	}
	if session(c) != nil {
		c.JSON(http.StatusOK, gin.H{"view": "backoffice"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"view": "home"})
}
