package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zaqqye/fiche_backend_v1/internal/config"
	"github.com/zaqqye/fiche_backend_v1/internal/lifecycle"
	"github.com/zaqqye/fiche_backend_v1/internal/utils"
)

type ConfigController struct {
	Cfg *config.Config
}

// Public lists what the guardian form needs to render itself.
func (cc *ConfigController) Public(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"public_url":          cc.Cfg.PublicURL,
		"code_length":         utils.CodeLength,
		"required_fields":     lifecycle.RequiredFields,
		"enum_fields":         lifecycle.EnumFields,
		"date_layout":         lifecycle.DateLayout,
		"min_password_length": utils.MinPasswordLength,
	})
}
