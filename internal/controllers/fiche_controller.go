package controllers

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zaqqye/fiche_backend_v1/internal/lifecycle"
	"github.com/zaqqye/fiche_backend_v1/internal/services"
	"github.com/zaqqye/fiche_backend_v1/internal/store"
)

const maxRosterSize = 10 << 20

type FicheController struct {
	Fiches *services.FicheService
}

type createFicheRequest struct {
	Nom    string `json:"nom" binding:"required"`
	Prenom string `json:"prenom" binding:"required"`
	Email  string `json:"email" binding:"required"`
}

type printRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

func (fc *FicheController) List(c *gin.Context) {
	filter := store.ListFilter{
		Status: lifecycle.Status(strings.ToLower(strings.TrimSpace(c.Query("status")))),
		Query:  strings.TrimSpace(c.Query("q")),
	}
	items, err := fc.Fiches.List(c.Request.Context(), session(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "total": len(items)})
}

func (fc *FicheController) Create(c *gin.Context) {
	var req createFicheRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	f, inv, err := fc.Fiches.Create(c.Request.Context(), session(c), services.CreateFicheInput{
		Nom:    req.Nom,
		Prenom: req.Prenom,
		Email:  req.Email,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"fiche": f, "invitation": inv})
}

func (fc *FicheController) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	f, err := fc.Fiches.Get(c.Request.Context(), session(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fiche": f})
}

func (fc *FicheController) Invitation(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	inv, err := fc.Fiches.Invitation(c.Request.Context(), session(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitation": inv})
}

func (fc *FicheController) Simulate(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	f, err := fc.Fiches.SimulateFill(c.Request.Context(), session(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fiche": f})
}

func (fc *FicheController) Print(c *gin.Context) {
	var req printRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	ids, err := parseIDs(req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}
	batch, err := fc.Fiches.Print(c.Request.Context(), session(c), ids)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fiches": batch})
}

func (fc *FicheController) Sign(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	f, err := fc.Fiches.Sign(c.Request.Context(), session(c), id, confirmed(c))
	if errors.Is(err, services.ErrConfirmationRequired) {
		confirmationRequired(c, "sign", f)
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "fiche signed", "fiche": f})
}

func (fc *FicheController) Delete(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	f, err := fc.Fiches.Delete(c.Request.Context(), session(c), id, confirmed(c))
	if errors.Is(err, services.ErrConfirmationRequired) {
		confirmationRequired(c, "delete", f)
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "fiche deleted", "id": f.ID})
}

func (fc *FicheController) Remind(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	delivery, err := fc.Fiches.Remind(c.Request.Context(), session(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivery": delivery})
}

// Import accepts the roster as a multipart "file" field or as the raw
// request body.
func (fc *FicheController) Import(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRosterSize)

	var data []byte
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if ext := strings.ToLower(filepath.Ext(fh.Filename)); ext != ".csv" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "only .csv files are supported"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open file"})
			return
		}
		defer f.Close()
		data, err = io.ReadAll(f)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
			return
		}
	} else {
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
			return
		}
		data = raw
	}

	res, err := fc.Fiches.Import(c.Request.Context(), session(c), data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
