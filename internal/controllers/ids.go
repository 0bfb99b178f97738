package controllers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func parseID(raw string) (string, error) {
	val, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", errInvalidID
	}
	return val.String(), nil
}

func pathID(c *gin.Context) (string, error) {
	return parseID(c.Param("id"))
}

// parseIDs normalizes a list of ids, skipping blanks.
func parseIDs(ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, raw := range ids {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		id, err := parseID(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
