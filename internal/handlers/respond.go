package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"libraryhub/internal/services"
)

// respondError is the single place service errors become HTTP responses.
func respondError(c *gin.Context, err error) {
	kind := services.KindOf(err)
	body := gin.H{"error": err.Error(), "code": string(kind)}

	var status int
	switch kind {
	case services.KindNotFound:
		status = http.StatusNotFound
	case services.KindConflict:
		status = http.StatusConflict
	case services.KindInvalidTransition, services.KindValidation:
		status = http.StatusBadRequest
	case services.KindUnauthorized:
		status = http.StatusUnauthorized
	case services.KindUpstreamUnavailable:
		log.Printf("[WARN] %s %s: %v", c.Request.Method, c.FullPath(), err)
		status = http.StatusServiceUnavailable
		body["error"] = services.ErrUpstreamUnavailable.Error()
	default:
		log.Printf("[ERROR] %s %s: %v", c.Request.Method, c.FullPath(), err)
		status = http.StatusInternalServerError
		body = gin.H{"error": "internal server error", "code": "internal"}
	}

	var te *services.InvalidTransitionError
	if errors.As(err, &te) {
		body["from"] = te.From
		body["to"] = te.To
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, format string, args ...any) {
	respondError(c, services.ValidationError(format, args...))
}

// uuidParam parses a path parameter, writing a 400 on failure.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid %s", name)
		return uuid.Nil, false
	}
	return id, true
}
