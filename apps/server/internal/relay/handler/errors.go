package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tilsley/coverbot/apps/server/internal/relay"
)

// Headers set on a /modify-repo response that failed after the new branch was
// created.
const (
	HeaderCreatedBranch = "X-Coverbot-Created-Branch"
	HeaderFailedStep    = "X-Coverbot-Failed-Step"
)

const defaultContentType = "application/json; charset=utf-8"

// fail maps a relay error onto the response:
//
//	ValidationError      → 400 {"error": ...}
//	ExternalServiceError → upstream status, content type and body, unchanged
//	anything else        → 502 {"error": ...}
func (h *Handler) fail(c *gin.Context, err error, msg string, attrs ...any) {
	log := h.logger(c)

	var vErr relay.ValidationError
	if errors.As(err, &vErr) {
		log.Warn(msg, append(attrs, "error", err)...)
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
		return
	}

	var partial relay.PartialFailureError
	if errors.As(err, &partial) {
		c.Header(HeaderCreatedBranch, partial.Branch)
		c.Header(HeaderFailedStep, partial.Step)
		attrs = append(attrs, "failedStep", partial.Step, "createdBranch", partial.Branch)
	}

	var ext relay.ExternalServiceError
	if errors.As(err, &ext) {
		log.Error(msg, append(attrs, "service", ext.Service, "status", ext.Status)...)
		c.Data(ext.Status, contentTypeOr(ext.ContentType), ext.Body)
		return
	}

	log.Error(msg, append(attrs, "error", err)...)
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

func contentTypeOr(ct string) string {
	if ct == "" {
		return defaultContentType
	}
	return ct
}
