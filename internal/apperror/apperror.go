// Package apperror maps domain errors onto HTTP responses.
package apperror

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Validation carries field-level messages and renders as 400 {"errors": {...}}.
type Validation struct {
	Fields map[string]string
}

func (v *Validation) Error() string { return "validation failed" }

// Add records a message for field; the first message per field wins.
func (v *Validation) Add(field, msg string) {
	if v.Fields == nil {
		v.Fields = make(map[string]string)
	}
	if _, ok := v.Fields[field]; !ok {
		v.Fields[field] = msg
	}
}

// OrNil returns v when any field failed, otherwise nil.
func (v *Validation) OrNil() error {
	if len(v.Fields) == 0 {
		return nil
	}
	return v
}

// Status is an error that already knows its HTTP status and public message.
type Status struct {
	Code    int
	Message string
	// Extra fields merged into the JSON body.
	Extra gin.H
	err   error
}

func (s *Status) Error() string { return s.Message }
func (s *Status) Unwrap() error { return s.err }

func BadRequest(msg string) *Status { return &Status{Code: http.StatusBadRequest, Message: msg} }

func NotFound(msg string) *Status {
	return &Status{Code: http.StatusNotFound, Message: msg, err: ErrNotFound}
}

func Unauthorized(msg string) *Status {
	return &Status{Code: http.StatusUnauthorized, Message: msg, err: ErrUnauthorized}
}

func Forbidden(msg string) *Status {
	return &Status{Code: http.StatusForbidden, Message: msg, err: ErrForbidden}
}

// Respond writes err to c. Unknown errors are logged and answered with a
// generic 500 using fallback as the public message.
func Respond(c *gin.Context, logger *zap.SugaredLogger, err error, fallback string) {
	var v *Validation
	if errors.As(err, &v) {
		c.JSON(http.StatusBadRequest, gin.H{"errors": v.Fields})
		return
	}
	var s *Status
	if errors.As(err, &s) {
		body := gin.H{"error": s.Message}
		for k, val := range s.Extra {
			body[k] = val
		}
		c.JSON(s.Code, body)
		return
	}
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	default:
		if logger != nil {
			logger.Errorw(fallback, "err", err, "path", c.FullPath())
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
