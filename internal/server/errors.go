package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/productdesk/internal/product/domain"
	"github.com/smallbiznis/productdesk/internal/ui"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound           = errors.New("not_found")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

type statusPayload struct {
	status  int
	payload errorPayload
}

var (
	internalFailure = statusPayload{http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}}
	notFound        = statusPayload{http.StatusNotFound, errorPayload{Type: "not_found", Message: "not found"}}
	unavailable     = statusPayload{http.StatusServiceUnavailable, errorPayload{Type: "service_unavailable", Message: "service unavailable"}}

	storeFailures = map[domain.StoreErrorCode]statusPayload{
		domain.CodePermissionDenied: {http.StatusForbidden, errorPayload{Type: "forbidden", Message: "permission denied by the database"}},
		domain.CodeUnavailable:      unavailable,
		domain.CodeNotFound:         notFound,
		domain.CodeUnknown:          internalFailure,
	}
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func fromProblems(problems []domain.Problem) error {
	out := make([]ValidationError, 0, len(problems))
	for _, p := range problems {
		out = append(out, ValidationError{Field: p.Field, Code: p.Code, Message: p.Message})
	}
	return &ValidationErrors{Errors: out}
}

func mapError(err error) (int, errorPayload) {
	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}
	if vErr := domain.AsValidationError(err); vErr != nil {
		return mapError(fromProblems(vErr.Problems))
	}

	if code := domain.StoreErrorCodeOf(err); code != "" {
		if mapped, ok := storeFailures[code]; ok {
			return mapped.status, mapped.payload
		}
	}

	switch {
	case err == nil:
		return internalFailure.status, internalFailure.payload
	case errors.Is(err, ErrNotFound):
		return notFound.status, notFound.payload
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, ui.ErrClosed),
		errors.Is(err, ui.ErrRegistryClosed):
		return unavailable.status, unavailable.payload
	default:
		return internalFailure.status, internalFailure.payload
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

// classifyErrorForLog returns the error type and code for request logs.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if storeCode := domain.StoreErrorCodeOf(err); storeCode != "" {
		code = string(storeCode)
	}
	return payload.Type, code
}
