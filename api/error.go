package api

import (
	"errors"

	"github.com/gin-gonic/gin"
)

var (
	ErrInternalServer         = errors.New("internal server error")
	ErrInsufficientPermission = errors.New("your role is not allowed to perform this action")
	ErrSchedulingUnavailable  = errors.New("scheduled publishing is not available")
	ErrGoogleLoginDisabled    = errors.New("google login is not configured")
)

type FailedValidationResponse struct {
	Message         string            `json:"message"`
	FieldViolations []*FieldViolation `json:"field_violations"`
}

type FieldViolation struct {
	Field       string `json:"field"`
	Description string `json:"description"`
}

func fieldViolation(field string, err error) *FieldViolation {
	return &FieldViolation{
		Field:       field,
		Description: err.Error(),
	}
}

func errorResponse(err error) gin.H {
	return gin.H{"error": err.Error()}
}

func failedValidationError(violations []*FieldViolation) *FailedValidationResponse {
	return &FailedValidationResponse{
		Message:         "Invalid request parameters",
		FieldViolations: violations,
	}
}
