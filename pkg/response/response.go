package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ============================================================================
// Business codes
// ============================================================================

// Generic codes mirror the HTTP status.
const (
	CodeSuccess     = 0
	CodeParamError  = 400
	CodeNotFound    = 404
	CodeServerError = 500
)

// Point codes.
const (
	CodeInvalidAmount        = 1001
	CodeAccountNotFound      = 1002
	CodeAccountExists        = 1003
	CodeBalanceNotEnough     = 1004
	CodeBalanceLimitExceeded = 1005
)

// Response is the envelope of every API reply.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success writes 200 with data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Created writes 201 with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    CodeSuccess,
		Message: "created",
		Data:    data,
	})
}

// Error writes a failure envelope with the given HTTP status and business code.
func Error(c *gin.Context, status, code int, message string) {
	c.AbortWithStatusJSON(status, Response{
		Code:    code,
		Message: message,
	})
}

// ParamError writes 400 for malformed input.
func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeParamError, message)
}

// ServerError writes 500.
func ServerError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, CodeServerError, message)
}

// BusinessError writes a rejected domain operation.
func BusinessError(c *gin.Context, status, code int, message string) {
	Error(c, status, code, message)
}
