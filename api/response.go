package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gtarp/main_backend/apperrors"
)

// APIResponse is the envelope every JSON route answers with.
type APIResponse struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Message string     `json:"message,omitempty"`
}

type ErrorInfo struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func successResponse(c *gin.Context, status int, data any, message ...string) {
	resp := APIResponse{Success: true, Data: data}
	if len(message) > 0 {
		resp.Message = message[0]
	}
	c.JSON(status, resp)
}

func ok(c *gin.Context, data any, message ...string) {
	successResponse(c, http.StatusOK, data, message...)
}

func created(c *gin.Context, data any, message ...string) {
	successResponse(c, http.StatusCreated, data, message...)
}

func errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, APIResponse{
		Success: false,
		Error:   &ErrorInfo{Type: "error", Message: message},
	})
}

// errorWithError maps an AppError to its status. Anything else is reported
// as a generic 500 so internal details never reach the client.
func errorWithError(c *gin.Context, err error) {
	appErr := apperrors.Get(err)
	if appErr == nil {
		c.JSON(http.StatusInternalServerError, APIResponse{
			Success: false,
			Error:   &ErrorInfo{Type: string(apperrors.TypeInternal), Message: "Internal server error occurred"},
		})
		return
	}
	info := &ErrorInfo{Type: string(appErr.Type), Message: appErr.Message, Details: appErr.Details, Fields: appErr.Fields}
	if appErr.Type == apperrors.TypeRemoteService || appErr.Type == apperrors.TypeInternal {
		// Response bodies and driver errors stay in the log.
		info.Details = ""
	}
	c.JSON(appErr.Code, APIResponse{Success: false, Error: info})
}

func abortWithError(c *gin.Context, err error) {
	errorWithError(c, err)
	c.Abort()
}
