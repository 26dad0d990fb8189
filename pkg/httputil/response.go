package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/campaign-api/pkg/errors"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ContextRequestID is the gin context key holding the request id. Error
// envelopes echo it so a client can quote it in a report.
const ContextRequestID = "request_id"

// Response wraps all API responses
type Response struct {
	Status    string      `json:"status"`
	Message   string      `json:"message,omitempty"`
	Code      string      `json:"code,omitempty"`
	Field     string      `json:"field,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// Pagination represents pagination metadata
type Pagination struct {
	Page      int `json:"page"`
	PageSize  int `json:"page_size"`
	Total     int `json:"total"`
	TotalPage int `json:"total_pages"`
}

// PaginatedResponse wraps paginated data
type PaginatedResponse struct {
	Items      interface{} `json:"items"`
	Pagination Pagination  `json:"pagination"`
}

func RespondWithSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Status: StatusSuccess,
		Data:   data,
	})
}

// RespondWithMessage sends a success response that carries only a message.
func RespondWithMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, Response{
		Status:  StatusSuccess,
		Message: message,
	})
}

func RespondWithPagination(c *gin.Context, items interface{}, page, pageSize, total int) {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}

	RespondWithSuccess(c, http.StatusOK, PaginatedResponse{
		Items: items,
		Pagination: Pagination{
			Page:      page,
			PageSize:  pageSize,
			Total:     total,
			TotalPage: totalPages,
		},
	})
}

// RespondWithError writes err as an error envelope. The error is attached to
// the gin context so the access log records it. Anything that is not an
// AppError, and every internal error, is reported with a generic message.
func RespondWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	status, body := errorBody(c, err)
	c.JSON(status, body)
}

// AbortWithError is RespondWithError for middleware.
func AbortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	status, body := errorBody(c, err)
	c.AbortWithStatusJSON(status, body)
}

// AbortWithStatus aborts with a plain error envelope for statuses that have
// no AppError code.
func AbortWithStatus(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Response{
		Status:    StatusError,
		Message:   message,
		Code:      code,
		RequestID: c.GetString(ContextRequestID),
	})
}

func errorBody(c *gin.Context, err error) (int, Response) {
	rid := c.GetString(ContextRequestID)

	appErr, ok := errors.As(err)
	if !ok || appErr.Code == errors.ErrInternal {
		return http.StatusInternalServerError, Response{
			Status:    StatusError,
			Message:   "Internal server error",
			Code:      errors.ErrInternal.String(),
			RequestID: rid,
		}
	}

	return appErr.StatusCode(), Response{
		Status:    StatusError,
		Message:   appErr.Message,
		Code:      appErr.Code.String(),
		Field:     appErr.Field,
		RequestID: rid,
	}
}
