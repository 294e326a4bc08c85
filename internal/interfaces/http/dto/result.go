package dto

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/restaurant/backend/internal/application/dispatch"
	"github.com/restaurant/backend/internal/domain/shared"
)

// InternalErrorMessage replaces internal failure details on the wire
const InternalErrorMessage = "internal error"

// ResultStatus is the HTTP status of a dispatcher result:
// 200 on Success, 422 on a business or validation Failure, 500 on an internal failure.
func ResultStatus[T any](r shared.Result[T]) int {
	switch {
	case r.IsSuccess():
		return http.StatusOK
	case dispatch.IsInternalFailure(r):
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

// WriteResult writes r with its JSON contract {success, data, errors}.
// Internal failure details stay in the server log; clients get InternalErrorMessage.
func WriteResult[T any](c *gin.Context, r shared.Result[T]) {
	status := ResultStatus(r)
	if status == http.StatusInternalServerError {
		r = shared.Failure[T](InternalErrorMessage)
	}
	c.JSON(status, r)
}
