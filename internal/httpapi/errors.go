package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/basalt-db/basalt/pkg/ndgerrors"
)

// writeError maps a taxonomy error to a status code per spec.md §7:
// LockConflict and validation/schema/lookup errors are 4xx, persistence
// and anything unrecognized are 5xx. Every response carries a human
// string, never a bare status.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	c.JSON(status, gin.H{"message": err.Error()})
}

func statusFor(err error) int {
	switch err.(type) {
	case *ndgerrors.LockConflictError:
		return http.StatusConflict
	case *ndgerrors.IoFieldError, *ndgerrors.IoEntityError:
		return http.StatusBadRequest
	case *ndgerrors.TableNotFoundError, *ndgerrors.EntityNotFoundError:
		return http.StatusNotFound
	case *ndgerrors.UndefinedTransactionError, *ndgerrors.TransactionAlreadyStartedError, *ndgerrors.WrongTransactionError:
		return http.StatusBadRequest
	case *ndgerrors.DuplicateTypeError, *ndgerrors.DuplicateTableError, *ndgerrors.UnknownTypeError, *ndgerrors.BadSchemaError:
		return http.StatusBadRequest
	case *ndgerrors.PersistenceFailureError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
