// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/taskroom/taskroom/internal/shared"
)

type problemKind struct {
	err    error
	status int
	title  string
}

var problemKinds = []problemKind{
	{shared.ErrUnauthenticated, http.StatusUnauthorized, "Authentication required"},
	{shared.ErrNotFound, http.StatusNotFound, "Not found"},
	{shared.ErrPendingApproval, http.StatusForbidden, "Your account is waiting for admin approval"},
	{shared.ErrSuspended, http.StatusForbidden, "Your account has been suspended"},
	{shared.ErrRejected, http.StatusForbidden, "Your account registration was rejected"},
	{shared.ErrCrossTenantAccess, http.StatusForbidden, "This resource belongs to another room"},
	{shared.ErrForbidden, http.StatusForbidden, "You are not allowed to perform this action"},
	{shared.ErrInvalidTransition, http.StatusConflict, "This action is not allowed in the current state"},
	{shared.ErrConcurrentModification, http.StatusConflict, "The record was changed by someone else; reload and try again"},
	{shared.ErrInvalidCode, http.StatusBadRequest, "The room code is not valid"},
	{shared.ErrValidation, http.StatusUnprocessableEntity, "Validation failed"},
}

// StatusFor returns the HTTP status and problem title for err.
func StatusFor(err error) (int, string) {
	for _, k := range problemKinds {
		if errors.Is(err, k.err) {
			return k.status, k.title
		}
	}
	return http.StatusInternalServerError, "Internal error"
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		ValidationProblem(w, verr.Fields)
		return
	}
	status, title := StatusFor(err)
	if status == http.StatusInternalServerError {
		Problem(w, status, title, "")
		return
	}
	Problem(w, status, title, err.Error())
}
