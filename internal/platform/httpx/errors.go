// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// fielder is implemented by errors that carry structured details for the client,
// such as the excess of a rejected overpayment.
type fielder interface {
	ProblemFields() map[string]any
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status, title := classify(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = ""
	}
	problem := ProblemDetail{Title: title, Status: status, Detail: detail}
	var f fielder
	if errors.As(err, &f) {
		problem.Fields = f.ProblemFields()
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		problem.Fields = ve.ProblemFields()
	}
	WriteProblem(w, problem)
}

// StatusOf reports the HTTP status RespondError would use for err.
func StatusOf(err error) int {
	status, _ := classify(err)
	return status
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, shared.ErrConcurrentModification):
		return http.StatusConflict, "Concurrent Modification"
	case errors.Is(err, shared.ErrAlreadyConverted):
		return http.StatusConflict, "Already Converted"
	case errors.Is(err, shared.ErrDuplicate):
		return http.StatusConflict, "Duplicate"
	case errors.Is(err, shared.ErrOverpayment):
		return http.StatusUnprocessableEntity, "Overpayment"
	case errors.Is(err, shared.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, "Invalid Amount"
	case errors.Is(err, shared.ErrExpired):
		return http.StatusUnprocessableEntity, "Quotation Expired"
	case errors.Is(err, shared.ErrNotApproved):
		return http.StatusUnprocessableEntity, "Quotation Not Approved"
	case errors.Is(err, shared.ErrInvalidTransition):
		return http.StatusUnprocessableEntity, "Invalid Transition"
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest, "Validation Failed"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}
