package responseutils

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/clarity-dx/bill-review/log"
)

// Common error messages.
const (
	InternalErr  = "Internal server error"
	NotFoundErr  = "Resource not found"
	NotAllowed   = "Method not allowed"
	BodyTooLarge = "Request body too large"
)

// WriteError writes {"error": msg} with the given status.
func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}

// ServerError logs err on the request logger and answers with a generic 500.
func ServerError(w http.ResponseWriter, r *http.Request, err error) {
	log.GetCtxLogger(r.Context()).Error(err)
	WriteError(w, r, http.StatusInternalServerError, InternalErr)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	render.Status(r, status)
	render.JSON(w, r, v)
}
