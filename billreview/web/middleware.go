package web

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/clarity-dx/bill-review/billreview/responseutils"
	"github.com/clarity-dx/bill-review/log"
)

func ConnectionClose(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Connection", "close")
		next.ServeHTTP(w, r)
	})
}

// Recoverer turns a panic into a JSON 500 response. The panic is recorded on
// the request log entry when there is one.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}

			if entry := middleware.GetLogEntry(r); entry != nil {
				entry.Panic(rvr, debug.Stack())
			} else {
				log.API.Errorf("panic: %s\n%s", fmt.Sprint(rvr), debug.Stack())
			}
			responseutils.WriteError(w, r, http.StatusInternalServerError, responseutils.InternalErr)
		}()

		next.ServeHTTP(w, r)
	})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	responseutils.WriteError(w, r, http.StatusNotFound, responseutils.NotFoundErr)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	responseutils.WriteError(w, r, http.StatusMethodNotAllowed, responseutils.NotAllowed)
}
