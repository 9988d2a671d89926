package middleware

import (
	"context"
	"net/http"

	"github.com/pborman/uuid"
)

// TransactionHeader carries the transaction ID between the dashboard front end and the API.
const TransactionHeader = "X-Transaction-ID"

type ctxTransactionKeyType string

const ctxTransactionKey ctxTransactionKeyType = "ctxTransaction"

// NewTransactionID tags the request with the caller's transaction ID, or a new
// one, and echoes it on the response.
func NewTransactionID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		txID := r.Header.Get(TransactionHeader)
		if uuid.Parse(txID) == nil {
			txID = uuid.New()
		}
		w.Header().Set(TransactionHeader, txID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxTransactionKey, txID)))
	})
}

// GetTransactionID returns the transaction ID set by NewTransactionID, or "".
func GetTransactionID(ctx context.Context) string {
	txID, _ := ctx.Value(ctxTransactionKey).(string)
	return txID
}
