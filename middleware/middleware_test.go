package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pborman/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewTransactionID(t *testing.T) {
	var seen string
	h := NewTransactionID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetTransactionID(r.Context())
	}))

	existing := uuid.New()
	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"Generated", "", false},
		{"Propagated", existing, true},
		{"InvalidReplaced", "not-a-uuid", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(TransactionHeader, tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.NotNil(t, uuid.Parse(seen))
			assert.Equal(t, seen, rr.Header().Get(TransactionHeader))
			if tt.keep {
				assert.Equal(t, tt.header, seen)
			} else {
				assert.NotEqual(t, tt.header, seen)
			}
		})
	}
}

func TestGetTransactionIDMissing(t *testing.T) {
	assert.Empty(t, GetTransactionID(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
