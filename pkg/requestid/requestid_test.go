package requestid_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orunkhq/orunk/pkg/requestid"
)

func TestMiddleware(t *testing.T) {
	t.Run("generates id when missing", func(t *testing.T) {
		var seen string
		h := requestid.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = requestid.FromContext(r.Context())
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(requestid.Header))
	})

	t.Run("preserves incoming id", func(t *testing.T) {
		var seen string
		h := requestid.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = requestid.FromContext(r.Context())
		}))

		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set(requestid.Header, "trace-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)

		assert.Equal(t, "trace-123", seen)
		assert.Equal(t, "trace-123", rec.Header().Get(requestid.Header))
	})
}

func TestFromContextEmpty(t *testing.T) {
	assert.Empty(t, requestid.FromContext(httptest.NewRequest("GET", "/", nil).Context()))
}
