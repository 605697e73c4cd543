package trace

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(HeaderName, "abc")
	assert.Equal(t, "abc", FromRequest(req))

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	assert.Equal(t, "req-1", FromRequest(req))

	req = httptest.NewRequest("GET", "/", nil)
	assert.Len(t, FromRequest(req), 32)
}

func TestContextRoundTrip(t *testing.T) {
	ctx := WithContext(context.Background(), "t-1")
	assert.Equal(t, "t-1", FromContext(ctx))
	assert.Empty(t, FromContext(context.Background()))
}
