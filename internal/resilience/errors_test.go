package resilience

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransient(t *testing.T) {
	assert.Nil(t, Transient("fetch", nil))

	err := Transient("fetch item", eris.New("status 503"))
	require.Error(t, err)
	assert.Equal(t, "transient: fetch item: status 503", err.Error())
	assert.True(t, IsTransient(err))
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(eris.New("boom")))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(eris.Wrap(Transient("read", eris.New("reset")), "outer")))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, status := range []int{429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(status), "status %d", status)
	}
	for _, status := range []int{200, 301, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(status), "status %d", status)
	}
}

func TestPermanent(t *testing.T) {
	final := Permanent(Transient("fetch item", eris.New("status 503")))
	require.Error(t, final)
	assert.Equal(t, "fetch item: status 503", final.Error())
	assert.False(t, IsTransient(final))

	// Non-transient errors pass through untouched.
	plain := eris.New("boom")
	assert.Same(t, plain, Permanent(plain))
	assert.NoError(t, Permanent(nil))
}
