package proc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPickStatus(t *testing.T) {
	first := func(int) int { return 0 }

	assert.Empty(t, pickStatus(nil, "", first))
	assert.Equal(t, "/play", pickStatus([]string{"/play"}, "/play", first), "only option repeats")
	assert.Equal(t, "2 sessions", pickStatus([]string{"/play", "2 sessions"}, "/play", first))

	var n int
	pickStatus([]string{"a", "b", "c"}, "b", func(max int) int { n = max; return 0 })
	assert.Equal(t, 2, n, "last status is excluded from the draw")
}

func TestPluralize(t *testing.T) {
	assert.Equal(t, "session", pluralize(1, "session", "sessions"))
	assert.Equal(t, "sessions", pluralize(0, "session", "sessions"))
	assert.Equal(t, "sessions", pluralize(3, "session", "sessions"))
}
