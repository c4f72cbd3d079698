package home

import (
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeineian/jukebox/proc"
)

func TestSessionClosedForgetsNoticeChannel(t *testing.T) {
	rememberNoticeChannel("42", snowflake.ID(7))
	id, ok := noticeChannel("42")
	require.True(t, ok)
	assert.Equal(t, snowflake.ID(7), id)

	handleEvent(t.Context(), nil, proc.Event{Kind: proc.EventSessionClosed, SessionID: "42"})

	_, ok = noticeChannel("42")
	assert.False(t, ok)
}
