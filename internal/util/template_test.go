package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)

	out, err = RenderTemplate(`Chat {{.chat_id}} with {{join ", " .handles}} ({{default "unknown" .mood | upper}})`, map[string]any{
		"chat_id": "c1",
		"handles": []string{"alice", "bob"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Chat c1 with alice, bob (UNKNOWN)", out)

	out, err = RenderTemplate("[{{.missing}}]", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "[]", out)

	_, err = RenderTemplate("{{.unclosed", nil)
	assert.Error(t, err)
}
