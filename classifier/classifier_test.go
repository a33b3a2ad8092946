package classifier

import (
	"strings"
	"testing"

	"github.com/hupe1980/turnmesh/core"
	"github.com/hupe1980/turnmesh/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyMessage_Priority(t *testing.T) {
	c := New(DefaultKeywords())

	cases := []struct {
		text string
		want core.TaskType
	}{
		{"hey, how was your day?", core.TaskConversation},
		{"Take a PHOTO of the desk", core.TaskCapture},
		{"can you grab a screenshot", core.TaskCapture},
		{"check https://example.com", core.TaskFetch},
		{"please look up the train times", core.TaskFetch},
		{"  /status", core.TaskCommand},
		{"/search for cats", core.TaskFetch},               // fetch outranks command
		{"take a photo of this website", core.TaskCapture}, // capture outranks fetch
		{"a slash / in the middle", core.TaskConversation},
		{"", core.TaskConversation},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, c.ClassifyMessage(tc.text), "text %q", tc.text)
	}
}

func TestClassifyBatch_MergesConversation(t *testing.T) {
	c := New(DefaultKeywords())
	msgs := testutil.Messages("chat-1",
		"hello there",        // 0 conversation
		"take a photo",       // 1 capture
		"and another thing",  // 2 conversation
		"https://golang.org", // 3 fetch
	)

	got := c.ClassifyBatch(msgs)
	require.Len(t, got, 3)

	assert.Equal(t, core.TaskConversation, got[0].Type)
	assert.Equal(t, 0, got[0].Anchor)
	assert.Equal(t, []core.Message{msgs[0], msgs[2]}, got[0].Messages)

	assert.Equal(t, core.TaskCapture, got[1].Type)
	assert.Equal(t, 1, got[1].Anchor)
	assert.Equal(t, []core.Message{msgs[1]}, got[1].Messages)

	assert.Equal(t, core.TaskFetch, got[2].Type)
	assert.Equal(t, 3, got[2].Anchor)
}

func TestClassifyBatch_ConversationAnchoredAtFirstMember(t *testing.T) {
	c := New(DefaultKeywords())
	msgs := testutil.Messages("chat-1",
		"/help",        // 0 command
		"hi",           // 1 conversation
		"take a photo", // 2 capture
		"still there?", // 3 conversation
	)

	got := c.ClassifyBatch(msgs)
	require.Len(t, got, 3)
	assert.Equal(t, []int{0, 1, 2}, anchors(got))
	assert.Equal(t, []core.TaskType{core.TaskCommand, core.TaskConversation, core.TaskCapture}, types(got))
	// The merged group sorts ahead of the capture message even though its
	// second member arrived after it.
	assert.Len(t, got[1].Messages, 2)
}

func TestClassifyBatch_Empty(t *testing.T) {
	c := New(DefaultKeywords())
	assert.Empty(t, c.ClassifyBatch(nil))
	assert.False(t, c.ShouldIsolate(nil))
}

func TestShouldIsolate(t *testing.T) {
	c := New(DefaultKeywords())

	assert.False(t, c.ShouldIsolate(testutil.Messages("c", "hi", "how are you", "bye")))
	assert.True(t, c.ShouldIsolate(testutil.Messages("c", "take a photo", "hi")))
	assert.False(t, c.ShouldIsolate(testutil.Messages("c", "/a", "/b")), "one distinct type")
	assert.False(t, c.ShouldIsolate(testutil.Messages("c", "screenshot please")), "single classification")
}

func TestNew_ZeroKeywordsUsesDefaults(t *testing.T) {
	c := New(Keywords{})
	assert.Equal(t, core.TaskCapture, c.ClassifyMessage("camera on"))
	assert.Equal(t, "/", c.Keywords().CommandPrefix)
}

func TestLoadKeywords(t *testing.T) {
	doc := `
capture:
  - "  Scan The Room "
web:
  - wiki
command_prefix: "!"
`
	kw, err := LoadKeywords(strings.NewReader(doc))
	require.NoError(t, err)

	c := New(kw)
	assert.Equal(t, core.TaskCapture, c.ClassifyMessage("please scan the room"))
	assert.Equal(t, core.TaskConversation, c.ClassifyMessage("take a photo"), "capture list replaced")
	assert.Equal(t, core.TaskFetch, c.ClassifyMessage("check the wiki"))
	assert.Equal(t, core.TaskFetch, c.ClassifyMessage("https://x.dev"), "url schemes kept from defaults")
	assert.Equal(t, core.TaskCommand, c.ClassifyMessage("!reset"))
	assert.Equal(t, core.TaskConversation, c.ClassifyMessage("/reset"))
}

func TestLoadKeywords_Errors(t *testing.T) {
	_, err := LoadKeywords(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyKeywords)

	_, err = LoadKeywords(strings.NewReader("capture: []\nweb: []\nurl_schemes: []\ncommand_prefix: ''\n"))
	assert.ErrorIs(t, err, ErrEmptyKeywords)

	_, err = LoadKeywords(strings.NewReader("capture: [unclosed"))
	assert.Error(t, err)

	_, err = LoadKeywordsFile("does/not/exist.yaml")
	assert.Error(t, err)
}

func anchors(cls []core.TaskClassification) []int {
	out := make([]int, len(cls))
	for i, c := range cls {
		out[i] = c.Anchor
	}
	return out
}

func types(cls []core.TaskClassification) []core.TaskType {
	out := make([]core.TaskType, len(cls))
	for i, c := range cls {
		out[i] = c.Type
	}
	return out
}
