// Package classifier partitions an inbound message batch into ordered, typed
// task groups. Conversational messages share one group so they keep session
// continuity; every other message becomes its own isolated group.
package classifier

import (
	"sort"
	"strings"

	"github.com/hupe1980/turnmesh/core"
)

// Classifier assigns task types using a Keywords set.
type Classifier struct {
	kw Keywords
}

// New creates a Classifier. A zero Keywords value selects DefaultKeywords.
func New(kw Keywords) *Classifier {
	if kw.CommandPrefix == "" && len(kw.Capture) == 0 && len(kw.Web) == 0 && len(kw.URLSchemes) == 0 {
		kw = DefaultKeywords()
	}
	return &Classifier{kw: kw.normalized()}
}

// Keywords returns the normalized keyword set in use.
func (c *Classifier) Keywords() Keywords { return c.kw }

// ClassifyMessage returns the task type of one message text. Rules apply in
// priority order: capture, fetch, command, conversation.
func (c *Classifier) ClassifyMessage(text string) core.TaskType {
	lower := strings.ToLower(text)
	if containsAny(lower, c.kw.Capture) {
		return core.TaskCapture
	}
	if containsAny(lower, c.kw.URLSchemes) || containsAny(lower, c.kw.Web) {
		return core.TaskFetch
	}
	if c.kw.CommandPrefix != "" && strings.HasPrefix(strings.TrimSpace(text), c.kw.CommandPrefix) {
		return core.TaskCommand
	}
	return core.TaskConversation
}

// ClassifyBatch partitions msgs into classifications sorted by anchor index.
//
// All conversational messages merge into a single classification anchored at
// the first conversational message, even when it also holds later messages.
// Because of that anchor the merged group can sort ahead of a non-conversational
// message that arrived before some of its members.
func (c *Classifier) ClassifyBatch(msgs []core.Message) []core.TaskClassification {
	var out []core.TaskClassification
	convIdx := -1
	for i, m := range msgs {
		tt := c.ClassifyMessage(m.Text)
		if tt != core.TaskConversation {
			out = append(out, core.TaskClassification{Type: tt, Messages: []core.Message{m}, Anchor: i})
			continue
		}
		if convIdx < 0 {
			convIdx = len(out)
			out = append(out, core.TaskClassification{Type: core.TaskConversation, Anchor: i})
		}
		out[convIdx].Messages = append(out[convIdx].Messages, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Anchor < out[j].Anchor })
	return out
}

// ShouldIsolate reports whether msgs need the isolation path: more than one
// classification and more than one distinct task type.
func (c *Classifier) ShouldIsolate(msgs []core.Message) bool {
	cls := c.ClassifyBatch(msgs)
	if len(cls) <= 1 {
		return false
	}
	types := map[core.TaskType]struct{}{}
	for _, cl := range cls {
		types[cl.Type] = struct{}{}
	}
	return len(types) > 1
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
