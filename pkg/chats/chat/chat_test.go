package chat

import (
	"testing"

	"github.com/germanamz/chatstream/pkg/chats/content"
	"github.com/germanamz/chatstream/pkg/chats/message"
	"github.com/germanamz/chatstream/pkg/chats/role"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	m1 := message.NewText("u1", role.User, "hello")
	m2 := message.NewText("a1", role.Assistant, "hi")
	c := New(m1, m2)

	assert.Equal(t, 2, c.Len())
}

func TestChat_ZeroValue(t *testing.T) {
	var c Chat

	assert.Equal(t, 0, c.Len())

	_, ok := c.Last()
	assert.False(t, ok)
	assert.Empty(t, c.Messages())
	assert.Equal(t, -1, c.LastIndexOf(role.Assistant))
}

func TestChat_Append(t *testing.T) {
	c := New()
	c.Append(message.NewText("u1", role.User, "one"))
	c.Append(
		message.NewText("a1", role.Assistant, "two"),
		message.NewText("u2", role.User, "three"),
	)

	assert.Equal(t, 3, c.Len())
}

func TestChat_At(t *testing.T) {
	c := New(message.NewText("u1", role.User, "hello"))

	got := c.At(0)
	assert.Equal(t, role.User, got.Role)
	assert.Equal(t, "hello", textOf(got))
}

func TestChat_At_Panics(t *testing.T) {
	c := New()
	assert.Panics(t, func() { c.At(0) })
}

func TestChat_Last(t *testing.T) {
	c := New(
		message.NewText("u1", role.User, "first"),
		message.NewText("a1", role.Assistant, "second"),
	)

	msg, ok := c.Last()
	assert.True(t, ok)
	assert.Equal(t, "second", textOf(msg))
}

func TestChat_Replace(t *testing.T) {
	c := New(message.NewText("a1", role.Assistant, "draft"))

	c.Replace(0, message.NewText("a1", role.Assistant, "final"))

	assert.Equal(t, "final", textOf(c.At(0)))
}

func TestChat_RemoveAt(t *testing.T) {
	c := New(
		message.NewText("u1", role.User, "a"),
		message.NewText("a1", role.Assistant, "b"),
		message.NewText("u2", role.User, "c"),
	)

	removed := c.RemoveAt(1)

	assert.Equal(t, "a1", removed.ID)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, "u2", c.At(1).ID)
}

func TestChat_Messages_ReturnsCopy(t *testing.T) {
	c := New(message.NewText("u1", role.User, "hello"))

	msgs := c.Messages()
	msgs[0] = message.NewText("a1", role.Assistant, "modified")

	assert.Equal(t, "hello", textOf(c.At(0)))
}

func TestChat_Clone_Deep(t *testing.T) {
	c := New(message.NewText("u1", role.User, "hello"))

	cp := c.Clone()
	cp.At(0).Parts[0] = content.Text{Text: "changed"}

	assert.Equal(t, "hello", textOf(c.At(0)))
}

func TestChat_Each_EarlyStop(t *testing.T) {
	c := New(
		message.NewText("u1", role.User, "a"),
		message.NewText("a1", role.Assistant, "b"),
		message.NewText("u2", role.User, "c"),
	)

	var visited []string
	c.Each(func(_ int, m message.Message) bool {
		visited = append(visited, textOf(m))
		return len(visited) < 2
	})

	assert.Equal(t, []string{"a", "b"}, visited)
}

func TestChat_LastIndexOf(t *testing.T) {
	c := New(
		message.NewText("u1", role.User, "a"),
		message.NewText("a1", role.Assistant, "b"),
		message.NewText("u2", role.User, "c"),
	)

	assert.Equal(t, 1, c.LastIndexOf(role.Assistant))
	assert.Equal(t, 2, c.LastIndexOf(role.User))
	assert.Equal(t, -1, c.LastIndexOf(role.System))
}

func TestChat_IndexOf(t *testing.T) {
	c := New(message.NewText("u1", role.User, "a"), message.NewText("a1", role.Assistant, "b"))

	assert.Equal(t, 1, c.IndexOf("a1"))
	assert.Equal(t, -1, c.IndexOf("missing"))
}

func textOf(m message.Message) string {
	if len(m.Parts) == 0 {
		return ""
	}
	t, _ := m.Parts[0].(content.Text)
	return t.Text
}
