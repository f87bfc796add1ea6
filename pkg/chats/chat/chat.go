// Package chat provides the ordered conversation container.
package chat

import (
	"github.com/germanamz/chatstream/pkg/chats/message"
	"github.com/germanamz/chatstream/pkg/chats/role"
)

// Chat is an ordered conversation; insertion order is chronological order.
// The zero value is ready to use. Chat is not safe for concurrent use;
// callers must synchronize externally.
type Chat struct {
	messages []message.Message
}

// New creates a Chat pre-populated with the given messages.
func New(msgs ...message.Message) *Chat {
	return &Chat{messages: msgs}
}

// Append adds one or more messages to the conversation.
func (c *Chat) Append(msgs ...message.Message) {
	c.messages = append(c.messages, msgs...)
}

// Len returns the number of messages in the conversation.
func (c *Chat) Len() int {
	return len(c.messages)
}

// At returns the message at the given index.
// It panics if the index is out of range.
func (c *Chat) At(index int) message.Message {
	return c.messages[index]
}

// Last returns the most recent message and true, or a zero Message and false
// if the conversation is empty.
func (c *Chat) Last() (message.Message, bool) {
	if len(c.messages) == 0 {
		return message.Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Replace overwrites the message at index.
// It panics if the index is out of range.
func (c *Chat) Replace(index int, msg message.Message) {
	c.messages[index] = msg
}

// RemoveAt deletes the message at index, keeping the order of the rest.
// It panics if the index is out of range.
func (c *Chat) RemoveAt(index int) message.Message {
	removed := c.messages[index]
	c.messages = append(c.messages[:index], c.messages[index+1:]...)
	return removed
}

// Messages returns a copy of all messages in the conversation. Parts are
// shared with the conversation; use Clone for an independent copy.
func (c *Chat) Messages() []message.Message {
	cp := make([]message.Message, len(c.messages))
	copy(cp, c.messages)
	return cp
}

// Clone returns a deep copy of the conversation.
func (c *Chat) Clone() *Chat {
	cp := make([]message.Message, len(c.messages))
	for i, m := range c.messages {
		cp[i] = m.Clone()
	}
	return &Chat{messages: cp}
}

// Each iterates over messages, calling fn for each one. If fn returns false,
// iteration stops early.
func (c *Chat) Each(fn func(int, message.Message) bool) {
	for i, m := range c.messages {
		if !fn(i, m) {
			return
		}
	}
}

// LastIndexOf returns the index of the most recent message with role r,
// or -1 if there is none.
func (c *Chat) LastIndexOf(r role.Role) int {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == r {
			return i
		}
	}
	return -1
}

// IndexOf returns the index of the message with the given id, or -1.
func (c *Chat) IndexOf(id string) int {
	for i, m := range c.messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}
