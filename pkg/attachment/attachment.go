// Package attachment holds user-picked files waiting to be sent and turns
// them into outbound message parts.
package attachment

import (
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// Attachment is a file the user picked but has not sent yet. URI is an opaque
// handle resolved by an Opener.
type Attachment struct {
	ID       string
	Name     string
	Size     int64
	MimeType string
	URI      string
}

// NewID mints a durable attachment id.
func NewID() string {
	return uuid.NewString()
}

// FormatSize renders a byte count for display ("1.5 MB").
func FormatSize(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.Bytes(uint64(n))
}

// List is the set of attachments pending in the input box. The zero value is
// ready to use. List is not safe for concurrent use.
type List struct {
	items []Attachment
}

// Add appends attachments, minting an id for any that has none. Attachments
// whose id is already present are ignored.
func (l *List) Add(atts ...Attachment) {
	for _, a := range atts {
		if a.ID == "" {
			a.ID = NewID()
		}
		if l.index(a.ID) >= 0 {
			continue
		}
		l.items = append(l.items, a)
	}
}

// Remove drops the attachment with the given id and reports whether it existed.
func (l *List) Remove(id string) bool {
	i := l.index(id)
	if i < 0 {
		return false
	}
	l.items = slices.Delete(l.items, i, i+1)
	return true
}

// Clear empties the list, typically after a successful send.
func (l *List) Clear() {
	l.items = nil
}

// Items returns a copy of the pending attachments in the order they were added.
func (l *List) Items() []Attachment {
	return slices.Clone(l.items)
}

// Len returns the number of pending attachments.
func (l *List) Len() int {
	return len(l.items)
}

func (l *List) index(id string) int {
	return slices.IndexFunc(l.items, func(a Attachment) bool { return a.ID == id })
}
