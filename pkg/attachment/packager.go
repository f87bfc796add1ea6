package attachment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/germanamz/chatstream/pkg/chaterr"
	"github.com/germanamz/chatstream/pkg/chats/content"
)

// DefaultMaxSize is the per-attachment ceiling.
const DefaultMaxSize int64 = 10 << 20

// Packager turns user input into outbound message parts.
type Packager struct {
	Opener  Opener
	MaxSize int64 // per attachment; DefaultMaxSize when zero
}

func (p *Packager) maxSize() int64 {
	if p.MaxSize > 0 {
		return p.MaxSize
	}
	return DefaultMaxSize
}

// BuildMessageParts reads every attachment and returns the parts to send: a
// text part when text is not blank, then one file part per attachment in
// input order, each carrying a base64 data URL. Any attachment over the size
// ceiling fails the whole call with a ValidationError.
func (p *Packager) BuildMessageParts(ctx context.Context, text string, atts []Attachment) ([]content.Part, error) {
	limit := p.maxSize()

	for i, a := range atts {
		if a.Size > limit {
			return nil, tooLarge(i, a, limit)
		}
	}

	parts := textParts(text, len(atts))

	for i, a := range atts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := p.read(ctx, a, limit)
		if err != nil {
			return nil, err
		}
		if int64(len(data)) > limit {
			return nil, tooLarge(i, a, limit)
		}

		mime := NormalizeMIME(a.MimeType, a.Name)
		parts = append(parts, content.File{
			ID:        a.ID,
			MediaType: mime,
			Filename:  a.Name,
			URL:       DataURL(mime, data),
		})
	}

	return parts, nil
}

// DisplayParts returns the parts BuildMessageParts would produce, with each
// file part pointing at the attachment URI instead of its encoded bytes.
func DisplayParts(text string, atts []Attachment) []content.Part {
	parts := textParts(text, len(atts))
	for _, a := range atts {
		parts = append(parts, content.File{
			ID:        a.ID,
			MediaType: NormalizeMIME(a.MimeType, a.Name),
			Filename:  a.Name,
			URL:       a.URI,
		})
	}
	return parts
}

// DataURL encodes data as data:<mime>;base64,<payload>.
func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func textParts(text string, extra int) []content.Part {
	parts := make([]content.Part, 0, extra+1)
	if strings.TrimSpace(text) != "" {
		parts = append(parts, content.Text{Text: text})
	}
	return parts
}

func (p *Packager) read(ctx context.Context, a Attachment, limit int64) ([]byte, error) {
	if p.Opener == nil {
		return nil, errors.New("attachment: no opener configured")
	}

	rc, err := p.Opener.Open(ctx, a.URI)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	// One byte past the limit is enough to detect an overflow.
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("attachment: read %s: %w", a.Name, err)
	}
	return data, nil
}

func tooLarge(i int, a Attachment, limit int64) error {
	return chaterr.NewValidation(
		fmt.Sprintf("attachments[%d]", i),
		fmt.Sprintf("%s exceeds the %s limit", a.Name, FormatSize(limit)),
	)
}
