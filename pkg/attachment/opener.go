package attachment

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

// Opener resolves an attachment URI to its bytes.
type Opener interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, uri string) (io.ReadCloser, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	return f(ctx, uri)
}

// FileOpener reads local files. It accepts plain paths and file:// URIs.
type FileOpener struct{}

// Open opens the file behind uri.
func (FileOpener) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	p := uri
	if strings.HasPrefix(uri, "file://") {
		u, err := url.Parse(uri)
		if err != nil {
			return nil, fmt.Errorf("attachment: parse %q: %w", uri, err)
		}
		p = u.Path
	}

	f, err := os.Open(p) //nolint:gosec // path comes from the user's own picker
	if err != nil {
		return nil, fmt.Errorf("attachment: open: %w", err)
	}
	return f, nil
}

// MuxOpener dispatches by URI scheme. URIs without a scheme go to Default.
type MuxOpener struct {
	Schemes map[string]Opener
	Default Opener
}

// Open resolves uri through the opener registered for its scheme.
func (m MuxOpener) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	scheme, _, found := strings.Cut(uri, "://")
	if found {
		if o, ok := m.Schemes[strings.ToLower(scheme)]; ok {
			return o.Open(ctx, uri)
		}
	}

	if m.Default == nil {
		return nil, fmt.Errorf("attachment: no opener for %q", uri)
	}
	return m.Default.Open(ctx, uri)
}
