package extract

import (
	"encoding/json"
	"testing"

	"github.com/germanamz/chatstream/pkg/attachment"
	"github.com/germanamz/chatstream/pkg/chats/content"
	"github.com/germanamz/chatstream/pkg/chats/message"
	"github.com/germanamz/chatstream/pkg/chats/role"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mixedParts() []content.Part {
	return []content.Part{
		content.Reasoning{Text: "thinking", Metadata: map[string]any{"duration": 2.0}},
		content.Text{Text: "Hello, "},
		content.Tool{Name: "weather", ToolCallID: "c1", State: content.ToolInputAvailable, Input: map[string]any{"city": "Oslo"}},
		content.SourceURL{SourceID: "s1", URL: "https://go.dev", Title: "Go"},
		content.Unknown{Type: "step-start"},
		content.Text{Text: "world", State: content.StateDone},
		content.File{MediaType: "image/png", URL: "https://x/a.png"},
		content.SourceDocument{SourceID: "s2", MediaType: "application/pdf"},
	}
}

func TestText(t *testing.T) {
	assert.Equal(t, "Hello, world", Text(mixedParts()))
	assert.Empty(t, Text(nil))
	assert.Empty(t, Text([]content.Part{content.Reasoning{Text: "x"}}))
}

func TestText_IndependentOfInterleaving(t *testing.T) {
	parts := mixedParts()
	var onlyText []content.Part
	for _, p := range parts {
		if p.PartKind() == content.KindText {
			onlyText = append(onlyText, p)
		}
	}

	assert.Equal(t, Text(onlyText), Text(parts))
}

func TestReasoning_First(t *testing.T) {
	parts := []content.Part{
		content.Reasoning{Text: "one", Metadata: map[string]any{"latencyMs": 1200.0}},
		content.Text{Text: "x"},
		content.Reasoning{Text: "two", Metadata: map[string]any{"duration": 5.0}},
	}

	r := Reasoning(parts)

	require.NotNil(t, r)
	assert.Equal(t, "one", r.Content)
	assert.Equal(t, 1.2, r.Duration)
}

func TestReasoning_Merge(t *testing.T) {
	parts := []content.Part{
		content.Reasoning{Text: "one"},
		content.Reasoning{Text: "two", Metadata: map[string]any{"duration": "3s"}},
	}

	r := Reasoning(parts, WithReasoningPolicy(ReasoningMerge))

	require.NotNil(t, r)
	assert.Equal(t, "one\n\ntwo", r.Content)
	assert.Equal(t, "3s", r.Duration)
}

func TestReasoning_None(t *testing.T) {
	assert.Nil(t, Reasoning([]content.Part{content.Text{Text: "hi"}}))
}

func TestReasoning_Duration(t *testing.T) {
	cases := []struct {
		meta map[string]any
		want any
	}{
		{nil, nil},
		{map[string]any{}, nil},
		{map[string]any{"duration": 4}, 4.0},
		{map[string]any{"duration": "4s"}, "4s"},
		{map[string]any{"duration": json.Number("2.5")}, 2.5},
		{map[string]any{"duration": true, "latencyMs": 900.0}, 0.9},
		{map[string]any{"latencyMs": 1500}, 1.5},
		{map[string]any{"latencyMs": "900"}, nil},
		{map[string]any{"duration": 1.0, "latencyMs": 900.0}, 1.0},
	}

	for _, tc := range cases {
		r := Reasoning([]content.Part{content.Reasoning{Text: "r", Metadata: tc.meta}})
		require.NotNil(t, r)
		assert.Equal(t, tc.want, r.Duration, "%v", tc.meta)
	}
}

func TestReasoningBlocks(t *testing.T) {
	blocks := ReasoningBlocks([]content.Part{content.Reasoning{Text: "a"}, content.Reasoning{Text: "b"}})
	assert.Equal(t, []ReasoningData{{Content: "a"}, {Content: "b"}}, blocks)
}

func TestParseReasoningPolicy(t *testing.T) {
	p, err := ParseReasoningPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ReasoningFirst, p)

	p, err = ParseReasoningPolicy("Merge")
	require.NoError(t, err)
	assert.Equal(t, ReasoningMerge, p)

	_, err = ParseReasoningPolicy("all")
	assert.Error(t, err)
}

func TestSources(t *testing.T) {
	sources := Sources(mixedParts())

	assert.Equal(t, []SourceData{
		{Href: "https://go.dev", Title: "Go", SourceID: "s1"},
		{Title: DefaultSourceTitle, SourceID: "s2"},
	}, sources)
}

func TestAttachments(t *testing.T) {
	parts := []content.Part{
		content.File{ID: "durable", MediaType: "image/png", Filename: "a.png", URL: "u1"},
		content.Text{Text: "between"},
		content.File{URL: "u2"},
	}

	atts := Attachments(parts)

	assert.Equal(t, []attachment.Attachment{
		{ID: "durable", Name: "a.png", MimeType: "image/png", URI: "u1"},
		{ID: "att-1", Name: "Attachment 2", MimeType: attachment.MIMEOctetStream, URI: "u2"},
	}, atts)
}

func TestToolCalls(t *testing.T) {
	calls := ToolCalls(mixedParts())

	require.Len(t, calls, 1)
	assert.Equal(t, ToolCall{
		Name:       "weather",
		ToolCallID: "c1",
		State:      content.ToolInputAvailable,
		Input:      map[string]any{"city": "Oslo"},
	}, calls[0])
}

func TestListExtractors_IdempotentAndPrefixStable(t *testing.T) {
	parts := mixedParts()

	assert.Equal(t, Sources(parts), Sources(parts))
	assert.Equal(t, Attachments(parts), Attachments(parts))
	assert.Equal(t, ToolCalls(parts), ToolCalls(parts))

	extended := append(append([]content.Part{}, parts...), content.Text{Text: "more"}, content.Unknown{Type: "data-x"})

	assert.Equal(t, Sources(parts), Sources(extended)[:len(Sources(parts))])
	assert.Equal(t, Attachments(parts), Attachments(extended)[:len(Attachments(parts))])
	assert.Equal(t, ToolCalls(parts), ToolCalls(extended)[:len(ToolCalls(parts))])
}

func TestListExtractors_PrefixWhenMatchingAppended(t *testing.T) {
	parts := mixedParts()
	extended := append(append([]content.Part{}, parts...),
		content.SourceURL{SourceID: "s3", URL: "https://example.com"},
		content.File{URL: "u3"},
		content.Tool{Name: "search", ToolCallID: "c2", State: content.ToolInputStreaming},
	)

	assert.Equal(t, Sources(parts), Sources(extended)[:len(Sources(parts))])
	assert.Equal(t, Attachments(parts), Attachments(extended)[:len(Attachments(parts))])
	assert.Equal(t, ToolCalls(parts), ToolCalls(extended)[:len(ToolCalls(parts))])
}

func TestBuild(t *testing.T) {
	msg := message.New("a1", role.Assistant, mixedParts()...)

	v := Build(msg)

	assert.Equal(t, "Hello, world", v.Text)
	require.NotNil(t, v.Reasoning)
	assert.Equal(t, 2.0, v.Reasoning.Duration)
	assert.Len(t, v.Sources, 2)
	assert.Len(t, v.Attachments, 1)
	assert.Len(t, v.ToolCalls, 1)
}

func TestBuild_EmptyMessage(t *testing.T) {
	v := Build(message.New("a1", role.Assistant))

	assert.Equal(t, View{}, v)
}
