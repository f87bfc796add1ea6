package content

import (
	"strings"

	"github.com/germanamz/chatstream/pkg/chaterr"
)

// Classify determines the kind of a raw part object as decoded from JSON.
// It never fails: objects without a string "type", unrecognised types, and
// recognised types with an invalid shape all classify as KindUnknown.
//
// Tool parts are recognised by a "tool-" type prefix together with a string
// "toolCallId"; a tool-prefixed object without one is unknown.
func Classify(raw map[string]any) Kind {
	kind, _ := classify(raw)
	return kind
}

// Parse converts a raw part object into a typed Part. Objects that do not
// classify are returned as Unknown. When the type was recognised but the shape
// was not, the Unknown part is returned together with a
// *chaterr.MalformedPartError describing the problem; the part is still usable.
func Parse(raw map[string]any) (Part, error) {
	kind, malformed := classify(raw)

	switch kind {
	case KindText:
		return Text{
			Text:  stringField(raw, "text"),
			State: State(stringField(raw, "state")),
		}, nil

	case KindReasoning:
		return Reasoning{
			Text:     stringField(raw, "text"),
			State:    State(stringField(raw, "state")),
			Metadata: metadataField(raw),
		}, nil

	case KindSourceURL:
		return SourceURL{
			SourceID: stringField(raw, "sourceId"),
			URL:      stringField(raw, "url"),
			Title:    stringField(raw, "title"),
		}, nil

	case KindSourceDocument:
		return SourceDocument{
			SourceID:  stringField(raw, "sourceId"),
			MediaType: stringField(raw, "mediaType"),
			Title:     stringField(raw, "title"),
			Filename:  stringField(raw, "filename"),
		}, nil

	case KindFile:
		return File{
			MediaType: stringField(raw, "mediaType"),
			Filename:  stringField(raw, "filename"),
			URL:       stringField(raw, "url"),
		}, nil

	case KindTool:
		executed, _ := raw["providerExecuted"].(bool)
		typ, _ := raw["type"].(string)
		return Tool{
			Name:             ToolName(typ),
			ToolCallID:       stringField(raw, "toolCallId"),
			State:            ToolState(stringField(raw, "state")),
			Input:            cloneValue(raw["input"]),
			Output:           cloneValue(raw["output"]),
			ErrorText:        stringField(raw, "errorText"),
			ProviderExecuted: executed,
		}, nil
	}

	typ, _ := raw["type"].(string)
	u := Unknown{Type: typ, Fields: cloneMap(raw)}
	if malformed != nil {
		return u, malformed
	}

	return u, nil
}

// FromRaw is Parse without the diagnostic error.
func FromRaw(raw map[string]any) Part {
	p, _ := Parse(raw)
	return p
}

func classify(raw map[string]any) (Kind, *chaterr.MalformedPartError) {
	typ, ok := raw["type"].(string)
	if !ok {
		return KindUnknown, nil
	}

	var kind Kind
	switch {
	case typ == string(KindText):
		kind = KindText
	case typ == string(KindReasoning):
		kind = KindReasoning
	case typ == string(KindSourceURL):
		kind = KindSourceURL
	case typ == string(KindSourceDocument):
		kind = KindSourceDocument
	case typ == string(KindFile):
		kind = KindFile
	case strings.HasPrefix(typ, ToolTypePrefix):
		kind = KindTool
	default:
		return KindUnknown, nil
	}

	if reason := checkShape(kind, raw); reason != "" {
		return KindUnknown, &chaterr.MalformedPartError{Type: typ, Reason: reason}
	}

	return kind, nil
}

// checkShape returns a non-empty reason when raw does not have the fields
// its kind requires.
func checkShape(kind Kind, raw map[string]any) string {
	switch kind {
	case KindText:
		return firstProblem(
			optionalString(raw, "text"),
			optionalState(raw),
		)

	case KindReasoning:
		return firstProblem(
			optionalString(raw, "text"),
			optionalState(raw),
		)

	case KindSourceURL:
		return firstProblem(
			requiredString(raw, "sourceId"),
			requiredString(raw, "url"),
			optionalString(raw, "title"),
		)

	case KindSourceDocument:
		return firstProblem(
			requiredString(raw, "sourceId"),
			requiredString(raw, "mediaType"),
			requiredString(raw, "title"),
			optionalString(raw, "filename"),
		)

	case KindFile:
		return firstProblem(
			requiredString(raw, "mediaType"),
			requiredString(raw, "url"),
			optionalString(raw, "filename"),
		)

	case KindTool:
		if p := requiredString(raw, "toolCallId"); p != "" {
			return p
		}
		if v, ok := raw["state"]; ok {
			s, isString := v.(string)
			if !isString || !ToolState(s).Valid() {
				return "state must be a tool lifecycle state"
			}
		}
		return optionalString(raw, "errorText")
	}

	return ""
}

func firstProblem(problems ...string) string {
	for _, p := range problems {
		if p != "" {
			return p
		}
	}
	return ""
}

func requiredString(raw map[string]any, key string) string {
	if _, ok := raw[key].(string); !ok {
		return key + " must be a string"
	}
	return ""
}

func optionalString(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	if _, ok := v.(string); !ok {
		return key + " must be a string"
	}
	return ""
}

func optionalState(raw map[string]any) string {
	v, ok := raw["state"]
	if !ok || v == nil {
		return ""
	}
	switch State(stringOf(v)) {
	case StateStreaming, StateDone:
		return ""
	}
	return "state must be streaming or done"
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func stringField(raw map[string]any, key string) string {
	return stringOf(raw[key])
}

// metadataField reads "providerMetadata", falling back to "metadata".
func metadataField(raw map[string]any) map[string]any {
	if m, ok := raw["providerMetadata"].(map[string]any); ok {
		return cloneMap(m)
	}
	if m, ok := raw["metadata"].(map[string]any); ok {
		return cloneMap(m)
	}
	return nil
}

// ToRaw converts a part back into its wire object. It is the inverse of
// Parse for every typed part; Unknown parts return their original fields.
// File IDs are local and are not included.
func ToRaw(p Part) map[string]any {
	switch v := p.(type) {
	case Text:
		out := map[string]any{"type": v.PartType(), "text": v.Text}
		if v.State != StateNone {
			out["state"] = string(v.State)
		}
		return out

	case Reasoning:
		out := map[string]any{"type": v.PartType(), "text": v.Text}
		if v.State != StateNone {
			out["state"] = string(v.State)
		}
		if v.Metadata != nil {
			out["providerMetadata"] = cloneMap(v.Metadata)
		}
		return out

	case SourceURL:
		out := map[string]any{"type": v.PartType(), "sourceId": v.SourceID, "url": v.URL}
		if v.Title != "" {
			out["title"] = v.Title
		}
		return out

	case SourceDocument:
		out := map[string]any{
			"type":      v.PartType(),
			"sourceId":  v.SourceID,
			"mediaType": v.MediaType,
			"title":     v.Title,
		}
		if v.Filename != "" {
			out["filename"] = v.Filename
		}
		return out

	case File:
		out := map[string]any{"type": v.PartType(), "mediaType": v.MediaType, "url": v.URL}
		if v.Filename != "" {
			out["filename"] = v.Filename
		}
		return out

	case Tool:
		out := map[string]any{"type": v.PartType(), "toolCallId": v.ToolCallID}
		if v.State != "" {
			out["state"] = string(v.State)
		}
		if v.Input != nil {
			out["input"] = cloneValue(v.Input)
		}
		if v.Output != nil {
			out["output"] = cloneValue(v.Output)
		}
		if v.ErrorText != "" {
			out["errorText"] = v.ErrorText
		}
		if v.ProviderExecuted {
			out["providerExecuted"] = true
		}
		return out

	case Unknown:
		out := cloneMap(v.Fields)
		if out == nil {
			out = make(map[string]any)
		}
		out["type"] = v.Type
		return out
	}

	return map[string]any{"type": p.PartType()}
}
