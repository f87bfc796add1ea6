package transport

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/germanamz/chatstream/pkg/chats/content"
	"github.com/germanamz/chatstream/pkg/chats/message"
)

// Request is one chat request as the endpoint receives it.
type Request struct {
	ChatID    string
	Model     string
	Trigger   string
	MessageID string
	Messages  []message.Message
}

type wireMessage struct {
	ID    string           `json:"id"`
	Role  string           `json:"role"`
	Parts []map[string]any `json:"parts"`
}

type wireRequest struct {
	ID        string        `json:"id,omitempty"`
	Model     string        `json:"model,omitempty"`
	Trigger   string        `json:"trigger,omitempty"`
	MessageID string        `json:"messageId,omitempty"`
	Messages  []wireMessage `json:"messages"`
}

// EncodeRequest builds the JSON body for req. Parts are written in their wire
// form; local-only fields such as file ids are dropped.
func EncodeRequest(req Request) ([]byte, error) {
	w := wireRequest{
		ID:        req.ChatID,
		Model:     req.Model,
		Trigger:   req.Trigger,
		MessageID: req.MessageID,
		Messages:  make([]wireMessage, 0, len(req.Messages)),
	}

	for _, m := range req.Messages {
		parts := make([]map[string]any, 0, len(m.Parts))
		for _, p := range m.Parts {
			parts = append(parts, content.ToRaw(p))
		}
		w.Messages = append(w.Messages, wireMessage{ID: m.ID, Role: m.Role.String(), Parts: parts})
	}

	body, err := sonic.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("transport: encode request: %w", err)
	}
	return body, nil
}
