// Package chats provides the data model of a streamed chat conversation.
//
// It is organized into sub-packages:
//   - [github.com/germanamz/chatstream/pkg/chats/role]: conversation roles (system, user, assistant)
//   - [github.com/germanamz/chatstream/pkg/chats/content]: typed message parts and the part classifier
//   - [github.com/germanamz/chatstream/pkg/chats/message]: messages composed of an id, a role, and parts
//   - [github.com/germanamz/chatstream/pkg/chats/chat]: append-mostly conversation container
//   - [github.com/germanamz/chatstream/pkg/chats/extract]: derived views folded from a message's parts
//   - [github.com/germanamz/chatstream/pkg/chats/toolcall]: tool-call lifecycle tracking
//
// No transport or provider code is included. The aggregator package owns a
// conversation built from these types while a response is streaming.
package chats
