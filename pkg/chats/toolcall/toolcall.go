// Package toolcall tracks the lifecycle of tool calls inside a message.
//
// A tool call has no separate record: its state lives on the tool part of the
// assistant message and every update for the same ToolCallID overwrites that
// part in place. The lifecycle is
//
//	input-streaming* -> input-available? -> output-available | output-error
//
// Any state may be skipped; terminal states accept nothing further.
package toolcall

import (
	"fmt"
	"strings"

	"github.com/germanamz/chatstream/pkg/chats/content"
)

// Policy decides what happens to an update the lifecycle does not allow.
type Policy string

const (
	// Permissive applies the update anyway (last write wins) and reports the
	// violation through the tracker's callback.
	Permissive Policy = "permissive"
	// Strict rejects the update with a *TransitionError.
	Strict Policy = "strict"
)

// ParsePolicy parses a policy name. An empty name is Permissive.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(s)) {
	case "", Permissive:
		return Permissive, nil
	case Strict:
		return Strict, nil
	}
	return "", fmt.Errorf("toolcall: unknown policy %q", s)
}

// TransitionError reports an update that breaks the lifecycle.
type TransitionError struct {
	ToolCallID string
	From       content.ToolState
	To         content.ToolState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("toolcall: %s: invalid transition %s -> %s", e.ToolCallID, e.From, e.To)
}

func rank(s content.ToolState) int {
	switch s {
	case content.ToolInputStreaming:
		return 0
	case content.ToolInputAvailable:
		return 1
	case content.ToolOutputAvailable, content.ToolOutputError:
		return 2
	}
	return -1
}

// CanTransition reports whether a call in state from may move to state to.
// input-streaming may repeat; nothing follows a terminal state.
func CanTransition(from, to content.ToolState) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	if from == content.ToolInputStreaming && to == content.ToolInputStreaming {
		return true
	}
	return rank(to) > rank(from)
}

// Result describes where an update landed.
type Result struct {
	Index    int  // index of the tool part in the returned slice
	Appended bool // true when no part had the update's ToolCallID
	// Violation is set when the update broke the lifecycle but was applied
	// under the permissive policy.
	Violation *TransitionError
}

// Tracker applies tool updates to a message's parts.
// The zero value is a permissive tracker.
type Tracker struct {
	Policy Policy
	// OnViolation, when set, is called for every out-of-protocol update that
	// the permissive policy lets through.
	OnViolation func(*TransitionError)
}

// Apply finds the part with update.ToolCallID and merges the update into it,
// or appends the update as a new part. parts is modified in place when a
// part is replaced; the returned slice must be used in place of parts.
//
// Under the strict policy an invalid transition leaves parts untouched and
// returns a *TransitionError.
func (t *Tracker) Apply(parts []content.Part, update content.Tool) ([]content.Part, Result, error) {
	i := Find(parts, update.ToolCallID)
	if i < 0 {
		if update.State == "" {
			update.State = content.ToolInputStreaming
		}
		parts = append(parts, update)
		return parts, Result{Index: len(parts) - 1, Appended: true}, nil
	}

	current := parts[i].(content.Tool)
	res := Result{Index: i}

	from := current.State
	if from == "" {
		from = content.ToolInputStreaming
	}
	// A payload-only update keeps the current state.
	to := update.State
	if to == "" {
		to = from
	}

	if (update.State != "" || from.Terminal()) && !CanTransition(from, to) {
		terr := &TransitionError{ToolCallID: update.ToolCallID, From: from, To: to}
		if t.Policy == Strict {
			return parts, res, terr
		}
		res.Violation = terr
		if t.OnViolation != nil {
			t.OnViolation(terr)
		}
	}

	parts[i] = Merge(current, update)
	return parts, res, nil
}

// Merge folds update into current. The tool name never changes; State is
// replaced, Input and Output only when the update carries them, ErrorText
// only when non-empty, and ProviderExecuted sticks once set.
func Merge(current, update content.Tool) content.Tool {
	merged := current
	if update.State != "" {
		merged.State = update.State
	}
	if update.Input != nil {
		merged.Input = update.Input
	}
	if update.Output != nil {
		merged.Output = update.Output
	}
	if update.ErrorText != "" {
		merged.ErrorText = update.ErrorText
	}
	merged.ProviderExecuted = current.ProviderExecuted || update.ProviderExecuted
	return merged
}

// Find returns the index of the tool part with the given call id, or -1.
func Find(parts []content.Part, toolCallID string) int {
	for i, p := range parts {
		if tc, ok := p.(content.Tool); ok && tc.ToolCallID == toolCallID {
			return i
		}
	}
	return -1
}

// Pending returns the calls in parts that have not reached a terminal state.
func Pending(parts []content.Part) []content.Tool {
	var out []content.Tool
	for _, p := range parts {
		if tc, ok := p.(content.Tool); ok && !tc.State.Terminal() {
			out = append(out, tc)
		}
	}
	return out
}
