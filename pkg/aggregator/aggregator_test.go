package aggregator

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/germanamz/chatstream/pkg/attachment"
	"github.com/germanamz/chatstream/pkg/chaterr"
	"github.com/germanamz/chatstream/pkg/chats/content"
	"github.com/germanamz/chatstream/pkg/chats/extract"
	"github.com/germanamz/chatstream/pkg/chats/message"
	"github.com/germanamz/chatstream/pkg/chats/role"
	"github.com/germanamz/chatstream/pkg/chats/toolcall"
	"github.com/germanamz/chatstream/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestAggregator(opts ...Option) *Aggregator {
	return New(append([]Option{WithIDGenerator(seqIDs())}, opts...)...)
}

func textDelta(s string) stream.Event {
	return stream.NewChunk(content.Text{Text: s, State: content.StateStreaming})
}

func mustIngest(t *testing.T, a *Aggregator, events ...stream.Event) {
	t.Helper()
	for _, ev := range events {
		require.NoError(t, a.Ingest(ev))
	}
}

func TestAggregator_NormalRoundTrip(t *testing.T) {
	a := newTestAggregator()
	assert.Equal(t, StatusReady, a.Status())

	req, err := a.AppendUserMessage("hi", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, a.Status())
	assert.Equal(t, TriggerSubmit, req.Trigger)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, req.MessageID, req.Messages[0].ID)

	mustIngest(t, a, textDelta("Hel"))
	assert.Equal(t, StatusStreaming, a.Status())

	mustIngest(t, a, textDelta("lo"), stream.NewDone())
	assert.Equal(t, StatusReady, a.Status())

	msgs := a.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, role.Assistant, msgs[1].Role)
	assert.Equal(t, []content.Part{content.Text{Text: "Hello", State: content.StateDone}}, msgs[1].Parts)
}

func TestAggregator_FailureRetryRoundTrip(t *testing.T) {
	a := newTestAggregator()
	_, err := a.AppendUserMessage("hi", nil)
	require.NoError(t, err)

	a.ReportError(chaterr.NewTransport("post", errors.New("connection reset")))
	assert.Equal(t, StatusError, a.Status())
	assert.Equal(t, "connection reset", a.ErrorMessage())
	assert.Len(t, a.Messages(), 1)

	req, err := a.Retry()
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, a.Status())
	assert.Equal(t, a.Messages()[0].ID, req.MessageID)
	assert.NoError(t, a.Err())
}

func TestAggregator_ErrorIsNotAutoCleared(t *testing.T) {
	a := newTestAggregator()
	_, _ = a.AppendUserMessage("hi", nil)
	a.ReportError(errors.New("boom"))

	_, err := a.AppendUserMessage("again", nil)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, a.Ingest(textDelta("x")), ErrNotInFlight)
	assert.Equal(t, StatusError, a.Status())

	a.ClearError()
	assert.Equal(t, StatusReady, a.Status())
	assert.Empty(t, a.ErrorMessage())
}

func TestAggregator_RetryDropsPartialAnswer(t *testing.T) {
	a := newTestAggregator()
	_, _ = a.AppendUserMessage("hi", nil)
	mustIngest(t, a, textDelta("partial"))

	mustIngest(t, a, stream.NewError(errors.New("stream broke")))
	require.Equal(t, StatusError, a.Status())

	msgs := a.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, content.Text{Text: "partial", State: content.StateDone}, msgs[1].Parts[0])

	_, err := a.Retry()
	require.NoError(t, err)
	assert.Len(t, a.Messages(), 1)
}

func TestAggregator_RetryOutsideError(t *testing.T) {
	a := newTestAggregator()

	_, err := a.Retry()
	assert.ErrorIs(t, err, ErrNothingToRetry)
}

func TestAggregator_EmptyMessageRejected(t *testing.T) {
	a := newTestAggregator()

	_, err := a.AppendUserMessage("", nil)
	assert.True(t, chaterr.IsValidation(err))

	_, err = a.AppendUserMessage("  \n\t", []attachment.Attachment{})
	assert.True(t, chaterr.IsValidation(err))

	assert.Equal(t, 0, a.Len())
	assert.Equal(t, StatusReady, a.Status())
}

func TestAggregator_AttachmentOnlyAccepted(t *testing.T) {
	a := newTestAggregator()
	img := attachment.Attachment{Name: "cat.jpg", MimeType: "image/jpeg", URI: "file:///cat.jpg", Size: 10}

	_, err := a.AppendUserMessage("", []attachment.Attachment{img})
	require.NoError(t, err)

	msgs := a.Messages()
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Parts, 1)
	f := msgs[0].Parts[0].(content.File)
	assert.Equal(t, "image/jpeg", f.MediaType)
	assert.NotEmpty(t, f.ID)
}

func TestAggregator_SubmitWhileBusy(t *testing.T) {
	a := newTestAggregator()
	_, _ = a.AppendUserMessage("one", nil)

	_, err := a.AppendUserMessage("two", nil)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.True(t, a.Busy())
	assert.False(t, a.CanSubmit("two", 0))
}

func TestAggregator_CanSubmit(t *testing.T) {
	a := newTestAggregator()

	assert.False(t, a.CanSubmit(" ", 0))
	assert.True(t, a.CanSubmit("", 1))
	assert.True(t, a.CanSubmit("hi", 0))
}

func TestAggregator_IngestWhenIdle(t *testing.T) {
	a := newTestAggregator()

	assert.ErrorIs(t, a.Ingest(textDelta("x")), ErrNotInFlight)
	assert.Equal(t, 0, a.Len())
}

func TestAggregator_UsesProviderMessageID(t *testing.T) {
	a := newTestAggregator()
	_, _ = a.AppendUserMessage("hi", nil)

	ev := textDelta("x")
	ev.MessageID = "msg-provider"
	mustIngest(t, a, ev)

	last, ok := a.LastAssistant()
	require.True(t, ok)
	assert.Equal(t, "msg-provider", last.ID)
	assert.Equal(t, "x", extract.Text(last.Parts))
}

func TestAggregator_OpenPartLifecycle(t *testing.T) {
	a := newTestAggregator()
	_, _ = a.AppendUserMessage("hi", nil)

	mustIngest(t, a,
		stream.NewChunk(content.Reasoning{State: content.StateStreaming}),
		stream.NewChunk(content.Reasoning{Text: "let me ", State: content.StateStreaming}),
		stream.NewChunk(content.Reasoning{Text: "think", State: content.StateStreaming}),
		stream.NewChunk(content.Reasoning{State: content.StateDone, Metadata: map[string]any{"duration": 2.0}}),
		stream.NewChunk(content.Text{State: content.StateStreaming}),
		textDelta("answer"),
		stream.NewChunk(content.Text{State: content.StateDone}),
		textDelta("second block"),
		stream.NewDone(),
	)

	parts := a.Messages()[1].Parts
	require.Len(t, parts, 3)
	assert.Equal(t, content.Reasoning{Text: "let me think", State: content.StateDone, Metadata: map[string]any{"duration": 2.0}}, parts[0])
	assert.Equal(t, content.Text{Text: "answer", State: content.StateDone}, parts[1])
	assert.Equal(t, content.Text{Text: "second block", State: content.StateDone}, parts[2])
}

func TestAggregator_DifferentPartClosesOpenPart(t *testing.T) {
	a := newTestAggregator()
	_, _ = a.AppendUserMessage("hi", nil)

	mustIngest(t, a,
		textDelta("before"),
		stream.NewChunk(content.SourceURL{SourceID: "s", URL: "https://go.dev"}),
		textDelta("after"),
	)

	parts := a.Messages()[1].Parts
	require.Len(t, parts, 3)
	assert.Equal(t, content.Text{Text: "before", State: content.StateDone}, parts[0])
	assert.Equal(t, content.Text{Text: "after", State: content.StateStreaming}, parts[2])
}

func TestAggregator_ToolFindOrReplace(t *testing.T) {
	a := newTestAggregator()
	_, _ = a.AppendUserMessage("weather?", nil)

	mustIngest(t, a,
		stream.NewToolUpdate(content.Tool{Name: "lookup", ToolCallID: "1", State: content.ToolInputStreaming}),
		textDelta("checking"),
		stream.NewToolUpdate(content.Tool{Name: "lookup", ToolCallID: "1", State: content.ToolInputAvailable, Input: map[string]any{"q": 1.0}}),
		stream.NewToolUpdate(content.Tool{ToolCallID: "1", State: content.ToolOutputAvailable, Output: map[string]any{"r": 2.0}}),
		stream.NewDone(),
	)

	snap := a.Snapshot()
	calls := snap.Rows[1].View.ToolCalls
	require.Len(t, calls, 1)
	assert.Equal(t, "lookup", calls[0].Name)
	assert.Equal(t, content.ToolOutputAvailable, calls[0].State)
	assert.Equal(t, map[string]any{"q": 1.0}, calls[0].Input)
	assert.Equal(t, map[string]any{"r": 2.0}, calls[0].Output)
	assert.Len(t, snap.Rows[1].Message.Parts, 2)
}

func TestAggregator_PermissiveToolViolationLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	a := newTestAggregator(WithLogger(zap.New(core)))
	_, _ = a.AppendUserMessage("hi", nil)

	mustIngest(t, a,
		stream.NewToolUpdate(content.Tool{Name: "x", ToolCallID: "1", State: content.ToolOutputAvailable, Output: "a"}),
		stream.NewToolUpdate(content.Tool{Name: "x", ToolCallID: "1", State: content.ToolOutputAvailable, Output: "b"}),
	)

	assert.Equal(t, StatusStreaming, a.Status())
	assert.Equal(t, "b", extract.ToolCalls(a.Messages()[1].Parts)[0].Output)
	assert.Equal(t, 1, logs.FilterMessage("out-of-protocol tool update").Len())
}

func TestAggregator_StrictToolViolationReportsError(t *testing.T) {
	a := newTestAggregator(WithToolPolicy(toolcall.Strict))
	_, _ = a.AppendUserMessage("hi", nil)

	mustIngest(t, a,
		stream.NewToolUpdate(content.Tool{Name: "x", ToolCallID: "1", State: content.ToolOutputError, ErrorText: "e"}),
		stream.NewToolUpdate(content.Tool{Name: "x", ToolCallID: "1", State: content.ToolInputStreaming}),
	)

	assert.Equal(t, StatusError, a.Status())
	var terr *toolcall.TransitionError
	assert.ErrorAs(t, a.Err(), &terr)
	assert.Equal(t, content.ToolOutputError, extract.ToolCalls(a.Messages()[1].Parts)[0].State)
}

func TestAggregator_FilePartsGetDurableIDs(t *testing.T) {
	a := newTestAggregator()
	_, _ = a.AppendUserMessage("draw", nil)

	mustIngest(t, a,
		stream.NewChunk(content.File{MediaType: "image/png", URL: "https://x/1.png"}),
		stream.NewChunk(content.File{MediaType: "image/png", URL: "https://x/2.png"}),
	)

	atts := a.Snapshot().Rows[1].View.Attachments
	require.Len(t, atts, 2)
	assert.NotEqual(t, atts[0].ID, atts[1].ID)
	assert.NotContains(t, atts[0].ID, "att-")
}

func TestAggregator_UnknownPartsPreserved(t *testing.T) {
	a := newTestAggregator()
	_, _ = a.AppendUserMessage("hi", nil)

	ev := stream.NewChunk(content.Unknown{Type: "file", Fields: map[string]any{"type": "file"}})
	ev.Err = &chaterr.MalformedPartError{Type: "file", Reason: "missing url"}
	mustIngest(t, a, ev, textDelta("ok"), stream.NewDone())

	row := a.Snapshot().Rows[1]
	assert.Len(t, row.Message.Parts, 2)
	assert.Equal(t, "ok", row.View.Text)
	assert.Empty(t, row.View.Attachments)
	assert.Equal(t, StatusReady, a.Status())
}

func TestAggregator_EndStreamTolerantOfCancel(t *testing.T) {
	a := newTestAggregator()
	_, _ = a.AppendUserMessage("hi", nil)
	mustIngest(t, a, textDelta("half"))

	a.EndStream()

	assert.Equal(t, StatusReady, a.Status())
	assert.Equal(t, content.Text{Text: "half", State: content.StateDone}, a.Messages()[1].Parts[0])

	// Ignored when idle.
	a.EndStream()
	assert.Equal(t, StatusReady, a.Status())
}

func TestAggregator_EndStreamWithoutEvents(t *testing.T) {
	a := newTestAggregator()
	_, _ = a.AppendUserMessage("hi", nil)

	a.EndStream()

	assert.Equal(t, StatusReady, a.Status())
	assert.Equal(t, 1, a.Len())
}

func TestAggregator_DanglingToolCallsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	a := newTestAggregator(WithLogger(zap.New(core)))
	_, _ = a.AppendUserMessage("hi", nil)

	mustIngest(t, a,
		stream.NewToolUpdate(content.Tool{Name: "x", ToolCallID: "c1", State: content.ToolInputAvailable}),
		stream.NewDone(),
	)

	entries := logs.FilterMessage("stream ended with unfinished tool calls").All()
	require.Len(t, entries, 1)
	assert.Equal(t, []any{"c1"}, entries[0].ContextMap()["tool_call_ids"])
}

func roundTrip(t *testing.T, a *Aggregator, user, answer string) {
	t.Helper()
	_, err := a.AppendUserMessage(user, nil)
	require.NoError(t, err)
	mustIngest(t, a, textDelta(answer), stream.NewDone())
}

func TestAggregator_Regenerate(t *testing.T) {
	a := newTestAggregator()
	roundTrip(t, a, "q1", "a1")
	roundTrip(t, a, "q2", "a2")

	req, ok := a.Regenerate()

	require.True(t, ok)
	assert.Equal(t, TriggerRegenerate, req.Trigger)
	assert.Equal(t, StatusSubmitted, a.Status())

	msgs := a.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "q2", extract.Text(msgs[2].Parts))
	assert.Equal(t, msgs[2].ID, req.MessageID)
	assert.Len(t, req.Messages, 3)
	// Only the final assistant message was removed.
	assert.Equal(t, "a1", extract.Text(msgs[1].Parts))
}

func TestAggregator_RegenerateNoOps(t *testing.T) {
	a := newTestAggregator()

	_, ok := a.Regenerate()
	assert.False(t, ok, "no assistant message yet")

	_, _ = a.AppendUserMessage("q", nil)
	_, ok = a.Regenerate()
	assert.False(t, ok, "request in flight")
	assert.Equal(t, StatusSubmitted, a.Status())
}

func TestAggregator_RegenerateFromErrorKeepsNonFinalAssistant(t *testing.T) {
	a := newTestAggregator()
	roundTrip(t, a, "q1", "a1")
	_, _ = a.AppendUserMessage("q2", nil)
	a.ReportError(errors.New("down"))

	req, ok := a.Regenerate()

	require.True(t, ok)
	msgs := a.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "a1", extract.Text(msgs[1].Parts))
	assert.Equal(t, msgs[2].ID, req.MessageID)
}

func TestAggregator_SnapshotRows(t *testing.T) {
	a := newTestAggregator()
	roundTrip(t, a, "q1", "a1")
	_, _ = a.AppendUserMessage("q2", nil)
	mustIngest(t, a, textDelta("streaming"))

	snap := a.Snapshot()

	assert.Equal(t, StatusStreaming, snap.Status)
	require.Len(t, snap.Rows, 4)
	last := snap.Rows[3]
	assert.True(t, last.IsLastAssistant)
	assert.False(t, last.ShowActions)
	assert.False(t, last.CanRegenerate)
	assert.Equal(t, 3, last.Index)

	assert.False(t, snap.Rows[1].IsLastAssistant)
	assert.True(t, snap.Rows[1].ShowActions)

	mustIngest(t, a, stream.NewDone())
	last = a.Snapshot().Rows[3]
	assert.True(t, last.ShowActions)
	assert.True(t, last.CanRegenerate)
	lastMsg, ok := a.LastAssistant()
	require.True(t, ok)
	assert.Equal(t, snap.Rows[3].Message.ID, lastMsg.ID)
}

func TestAggregator_SnapshotIsDeepCopy(t *testing.T) {
	a := newTestAggregator()
	_, _ = a.AppendUserMessage("hi", nil)
	mustIngest(t, a, stream.NewToolUpdate(content.Tool{Name: "x", ToolCallID: "1", State: content.ToolInputAvailable, Input: map[string]any{"q": 1.0}}))

	snap := a.Snapshot()
	snap.Rows[1].Message.Parts[0].(content.Tool).Input.(map[string]any)["q"] = 99.0
	snap.Rows[0].Message.Parts[0] = content.Text{Text: "tampered"}

	msgs := a.Messages()
	assert.Equal(t, 1.0, msgs[1].Parts[0].(content.Tool).Input.(map[string]any)["q"])
	assert.Equal(t, "hi", extract.Text(msgs[0].Parts))
}

func TestAggregator_WithHistory(t *testing.T) {
	hist := []message.Message{
		message.NewText("u0", role.User, "earlier"),
		message.NewText("a0", role.Assistant, "reply"),
	}
	a := newTestAggregator(WithHistory(hist...))

	assert.Equal(t, 2, a.Len())
	last, ok := a.LastAssistant()
	require.True(t, ok)
	assert.Equal(t, "a0", last.ID)

	_, ok = a.Regenerate()
	assert.True(t, ok)
}

func TestAggregator_PublishesChanges(t *testing.T) {
	a := newTestAggregator()
	sub := a.Bus().Subscribe(32)
	defer a.Bus().Unsubscribe(sub)

	roundTrip(t, a, "q", "a")

	var kinds []ChangeKind
	for len(sub.C) > 0 {
		kinds = append(kinds, (<-sub.C).Kind)
	}

	assert.Equal(t, []ChangeKind{
		ChangeMessageAdded,   // user message
		ChangeStatus,         // submitted
		ChangeMessageAdded,   // assistant message
		ChangeStatus,         // streaming
		ChangeMessageUpdated, // delta
		ChangeMessageUpdated, // commit
		ChangeStatus,         // ready
	}, kinds)
}

func TestAggregator_ConcurrentSnapshots(t *testing.T) {
	a := newTestAggregator()
	_, _ = a.AppendUserMessage("hi", nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 100 {
			_ = a.Snapshot()
		}
	}()

	for i := range 100 {
		require.NoError(t, a.Ingest(textDelta(fmt.Sprint(i%10))))
	}
	wg.Wait()

	assert.Len(t, extract.Text(a.Messages()[1].Parts), 100)
}

func TestAggregator_LastAssistantNone(t *testing.T) {
	a := newTestAggregator()
	_, _ = a.AppendUserMessage("hi", nil)

	_, ok := a.LastAssistant()
	assert.False(t, ok)
}

func TestAggregator_LastAssistantIsCopy(t *testing.T) {
	a := newTestAggregator()
	_, _ = a.AppendUserMessage("hi", nil)
	mustIngest(t, a, textDelta("answer"), stream.NewDone())

	last, ok := a.LastAssistant()
	require.True(t, ok)
	last.Parts[0] = content.Text{Text: "tampered"}

	again, _ := a.LastAssistant()
	assert.Equal(t, "answer", extract.Text(again.Parts))
}

func TestAggregator_Reset(t *testing.T) {
	a := newTestAggregator()
	_, _ = a.AppendUserMessage("hi", nil)

	assert.ErrorIs(t, a.Reset(), ErrNotReady)

	mustIngest(t, a, textDelta("partial"))
	a.ReportError(errors.New("boom"))

	sub := a.Bus().Subscribe(16)
	defer a.Bus().Unsubscribe(sub)

	require.NoError(t, a.Reset())

	assert.Equal(t, 0, a.Len())
	assert.Equal(t, StatusReady, a.Status())
	assert.NoError(t, a.Err())
	assert.Empty(t, a.ErrorMessage())

	var removed int
	for len(sub.C) > 0 {
		if c := <-sub.C; c.Kind == ChangeMessageRemoved {
			removed++
		}
	}
	assert.Equal(t, 2, removed)

	_, err := a.AppendUserMessage("again", nil)
	assert.NoError(t, err)
}
