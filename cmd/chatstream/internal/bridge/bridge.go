package bridge

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/germanamz/chatstream/cmd/chatstream/internal/msgs"
	"github.com/germanamz/chatstream/pkg/aggregator"
)

// Sender delivers messages to the running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// Start launches the change watcher goroutine. It only calls p.Send(), it
// never touches model state directly. The returned function cancels the
// watcher and waits for it to exit, so no stale messages are sent after it
// returns.
func Start(ctx context.Context, p Sender, bus *aggregator.Bus) context.CancelFunc {
	bridgeCtx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	sub := bus.Subscribe(256)

	wg.Go(func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-bridgeCtx.Done():
				return
			case c, ok := <-sub.C:
				if !ok {
					return
				}
				p.Send(msgs.ChangeMsg{Change: c})
			}
		}
	})

	return func() {
		cancel()
		wg.Wait()
	}
}
