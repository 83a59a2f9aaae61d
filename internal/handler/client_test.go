package handler

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/weiawesome/chatter/internal/domain"
	"github.com/weiawesome/chatter/internal/ident"
	"github.com/weiawesome/chatter/internal/realtime"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	return NewClient("client-1", nil, testWSConfig(), realtime.NewBroker(), ident.EntryIDs())
}

func TestSendMessageAfterCloseSend(t *testing.T) {
	c := newTestClient(t)

	c.CloseSend()
	require.NoError(t, c.SendMessage(domain.NewErrorMessage(domain.ErrCodeInternalError, "late")))

	// Nothing was queued on the closed channel.
	_, open := <-c.Send
	require.False(t, open)
}

func TestCloseSendIsIdempotent(t *testing.T) {
	c := newTestClient(t)
	c.CloseSend()
	c.CloseSend()
}

func TestSendMessageRacesCloseSend(t *testing.T) {
	// Observer callbacks keep queueing on the realtime dispatch goroutine
	// while the read pump tears the connection down; neither side may
	// panic on the other.
	for i := 0; i < 200; i++ {
		c := newTestClient(t)

		var wg sync.WaitGroup
		start := make(chan struct{})
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				<-start
				for n := 0; n < 10; n++ {
					c.SendMessage(map[string]string{"type": "window", "n": fmt.Sprint(g, n)})
				}
			}(g)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			c.CloseSend()
		}()

		close(start)
		wg.Wait()
	}
}

func TestSendMessageDropsWhenQueueFull(t *testing.T) {
	c := newTestClient(t)

	// No write pump draining: fill the queue past capacity.
	for i := 0; i < cap(c.Send)+10; i++ {
		require.NoError(t, c.SendMessage(map[string]string{"type": "window"}))
	}
	require.Len(t, c.Send, cap(c.Send))
}
