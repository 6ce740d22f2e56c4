package telegram

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"aprs-friend-alert/internal/conversation"

	"github.com/stretchr/testify/assert"
)

type handled struct {
	mu   sync.Mutex
	byID map[string][]string
}

func (h *handled) record(ctx context.Context, msg conversation.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byID[msg.ChatID] = append(h.byID[msg.ChatID], msg.Text)
}

func (h *handled) total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, v := range h.byID {
		n += len(v)
	}
	return n
}

func TestDispatcherKeepsPerChatOrder(t *testing.T) {
	h := &handled{byID: make(map[string][]string)}
	ctx, cancel := context.WithCancel(context.Background())
	d := NewDispatcher(h.record)

	for i := 0; i < 50; i++ {
		for _, chat := range []string{"a", "b", "c"} {
			d.Dispatch(ctx, conversation.Message{ChatID: chat, Text: strconv.Itoa(i)})
		}
	}

	assert.Eventually(t, func() bool { return h.total() == 150 }, 2*time.Second, 5*time.Millisecond)

	h.mu.Lock()
	for _, chat := range []string{"a", "b", "c"} {
		got := h.byID[chat]
		for i, text := range got {
			assert.Equal(t, strconv.Itoa(i), text, "chat %s", chat)
		}
	}
	h.mu.Unlock()

	cancel()
	d.Wait()
	assert.Equal(t, 0, d.Workers())
}

func TestDispatcherRunsChatsInParallel(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 2)

	handler := func(ctx context.Context, msg conversation.Message) {
		started <- msg.ChatID
		<-release
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := NewDispatcher(handler)

	d.Dispatch(ctx, conversation.Message{ChatID: "a"})
	d.Dispatch(ctx, conversation.Message{ChatID: "b"})

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-started:
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("chats did not run in parallel")
		}
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true}, got)
	close(release)
}

func TestDispatcherRetiresIdleWorkers(t *testing.T) {
	h := &handled{byID: make(map[string][]string)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := NewDispatcher(h.record, WithIdleTimeout(20*time.Millisecond))

	d.Dispatch(ctx, conversation.Message{ChatID: "a", Text: "1"})
	assert.Eventually(t, func() bool { return d.Workers() == 0 }, 2*time.Second, 5*time.Millisecond)

	d.Dispatch(ctx, conversation.Message{ChatID: "a", Text: "2"})
	assert.Eventually(t, func() bool { return h.total() == 2 }, 2*time.Second, 5*time.Millisecond)

	h.mu.Lock()
	assert.Equal(t, []string{"1", "2"}, h.byID["a"])
	h.mu.Unlock()
}
