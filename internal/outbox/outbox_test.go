package outbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"aprs-friend-alert/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectSink struct {
	mu   sync.Mutex
	msgs []OutboundMessage
}

func (s *collectSink) Send(ctx context.Context, chatID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, OutboundMessage{ChatID: chatID, Text: text})
}

func (s *collectSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func TestOutboxDeliversToSink(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ob := New(pubSub, logger.NewNopLogger())
	sink := &collectSink{}
	require.NoError(t, ob.Consume(ctx, sink))

	ob.Send(ctx, "1", "hello")
	ob.Send(ctx, "2", "world")
	ob.Send(ctx, "", "dropped")

	assert.Eventually(t, func() bool { return sink.count() == 2 }, 2*time.Second, 10*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.ElementsMatch(t, []OutboundMessage{{ChatID: "1", Text: "hello"}, {ChatID: "2", Text: "world"}}, sink.msgs)
}
