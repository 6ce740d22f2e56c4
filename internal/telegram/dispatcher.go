package telegram

import (
	"context"
	"sync"
	"time"

	"aprs-friend-alert/internal/conversation"
)

const (
	defaultQueueSize   = 32
	defaultIdleTimeout = 10 * time.Minute
)

type Handler func(ctx context.Context, msg conversation.Message)

// Dispatcher runs one worker per chat so messages of a chat are handled in
// arrival order while different chats proceed in parallel. Idle workers exit.
type Dispatcher struct {
	handler Handler
	idle    time.Duration

	mu      sync.Mutex
	workers map[string]*chatWorker
	wg      sync.WaitGroup
}

type chatWorker struct {
	queue   chan conversation.Message
	pending int
}

type DispatcherOption func(*Dispatcher)

func WithIdleTimeout(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) { dp.idle = d }
}

func NewDispatcher(handler Handler, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		handler: handler,
		idle:    defaultIdleTimeout,
		workers: make(map[string]*chatWorker),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch queues msg on its chat's worker, starting one if needed. It blocks
// only when that chat's queue is full.
func (d *Dispatcher) Dispatch(ctx context.Context, msg conversation.Message) {
	d.mu.Lock()
	w, ok := d.workers[msg.ChatID]
	if !ok {
		w = &chatWorker{queue: make(chan conversation.Message, defaultQueueSize)}
		d.workers[msg.ChatID] = w
		d.wg.Add(1)
		go d.work(ctx, msg.ChatID, w)
	}
	// pending > 0 keeps the worker from retiring before the send lands.
	w.pending++
	d.mu.Unlock()

	select {
	case w.queue <- msg:
	case <-ctx.Done():
		d.mu.Lock()
		w.pending--
		d.mu.Unlock()
	}
}

func (d *Dispatcher) work(ctx context.Context, chatID string, w *chatWorker) {
	defer d.wg.Done()

	timer := time.NewTimer(d.idle)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			d.retire(chatID, w)
			return
		case msg := <-w.queue:
			d.handler(ctx, msg)
			d.mu.Lock()
			w.pending--
			d.mu.Unlock()
		case <-timer.C:
			d.mu.Lock()
			if w.pending == 0 {
				delete(d.workers, chatID)
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(d.idle)
	}
}

func (d *Dispatcher) retire(chatID string, w *chatWorker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.workers[chatID] == w {
		delete(d.workers, chatID)
	}
}

// Workers reports how many chats currently have a live worker.
func (d *Dispatcher) Workers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}

// Wait blocks until every worker has exited. Cancel the dispatch context first.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
