package notifications

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charlesng35/authcore/pkg/mail"
)

// ErrQueueFull is returned when the in-process queue cannot accept more emails.
var ErrQueueFull = errors.New("notifications: email queue is full")

// ErrDispatcherClosed is returned by Dispatch after Close.
var ErrDispatcherClosed = errors.New("notifications: dispatcher closed")

// InlineDispatcher delivers emails from a bounded in-process queue using a fixed worker pool.
type InlineDispatcher struct {
	sender  mail.Sender
	timeout time.Duration
	queue   chan mail.Email

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewInlineDispatcher starts workers goroutines draining a queue of queueSize emails.
func NewInlineDispatcher(sender mail.Sender, workers, queueSize int, timeout time.Duration) *InlineDispatcher {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	d := &InlineDispatcher{
		sender:  sender,
		timeout: timeout,
		queue:   make(chan mail.Email, queueSize),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d
}

func (d *InlineDispatcher) work() {
	defer d.wg.Done()
	for email := range d.queue {
		_ = deliver(context.Background(), d.sender, email, DriverInline, d.timeout)
	}
}

// Dispatch enqueues the email without waiting for delivery.
func (d *InlineDispatcher) Dispatch(_ context.Context, email mail.Email) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- email:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting emails and waits for queued ones to be delivered.
func (d *InlineDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SyncDispatcher delivers on the calling goroutine. Delivery errors are logged and
// swallowed so callers observe the same contract as the asynchronous transports.
type SyncDispatcher struct {
	sender  mail.Sender
	timeout time.Duration
}

// NewSyncDispatcher returns a dispatcher that sends immediately.
func NewSyncDispatcher(sender mail.Sender, timeout time.Duration) *SyncDispatcher {
	return &SyncDispatcher{sender: sender, timeout: timeout}
}

func (d *SyncDispatcher) Dispatch(ctx context.Context, email mail.Email) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_ = deliver(context.WithoutCancel(ctx), d.sender, email, DriverSync, d.timeout)
	return nil
}
