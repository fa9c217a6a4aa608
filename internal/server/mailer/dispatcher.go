package mailer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/pxauth/internal/logging"
)

const sendTimeout = 30 * time.Second

type renderer interface {
	Render(name string, ctx map[string]any) (string, error)
}

// Dispatcher is the asynchronous Mailer. Messages go into a bounded queue
// drained by a single worker; when the queue is full the message is dropped
// and counted rather than blocking the caller.
type Dispatcher struct {
	renderer renderer
	sender   Sender
	logger   logging.Logger

	ch      chan Message
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64

	// mu orders enqueues against Close so nothing lands in ch after the
	// worker's final drain.
	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(queueSize int, r renderer, sender Sender, logger logging.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}

	d := &Dispatcher{
		renderer: r,
		sender:   sender,
		logger:   logger.With("module", "mailer"),
		ch:       make(chan Message, queueSize),
		done:     make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.ch:
			d.deliver(msg)
		case <-d.done:
			for {
				select {
				case msg := <-d.ch:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	body, err := d.renderer.Render(msg.Template, msg.Context)
	if err != nil {
		d.logger.Error(ctx, "render mail", "template", msg.Template, "error", err)
		return
	}
	if err := d.sender.Send(ctx, msg.RecipientEmail, msg.Subject, body); err != nil {
		d.logger.Error(ctx, "send mail", "template", msg.Template, "error", err)
		return
	}
	d.logger.Debug(ctx, "mail sent", "template", msg.Template)
}

// SendConfirmation never blocks. Messages that arrive while the queue is full
// or after Close are dropped and counted.
func (d *Dispatcher) SendConfirmation(ctx context.Context, msg Message) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.dropped.Add(1)
		d.logger.Warn(ctx, "mailer closed, message dropped", "template", msg.Template)
		return
	}
	select {
	case d.ch <- msg:
	default:
		d.dropped.Add(1)
		d.logger.Warn(ctx, "mail queue full, message dropped", "template", msg.Template)
	}
}

// Close stops accepting messages and waits for queued ones to be delivered.
// It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.done)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}
