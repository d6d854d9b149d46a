// Package actor provides the minimal actor-runtime abstraction used by the
// room/session engine: each actor owns a private mutable state, reads
// messages from a bounded FIFO mailbox and processes them one at a time.
// Concurrency primitives (goroutines, channels) appear only in this package;
// everything built on top of it is single-threaded from its own point of
// view.
package actor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrStopped is returned by Addr.Send/TrySend once the owning actor has
// terminated (mailbox closed or force-quit).
var ErrStopped = errors.New("actor: stopped")

// ErrMailboxFull is returned by TrySend when the mailbox is at capacity and
// the actor is still alive.
var ErrMailboxFull = errors.New("actor: mailbox full")

// Addr is a cloneable, non-owning handle to an actor's mailbox. Sending on a
// dead actor's address fails; it never panics.
type Addr[M any] struct {
	mailbox chan<- M
	done    <-chan struct{}
}

// Send enqueues msg, blocking until there is room, the actor terminates, or
// ctx is cancelled.
func (a Addr[M]) Send(ctx context.Context, msg M) error {
	if a.mailbox == nil {
		return ErrStopped
	}
	select {
	case <-a.done:
		return ErrStopped
	default:
	}
	select {
	case a.mailbox <- msg:
		return nil
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend enqueues msg without blocking; it reports ErrMailboxFull instead
// of waiting when the mailbox is momentarily saturated.
func (a Addr[M]) TrySend(msg M) error {
	if a.mailbox == nil {
		return ErrStopped
	}
	select {
	case <-a.done:
		return ErrStopped
	default:
	}
	select {
	case a.mailbox <- msg:
		return nil
	case <-a.done:
		return ErrStopped
	default:
		return ErrMailboxFull
	}
}

// Alive reports whether the actor behind this address has not yet
// terminated. It is advisory only: the actor may terminate the instant after
// this returns true.
func (a Addr[M]) Alive() bool {
	select {
	case <-a.done:
		return false
	default:
		return true
	}
}

// NewAddr builds an Addr bound to an existing mailbox and liveness signal.
// It exists for actors whose run loop needs to select across more than one
// event source (e.g. a player multiplexing its socket, its mailbox, and a
// ping ticker) and so cannot use Run's single-source loop directly.
func NewAddr[M any](mailbox chan<- M, done <-chan struct{}) Addr[M] {
	return Addr[M]{mailbox: mailbox, done: done}
}

// Context is handed to an Actor's lifecycle and message-handling methods. It
// exposes the operations an actor is allowed to perform on itself: obtaining
// its own address, spawning background work, and asking the runtime to stop
// the loop after the current message.
type Context[M any] struct {
	self    Addr[M]
	quit    chan struct{}
	quitSet *sync.Once
	logger  *zap.Logger
}

// Addr returns a cloneable sender bound to this actor's mailbox.
func (c *Context[M]) Addr() Addr[M] { return c.self }

// Spawn runs task in a new goroutine. A panic inside task is recovered and
// logged; it never takes the owning actor down with it.
func (c *Context[M]) Spawn(task func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil && c.logger != nil {
				c.logger.Error("actor: spawned task panicked", zap.Any("panic", r))
			}
		}()
		task()
	}()
}

// Delay spawns a task that sleeps for d and then makes one best-effort send
// of msg to this actor's own mailbox. Failure (the actor has since
// terminated) is silently ignored, per the runtime contract.
func (c *Context[M]) Delay(msg M, d time.Duration) {
	self := c.self
	c.Spawn(func() {
		time.Sleep(d)
		_ = self.Send(context.Background(), msg)
	})
}

// ForceQuit causes the actor loop to exit after the current message
// finishes processing; the mailbox is then considered closed to senders.
func (c *Context[M]) ForceQuit() {
	c.quitSet.Do(func() { close(c.quit) })
}

// Actor is implemented by actor state types, almost always through a pointer
// receiver (*Room, *GameServer); M is the actor's message type.
type Actor[M any] interface {
	// Setup runs once before the first message is processed.
	Setup(ctx *Context[M])
	// HandleMessage processes exactly one message; no other message from
	// this actor's own mailbox runs concurrently with it.
	HandleMessage(ctx *Context[M], msg M)
	// TearDown runs once after the loop exits, however it exited.
	TearDown(ctx *Context[M])
}

// Options configures a freshly started actor.
type Options struct {
	// MailboxCapacity bounds the actor's inbox; sends beyond it block
	// (Send) or fail fast (TrySend). Zero means unbuffered.
	MailboxCapacity int
	Logger          *zap.Logger
}

// Run starts state's actor loop on a new goroutine and returns its address.
// The loop runs until ForceQuit is called from within the actor or Stop is
// called on the returned Stopper.
func Run[M any](state Actor[M], opts Options) (Addr[M], Stopper) {
	mailbox := make(chan M, opts.MailboxCapacity)
	done := make(chan struct{})
	quit := make(chan struct{})
	quitSet := &sync.Once{}

	addr := Addr[M]{mailbox: mailbox, done: done}
	ctx := &Context[M]{self: addr, quit: quit, quitSet: quitSet, logger: opts.Logger}

	go func() {
		defer close(done)
		state.Setup(ctx)
	loop:
		for {
			select {
			case <-quit:
				break loop
			case msg, ok := <-mailbox:
				if !ok {
					break loop
				}
				state.HandleMessage(ctx, msg)
			}
		}
		state.TearDown(ctx)
	}()

	return addr, Stopper{quit: quit, quitSet: quitSet, done: done}
}

// NewStopper builds a Stopper for an actor with a custom run loop (see
// NewAddr). quitSet must be the same *sync.Once the actor's own ForceQuit
// path (if any) uses to close quit, so the two can never double-close it.
func NewStopper(quit chan struct{}, quitSet *sync.Once, done <-chan struct{}) Stopper {
	return Stopper{quit: quit, quitSet: quitSet, done: done}
}

// Stopper lets the owner of an actor (as opposed to the actor itself) ask it
// to stop and wait for that to happen; used by tests and by explicit
// shutdown paths.
type Stopper struct {
	quit    chan struct{}
	quitSet *sync.Once
	done    <-chan struct{}
}

// Stop requests termination after the in-flight message, equivalent to the
// actor calling ForceQuit on itself.
func (s Stopper) Stop() {
	s.quitSet.Do(func() { close(s.quit) })
}

// Done is closed once the actor's loop and tear-down have both finished.
func (s Stopper) Done() <-chan struct{} { return s.done }
