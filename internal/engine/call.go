package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

func (e *Engine) writerLoop() {
	defer e.wg.Done()
	for j := range e.writeCh {
		start := time.Now()
		e.run(j, e.writeConn)
		e.writerBusyNanos.Add(int64(time.Since(start)))
	}
}

func (e *Engine) readerLoop(w *workerConn) {
	defer e.wg.Done()
	for j := range e.readCh {
		e.run(j, w)
	}
}

func (e *Engine) run(j job, w *workerConn) {
	if j.done == nil {
		_ = j.fn(w)
		return
	}
	// A canceled caller may have already stopped listening; skip running fn
	// and report ctx.Err() instead. The done channel is always buffered(1)
	// by callers, so this send never blocks.
	select {
	case <-j.ctx.Done():
		j.done <- j.ctx.Err()
		return
	default:
	}
	j.done <- j.fn(w)
}

// Call dispatches fn to run exclusively on the writer connection. Every
// mutation in the system goes through here; it is the serialization point
// referenced throughout spec.md as P1.
func (e *Engine) Call(ctx context.Context, fn func(*workerConn) error) error {
	if e.closing.Load() {
		return ErrClosed
	}
	done := make(chan error, 1)
	select {
	case e.writeCh <- job{ctx: ctx, fn: fn, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stop:
		return ErrClosed
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CallReader dispatches fn to any idle reader. With zero configured reader
// threads (or an in-memory database) this falls back to the writer
// connection, per spec.md §4.1.
func (e *Engine) CallReader(ctx context.Context, fn func(*workerConn) error) error {
	if e.closing.Load() {
		return ErrClosed
	}
	done := make(chan error, 1)
	select {
	case e.readCh <- job{ctx: ctx, fn: fn, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stop:
		return ErrClosed
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CallAndForget enqueues fn on the writer queue without waiting for a
// result. This is the only safe way to schedule writer work from inside a
// pre-update hook callback: calling back into the engine synchronously from
// the hook would re-enter SQLite on the same connection and deadlock
// (spec.md §4.5, §9).
func (e *Engine) CallAndForget(fn func(*workerConn) error) {
	if e.closing.Load() {
		return
	}
	select {
	case e.writeCh <- job{fn: fn}:
	default:
		// Writer queue is full; drop rather than block the caller (which,
		// for the realtime manager, is the SQLite callback thread itself).
	}
}

// WriteGuard holds the writer connection exclusively outside the async
// dispatch path, for callers that need to issue a hand-rolled batch of
// statements (e.g. a migration runner) without per-statement round trips
// through Call.
type WriteGuard struct {
	conn    *sql.Conn
	release func()
}

// Conn exposes the held connection.
func (g *WriteGuard) Conn() *sql.Conn { return g.conn }

// Unlock releases the writer back to the dispatch loop.
func (g *WriteGuard) Unlock() { g.release() }

// WriteLock synchronously takes over the writer connection. The writer
// goroutine is paused for the duration of the guard's lifetime by having it
// run a job that blocks until Unlock is called.
func (e *Engine) WriteLock(ctx context.Context) (*WriteGuard, error) {
	acquired := make(chan struct{})
	release := make(chan struct{})
	errCh := make(chan error, 1)

	go func() {
		err := e.Call(ctx, func(w *workerConn) error {
			close(acquired)
			<-release
			return nil
		})
		errCh <- err
	}()

	select {
	case <-acquired:
		return &WriteGuard{
			conn: e.writeConn.Conn(),
			release: func() {
				close(release)
				<-errCh
			},
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// isReadOnlyQuery implements the P2 readonly assertion with the same
// first-token heuristic the teacher's isWriteQuery uses, inverted: anything
// that isn't a recognized mutating verb is allowed through the reader path.
func isReadOnlyQuery(query string) bool {
	q := strings.TrimLeftFunc(query, isSpace)
	upper := strings.ToUpper(q)
	for _, verb := range []string{"INSERT", "UPDATE", "UPSERT", "REPLACE", "DELETE", "ATTACH", "DETACH", "VACUUM", "ALTER", "DROP", "CREATE", "PRAGMA"} {
		if strings.HasPrefix(upper, verb) {
			return false
		}
	}
	return true
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' }

var errNotReadOnly = fmt.Errorf("engine: statement is not readonly")
