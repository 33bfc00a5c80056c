// Package shutdownqueue is a process-wide LIFO queue of named cleanup tasks.
//
// Components register their teardown where they are constructed and main
// drains the queue once on exit:
//
//	db := mustOpenDB()
//	shutdownqueue.Add("postgres", func(context.Context) error { return db.Close() })
//	...
//	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//	defer cancel()
//	err := shutdownqueue.Shutdown(ctx)
//
// Tasks run once, in reverse order of registration, so a consumer stops
// before the store it writes to is closed. Panics are recovered and
// reported as errors.
package shutdownqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Task is a shutdown function. It should honor ctx.
type Task func(ctx context.Context) error

// Hook is told about every task as it finishes. err is nil on success.
type Hook func(name string, err error)

type entry struct {
	name string
	task Task
}

type queue struct {
	mu      sync.Mutex
	entries []entry
	hook    Hook
	closed  bool
}

//nolint:gochecknoglobals
var q = &queue{entries: make([]entry, 0, 8)}

// Add registers a named task. Nil tasks and tasks added once Shutdown has
// started are ignored.
func Add(name string, t Task) {
	if t == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.entries = append(q.entries, entry{name: name, task: t})
}

// OnDone installs a hook called after each task. Used by main to log
// teardown progress.
func OnDone(h Hook) {
	q.mu.Lock()
	q.hook = h
	q.mu.Unlock()
}

// Len reports how many tasks are waiting.
func Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.entries)
}

// Shutdown drains the queue in LIFO order. Calls after the first are no-ops.
//
// If ctx ends mid-drain the remaining tasks are skipped and the context
// error is joined with the task errors collected so far.
func Shutdown(ctx context.Context) error {
	q.mu.Lock()

	if q.closed && len(q.entries) == 0 {
		q.mu.Unlock()

		return nil
	}

	q.closed = true
	entries := q.entries
	hook := q.hook
	q.entries = nil

	q.mu.Unlock()

	var errs []error

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]

		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("shutdown canceled before %s: %w", e.name, ctx.Err()))

			return errors.Join(errs...)
		}

		err := run(ctx, e)
		if hook != nil {
			hook(e.name, err)
		}

		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func run(ctx context.Context, e entry) (err error) {
	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("shutdown %s: panic: %v", e.name, r)
		}
	}()

	err = e.task(ctx)
	if err != nil {
		return fmt.Errorf("shutdown %s: %w", e.name, err)
	}

	return nil
}
