// Package uiexec serializes document and annotation work onto a single
// goroutine, standing in for the host platform's UI thread. Everything
// submitted runs in submission order, so a render pass observes no
// concurrent document mutation.
package uiexec

import (
	"fmt"
	"sync"

	"pkt.systems/inlined/schema"
)

type item struct {
	fn    func() error
	reply chan error
}

// Executor is the single-threaded work queue. Zero value is not usable;
// construct with New.
type Executor struct {
	work chan item
	done chan struct{}
	once sync.Once
}

// New starts the executor goroutine.
func New() *Executor {
	e := &Executor{
		work: make(chan item, 128),
		done: make(chan struct{}),
	}
	go e.loop()
	return e
}

func (e *Executor) loop() {
	for {
		select {
		case <-e.done:
			return
		case it := <-e.work:
			err := run(it.fn)
			if it.reply != nil {
				it.reply <- err
			}
		}
	}
}

// Sync submits fn and blocks until it ran, returning its error. Calling
// Sync from inside submitted work deadlocks; collaborators are documented
// accordingly. After Close it fails with ErrExecutorClosed.
func (e *Executor) Sync(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case e.work <- item{fn: fn, reply: reply}:
	case <-e.done:
		return schema.ErrExecutorClosed
	}
	select {
	case err := <-reply:
		return err
	case <-e.done:
		return schema.ErrExecutorClosed
	}
}

// Async enqueues fn and returns without waiting. Work enqueued after
// Close is dropped.
func (e *Executor) Async(fn func()) {
	select {
	case e.work <- item{fn: func() error { fn(); return nil }}:
	case <-e.done:
	}
}

// Close stops the executor. Queued work that has not started is dropped.
func (e *Executor) Close() {
	e.once.Do(func() { close(e.done) })
}

// run shields the executor goroutine from panicking work.
func run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ui work panic: %v", r)
		}
	}()
	return fn()
}
