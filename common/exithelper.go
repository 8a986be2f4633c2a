/*
	Copyright (c) 2022 R. van Twisk
	Copyright (c) 2024 The nmearouter Authors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	exithelper.go: stop a group of goroutines and wait until all of them returned.
*/

package common

import (
	"sync"

	"github.com/tevino/abool/v2"
)

// ExitHelper coordinates the shutdown of the goroutines of one component.
// Each goroutine registers with Add, watches the returned channel and calls
// Done when it returns. Exit closes the channel, waits for all registered
// goroutines and re-arms the helper so the component can be started again.
type ExitHelper struct {
	c chan struct{}
	w sync.WaitGroup
	m sync.Mutex
	b *abool.AtomicBool
}

func NewExitHelper() *ExitHelper {
	return &ExitHelper{
		c: make(chan struct{}),
		b: abool.New(),
	}
}

// Add registers one goroutine. It returns false while an Exit is in
// progress; the caller must then not start and must not call Done.
func (a *ExitHelper) Add() (<-chan struct{}, bool) {
	a.m.Lock()
	defer a.m.Unlock()
	if a.b.IsSet() {
		return nil, false
	}
	a.w.Add(1)
	return a.c, true
}

func (a *ExitHelper) Done() {
	a.w.Done()
}

// Go runs f in a registered goroutine. quit is closed on Exit.
func (a *ExitHelper) Go(f func(quit <-chan struct{})) bool {
	quit, ok := a.Add()
	if !ok {
		return false
	}
	go func() {
		defer a.Done()
		f(quit)
	}()
	return true
}

func (a *ExitHelper) IsExit() bool {
	return a.b.IsSet()
}

// Exit stops all registered goroutines and blocks until they returned.
// Calling Exit without running goroutines is a no-op.
func (a *ExitHelper) Exit() {
	a.m.Lock()
	if a.b.IsSet() {
		a.m.Unlock()
		return
	}
	a.b.Set()
	close(a.c)
	a.m.Unlock()

	a.w.Wait()

	a.m.Lock()
	a.c = make(chan struct{})
	a.b.UnSet()
	a.m.Unlock()
}
