/*
	Copyright (c) 2022 R. van Twisk
	Copyright (c) 2024 The nmearouter Authors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	watchdog.go: timer that fires when it is not poked within its window.
*/

package common

import (
	"sync/atomic"
	"time"
)

// WatchDog calls onTrigger once when Poke was not called within d. A Poke
// after the trigger re-arms it and reports the recovery to the caller.
type WatchDog struct {
	t         *time.Timer
	d         time.Duration
	armed     uint32 // 1 while poked and running, 0 once stopped
	triggered uint32
	onTrigger func()
}

// NewWatchDog starts a watchdog. onTrigger runs on the timer goroutine and
// must not block.
func NewWatchDog(d time.Duration, onTrigger func()) *WatchDog {
	wd := &WatchDog{
		d:         d,
		armed:     1,
		onTrigger: onTrigger,
	}
	wd.t = time.AfterFunc(d, wd.fire)
	return wd
}

func (w *WatchDog) fire() {
	if atomic.LoadUint32(&w.armed) == 0 {
		return
	}
	if atomic.CompareAndSwapUint32(&w.triggered, 0, 1) && w.onTrigger != nil {
		w.onTrigger()
	}
}

func (w *WatchDog) IsTriggered() bool {
	return atomic.LoadUint32(&w.triggered) != 0
}

// Poke restarts the window. It returns true when the watchdog had fired
// since the previous Poke.
func (w *WatchDog) Poke() bool {
	atomic.StoreUint32(&w.armed, 0)
	w.t.Stop()
	recovered := atomic.SwapUint32(&w.triggered, 0) != 0
	atomic.StoreUint32(&w.armed, 1)
	w.t.Reset(w.d)
	return recovered
}

// Stop disarms the watchdog without triggering.
func (w *WatchDog) Stop() {
	atomic.StoreUint32(&w.armed, 0)
	w.t.Stop()
}
