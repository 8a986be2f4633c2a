package common

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWatchDog_TriggersOnce(t *testing.T) {
	var fired int32
	wd := NewWatchDog(20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	defer wd.Stop()

	time.Sleep(80 * time.Millisecond)
	if !wd.IsTriggered() {
		t.Fatalf("not triggered")
	}
	if n := atomic.LoadInt32(&fired); n != 1 {
		t.Fatalf("fired = %d", n)
	}
	if !wd.Poke() {
		t.Fatalf("Poke after trigger should report recovery")
	}
	if wd.IsTriggered() {
		t.Fatalf("still triggered after Poke")
	}
}

func TestWatchDog_PokeKeepsAlive(t *testing.T) {
	wd := NewWatchDog(100*time.Millisecond, nil)
	defer wd.Stop()
	for i := 0; i < 5; i++ {
		time.Sleep(20 * time.Millisecond)
		if wd.Poke() {
			t.Fatalf("triggered although poked")
		}
	}
}

func TestWatchDog_Stop(t *testing.T) {
	var fired int32
	wd := NewWatchDog(10*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	wd.Stop()
	time.Sleep(40 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatalf("fired after Stop")
	}
}
