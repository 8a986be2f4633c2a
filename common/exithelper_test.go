package common

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestExitHelper_WaitsForGoroutines(t *testing.T) {
	eh := NewExitHelper()
	var stopped int32
	for i := 0; i < 3; i++ {
		eh.Go(func(quit <-chan struct{}) {
			<-quit
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&stopped, 1)
		})
	}
	eh.Exit()
	if n := atomic.LoadInt32(&stopped); n != 3 {
		t.Fatalf("stopped = %d", n)
	}
	if eh.IsExit() {
		t.Fatalf("helper not re-armed")
	}
}

func TestExitHelper_Restart(t *testing.T) {
	eh := NewExitHelper()
	eh.Exit()
	ran := make(chan struct{})
	if !eh.Go(func(quit <-chan struct{}) {
		close(ran)
		<-quit
	}) {
		t.Fatalf("Go refused after Exit")
	}
	<-ran
	eh.Exit()
}

func TestExitHelper_AddRefusedDuringExit(t *testing.T) {
	eh := NewExitHelper()
	result := make(chan bool, 1)
	eh.Go(func(quit <-chan struct{}) {
		<-quit
		_, ok := eh.Add()
		result <- ok
	})
	eh.Exit()
	if <-result {
		t.Fatalf("Add succeeded during Exit")
	}
}
