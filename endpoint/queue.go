package endpoint

// sendQueue decouples a sink from the goroutine feeding it. push never
// blocks: when the sink cannot keep up the newest data is dropped.
type sendQueue struct {
	ch chan []byte
}

func newSendQueue(size int) *sendQueue {
	return &sendQueue{ch: make(chan []byte, size)}
}

func (q *sendQueue) push(b []byte) bool {
	select {
	case q.ch <- b:
		return true
	default:
		return false
	}
}

func (q *sendQueue) len() int {
	return len(q.ch)
}

// run writes queued data until quit or done is closed or write fails.
func (q *sendQueue) run(quit, done <-chan struct{}, write func([]byte) error) error {
	for {
		select {
		case <-quit:
			return nil
		case <-done:
			return nil
		case b := <-q.ch:
			if err := write(b); err != nil {
				return err
			}
		}
	}
}
