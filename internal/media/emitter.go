package media

import "sync"

// emitter delivers events in order on its own goroutine.
type emitter struct {
	mu     sync.Mutex
	subs   []subscriber
	nextID int
	queue  []Event
	closed bool

	wake chan struct{}
	done chan struct{}
}

type subscriber struct {
	id int
	fn func(Event)
}

func newEmitter() *emitter {
	e := &emitter{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *emitter) subscribe(fn func(Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, subscriber{id: id, fn: fn})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, s := range e.subs {
			if s.id == id {
				e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

func (e *emitter) emit(ev Event) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue, ev)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *emitter) run() {
	for {
		select {
		case <-e.done:
			return
		case <-e.wake:
		}
		for {
			e.mu.Lock()
			if len(e.queue) == 0 || e.closed {
				e.mu.Unlock()
				break
			}
			ev := e.queue[0]
			e.queue = e.queue[1:]
			subs := append([]subscriber(nil), e.subs...)
			e.mu.Unlock()

			for _, s := range subs {
				s.fn(ev)
			}
		}
	}
}

// close drops pending events and stops the delivery goroutine. It does not
// wait, so it is safe to call from a subscriber.
func (e *emitter) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.queue = nil
	e.subs = nil
	close(e.done)
}
