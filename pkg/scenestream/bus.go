// Package scenestream fans newly shared scenes out to live listeners
// without locks. A single goroutine owns all subscriber state; the
// publisher and every subscriber talk to it over channels, so a slow
// browser can never stall a share request.
package scenestream

import "context"

// Event is what the live feed carries: enough to show a share in the
// sidebar and open it, nothing that needs recomputation.
type Event struct {
	Code      string  `json:"code"`
	Params    string  `json:"params"`
	Circles   int     `json:"circles"`
	Overlap   float64 `json:"overlap"`
	CreatedAt int64   `json:"createdAt"`
}

// Bus is the fan-out point. It also keeps a small ring of recent
// events so a freshly connected listener can be caught up before the
// live frames start.
type Bus struct {
	publish     chan Event
	subscribe   chan subscription
	unsubscribe chan subscription
	recentReq   chan chan []Event
	keep        int
}

type subscription struct {
	ch chan Event
}

// NewBus starts the broadcaster. keep bounds the replay ring; buffer
// sizes the publish channel for bursts. The goroutine is tied to the
// process lifetime and relies on caller contexts to prune listeners.
func NewBus(keep, buffer int) *Bus {
	if keep < 0 {
		keep = 0
	}
	b := &Bus{
		publish:     make(chan Event, buffer),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		recentReq:   make(chan chan []Event),
		keep:        keep,
	}
	go b.run()
	return b
}

// Publish forwards a fresh share to all listeners. The send is
// non-blocking: when the bus is saturated the event is dropped rather
// than delaying the HTTP handler that produced it.
func (b *Bus) Publish(e Event) {
	select {
	case b.publish <- e:
	default:
	}
}

// Subscribe registers a listener. The returned channel closes when
// the provided context ends; events that arrive faster than the
// listener drains its buffer are dropped for that listener only.
func (b *Bus) Subscribe(ctx context.Context, buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	req := subscription{ch: ch}

	b.subscribe <- req

	go func() {
		<-ctx.Done()
		b.unsubscribe <- req
		close(ch)
	}()

	return ch
}

// Recent returns a copy of the replay ring, oldest first.
func (b *Bus) Recent() []Event {
	reply := make(chan []Event, 1)
	b.recentReq <- reply
	return <-reply
}

func (b *Bus) run() {
	var listeners []chan Event
	var recent []Event

	for {
		select {
		case req := <-b.subscribe:
			listeners = append(listeners, req.ch)

		case req := <-b.unsubscribe:
			kept := listeners[:0]
			for _, existing := range listeners {
				if existing != req.ch {
					kept = append(kept, existing)
				}
			}
			listeners = kept

		case reply := <-b.recentReq:
			out := make([]Event, len(recent))
			copy(out, recent)
			reply <- out

		case e := <-b.publish:
			if b.keep > 0 {
				recent = append(recent, e)
				if len(recent) > b.keep {
					recent = recent[len(recent)-b.keep:]
				}
			}
			for _, ch := range listeners {
				select {
				case ch <- e:
				default:
					// Full buffer: evict the oldest pending event
					// so the feed shows the newest shares.
					select {
					case <-ch:
					default:
					}
					select {
					case ch <- e:
					default:
					}
				}
			}
		}
	}
}
