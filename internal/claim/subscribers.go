package claim

import "sync"

// subscribers is a set of latest-value channels. All methods must be called
// with the owner's lock held.
type subscribers[T any] map[chan T]struct{}

// add registers a new subscriber. The returned cancel function acquires mtx.
func (s subscribers[T]) add(mtx sync.Locker, closed bool) (<-chan T, func()) {
	ch := make(chan T, 1)
	if closed {
		close(ch)
		return ch, func() {}
	}
	s[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			mtx.Lock()
			defer mtx.Unlock()
			if _, ok := s[ch]; ok {
				delete(s, ch)
				close(ch)
			}
		})
	}
}

// publish replaces any unread value of every subscriber with v.
func (s subscribers[T]) publish(v T) {
	for ch := range s {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

func (s subscribers[T]) closeAll() {
	for ch := range s {
		delete(s, ch)
		close(ch)
	}
}
