package gateway

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
)

// subscriberBuffer is the number of frames queued per GET /events client.
const subscriberBuffer = 64

// Broadcaster fans SSEEvent values out to all active GET /events subscribers.
// Slow clients are skipped (non-blocking channel send with per-client buffer),
// except for keyed frames: when a client's buffer is full only the latest
// frame per key is held back for it, so a tab's final icon is never lost.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// subscriber is one GET /events connection.
type subscriber struct {
	frames chan []byte
	wake   chan struct{}

	mu     sync.Mutex
	latest map[string][]byte
}

func newBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[*subscriber]struct{})}
}

// subscribe registers a client that receives ready-to-write SSE data frames.
// The caller must call unsubscribe when the HTTP connection closes.
func (b *Broadcaster) subscribe() *subscriber {
	s := &subscriber{
		frames: make(chan []byte, subscriberBuffer),
		wake:   make(chan struct{}, 1),
		latest: make(map[string][]byte),
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

func (b *Broadcaster) unsubscribe(s *subscriber) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// count returns the number of connected subscribers.
func (b *Broadcaster) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// send serialises evt as JSON and fans the SSE frame to all active
// subscribers. It returns how many subscribers received the frame.
func (b *Broadcaster) send(evt SSEEvent) int {
	return b.fanout("", evt)
}

// sendLatest is send for state where only the newest frame per key matters.
// A subscriber with a full buffer keeps the frame as its pending value for
// key, replacing any older one, and counts as delivered.
func (b *Broadcaster) sendLatest(key string, evt SSEEvent) int {
	return b.fanout(key, evt)
}

func (b *Broadcaster) fanout(key string, evt SSEEvent) int {
	frame, err := encodeFrame(evt)
	if err != nil {
		slog.Warn("gateway: failed to marshal SSE event", "type", evt.Type, "error", err)
		return 0
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	delivered := 0
	for s := range b.subs {
		if s.offer(key, frame) {
			delivered++
		}
	}
	return delivered
}

// offer queues frame. Once a key has a pending frame, newer frames for it
// replace the pending one instead of queueing behind it.
func (s *subscriber) offer(key string, frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.latest[key]; ok && key != "" {
		s.latest[key] = frame
		return true
	}
	select {
	case s.frames <- frame:
		return true
	default:
	}
	if key == "" {
		// slow subscriber, skip this frame
		return false
	}
	s.latest[key] = frame
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// next blocks until frames are ready or done closes. Queued frames come
// before pending keyed ones, which are newer than any queued frame of the
// same key.
func (s *subscriber) next(done <-chan struct{}) ([][]byte, bool) {
	select {
	case <-done:
		return nil, false
	case frame := <-s.frames:
		return [][]byte{frame}, true
	case <-s.wake:
		return s.flush(), true
	}
}

// flush drains the queue and the pending frames in one step; offer holds mu
// while queueing, so nothing interleaves.
func (s *subscriber) flush() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out [][]byte
	for drained := false; !drained; {
		select {
		case frame := <-s.frames:
			out = append(out, frame)
		default:
			drained = true
		}
	}
	keys := make([]string, 0, len(s.latest))
	for k := range s.latest {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, s.latest[k])
	}
	clear(s.latest)
	return out
}

// encodeFrame renders evt in SSE wire format: "data: <json>\n\n".
func encodeFrame(evt SSEEvent) ([]byte, error) {
	raw, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(raw)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, raw...)
	frame = append(frame, '\n', '\n')
	return frame, nil
}
