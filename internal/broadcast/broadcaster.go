// ABOUTME: Broadcaster capability and ordered broadcaster list
// ABOUTME: Mirrors original_source/server-core/src/composite_broadcaster.hpp
package broadcast

import "sync"

// Broadcaster consumes PCM chunks as they're captured. Both the primary
// control-plane server (C2) and the WebSocket gateway (C4) implement it.
type Broadcaster interface {
	BroadcastAudioData(data []byte, blockAlign int)
}

// List is an ordered, mutex-protected sequence of broadcasters invoked in
// registration order on every BroadcastAudioData call. It implements
// Broadcaster itself, so a List can be nested inside another List.
type List struct {
	mu           sync.Mutex
	broadcasters []Broadcaster
}

// Add registers an additional broadcaster. Insertion order is preserved
// and determines dispatch order.
func (l *List) Add(b Broadcaster) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.broadcasters = append(l.broadcasters, b)
}

// BroadcastAudioData forwards the chunk to every registered broadcaster,
// in registration order. The list is snapshotted under the lock so a
// broadcaster's own (possibly slow) handling doesn't hold up registration
// changes from other goroutines.
func (l *List) BroadcastAudioData(data []byte, blockAlign int) {
	l.mu.Lock()
	snapshot := make([]Broadcaster, len(l.broadcasters))
	copy(snapshot, l.broadcasters)
	l.mu.Unlock()

	for _, b := range snapshot {
		if b != nil {
			b.BroadcastAudioData(data, blockAlign)
		}
	}
}
