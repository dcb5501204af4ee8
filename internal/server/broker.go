package server

import (
	"encoding/json"
	"sync"

	"github.com/playperu/chargehunt/internal/chargehunt"
)

// Broker is an in-process pub/sub for player events, keyed by player ID.
// SSE and WebSocket subscribers share it.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan []byte]struct{}),
	}
}

// Subscribe returns a channel that receives JSON-encoded events for the given player.
func (b *Broker) Subscribe(playerID string) chan []byte {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	if b.subs[playerID] == nil {
		b.subs[playerID] = make(map[chan []byte]struct{})
	}
	b.subs[playerID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel from the player's subscribers.
func (b *Broker) Unsubscribe(playerID string, ch chan []byte) {
	b.mu.Lock()
	delete(b.subs[playerID], ch)
	if len(b.subs[playerID]) == 0 {
		delete(b.subs, playerID)
	}
	b.mu.Unlock()
}

// Subscribers returns the number of open streams for a player.
func (b *Broker) Subscribers(playerID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[playerID])
}

// Publish sends an event to all subscribers of the given player.
func (b *Broker) Publish(playerID string, ev chargehunt.Event) {
	data, _ := json.Marshal(ev)
	b.mu.RLock()
	for ch := range b.subs[playerID] {
		select {
		case ch <- data:
		default:
			// Drop if subscriber is slow.
		}
	}
	b.mu.RUnlock()
}
