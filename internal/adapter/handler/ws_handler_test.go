package handler

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"lootroom/internal/protocol"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Send must never write to a peer whose channel has been closed by the
// connection cleanup, even when both run concurrently.
func TestSend_RacesWithPeerCleanup(t *testing.T) {
	env := protocol.MustEnvelope(protocol.TypeMessage, protocol.Message{Text: "hi"})

	for i := 0; i < 100; i++ {
		h := NewHub(discardLogger())
		p := &peer{id: "c1", send: make(chan protocol.Envelope, sendQueueSize)}
		h.mu.Lock()
		h.peers[p.id] = p
		h.mu.Unlock()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h.Send("c1", env)
			}
		}()
		go func() {
			defer wg.Done()
			h.mu.Lock()
			delete(h.peers, p.id)
			h.mu.Unlock()
			p.close()
		}()
		wg.Wait()
	}
}

func TestSend_UnknownPeerIsNoop(t *testing.T) {
	h := NewHub(discardLogger())
	h.Send("ghost", protocol.MustEnvelope(protocol.TypeMessage, protocol.Message{Text: "hi"}))
}

func TestBroadcast_DropsWhenQueueFull(t *testing.T) {
	h := NewHub(discardLogger())
	p := &peer{id: "c1", send: make(chan protocol.Envelope, 1)}
	h.mu.Lock()
	h.peers[p.id] = p
	h.mu.Unlock()

	env := protocol.MustEnvelope(protocol.TypeMessage, protocol.Message{Text: "hi"})
	h.Broadcast(env)
	h.Broadcast(env) // queue full, must not block
	if len(p.send) != 1 {
		t.Errorf("expected exactly one queued frame, got %d", len(p.send))
	}
}
