package websocket

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached within deadline")
}

func TestBroadcastEvictsStalledClient(t *testing.T) {
	h := NewHub()
	go h.Run()

	// A client whose send channel is never drained cannot accept the
	// message and gets dropped on the next broadcast.
	stalled := &Client{hub: h, send: make(chan []byte)}
	h.register <- stalled
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	if err := h.Broadcast("scan", map[string]string{"target": "all"}); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	waitFor(t, func() bool { return h.ClientCount() == 0 })

	if _, open := <-stalled.send; open {
		t.Error("evicted client's send channel left open")
	}
}

func TestClientCountDuringBroadcasts(t *testing.T) {
	h := NewHub()
	go h.Run()

	// Stalled clients force the eviction path on every broadcast while
	// another goroutine reads the count, the interleaving the dashboard
	// status endpoint produces in practice.
	for i := 0; i < 8; i++ {
		h.register <- &Client{hub: h, send: make(chan []byte)}
	}
	waitFor(t, func() bool { return h.ClientCount() == 8 })

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if n := h.ClientCount(); n < 0 || n > 8 {
				t.Errorf("ClientCount = %d", n)
				return
			}
		}
	}()

	for i := 0; i < 20; i++ {
		if err := h.Broadcast("logs:entry", fmt.Sprintf("line %d", i)); err != nil {
			t.Fatalf("Broadcast: %v", err)
		}
	}
	wg.Wait()
	waitFor(t, func() bool { return h.ClientCount() == 0 })
}
