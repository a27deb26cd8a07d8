package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chirpsyncer/chirpsync-realtime/internal/router"
)

func TestScenarioDecodes(t *testing.T) {
	frames := scenario("sync-abc", 7, 4)
	if len(frames) != 10 {
		t.Fatalf("frames = %d, want 10", len(frames))
	}

	var types []string
	for i, data := range frames {
		ev, err := router.Decode(data)
		if err != nil {
			t.Fatalf("frame %d does not decode: %v", i, err)
		}
		types = append(types, ev.Type())
	}

	if types[3] != router.TypeSyncProgress || types[4] != router.TypeSyncComplete {
		t.Errorf("sync frames out of order: %v", types)
	}
	if types[9] != router.TypeCleanupComplete {
		t.Errorf("last frame = %s, want cleanup.complete", types[9])
	}

	last, _ := router.Decode(frames[4])
	if c := last.(router.SyncComplete); c.OperationID != "sync-abc" || c.Synced != 4 {
		t.Errorf("sync.complete = %+v", c)
	}
}

func TestHub_DropAfter(t *testing.T) {
	h := &hub{
		cfg:    hubConfig{Interval: time.Millisecond, Total: 5, DropAfter: 3},
		logger: slog.Default(),
	}
	server := httptest.NewServer(h)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.DialContext(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	received := 0
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Errorf("error = %v, want close 1001", err)
			}
			break
		}
		received++
	}

	if received != 3 {
		t.Errorf("received %d frames, want 3", received)
	}
}

func TestHub_RequiresAPIKey(t *testing.T) {
	h := &hub{cfg: hubConfig{Interval: time.Millisecond, Total: 1, APIKey: "secret"}, logger: slog.Default()}
	server := httptest.NewServer(h)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected unauthorized dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer secret")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("authorized dial failed: %v", err)
	}
	conn.Close()
}
