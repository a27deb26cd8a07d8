package router

import (
	"errors"
	"testing"
)

func TestDecode_SyncProgressRoundTrip(t *testing.T) {
	frame := []byte(`{"type":"sync.progress","payload":{"operation_id":"sync-123","current":50,"total":100,"message":"Syncing tweets..."}}`)

	ev, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	got, ok := ev.(SyncProgress)
	if !ok {
		t.Fatalf("Decode() = %T, want SyncProgress", ev)
	}
	want := SyncProgress{OperationID: "sync-123", Current: 50, Total: 100, Message: "Syncing tweets..."}
	if got != want {
		t.Errorf("Decode() = %+v, want %+v", got, want)
	}
	if got.Percent() != 50 {
		t.Errorf("Percent() = %d, want 50", got.Percent())
	}
}

func TestDecode_KnownTypes(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Event
	}{
		{
			name:  "sync complete",
			frame: `{"type":"sync.complete","payload":{"operation_id":"sync-9","synced":42}}`,
			want:  SyncComplete{OperationID: "sync-9", Synced: 42},
		},
		{
			name:  "cleanup progress",
			frame: `{"type":"cleanup.progress","payload":{"rule_id":7,"deleted":10,"total":40,"current_tweet":"tweet-1"}}`,
			want:  CleanupProgress{RuleID: 7, Deleted: 10, Total: 40, CurrentTweet: "tweet-1"},
		},
		{
			name:  "cleanup complete",
			frame: `{"type":"cleanup.complete","payload":{"rule_id":5,"deleted":200}}`,
			want:  CleanupComplete{RuleID: 5, Deleted: 200},
		},
		{
			name:  "extra fields ignored",
			frame: `{"type":"sync.complete","payload":{"operation_id":"sync-1","synced":1,"platform":"bluesky"},"ts":1}`,
			want:  SyncComplete{OperationID: "sync-1", Synced: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.frame))
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecode_Unknown(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"notification.new","payload":{"id":1}}`))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	u, ok := ev.(Unknown)
	if !ok {
		t.Fatalf("Decode() = %T, want Unknown", ev)
	}
	if u.Type() != "notification.new" {
		t.Errorf("Type() = %q, want notification.new", u.Type())
	}
	if string(u.Payload) != `{"id":1}` {
		t.Errorf("Payload = %s, want {\"id\":1}", u.Payload)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `sync.progress`},
		{"json array", `[1,2,3]`},
		{"missing type", `{"payload":{"operation_id":"a"}}`},
		{"empty type", `{"type":"","payload":{}}`},
		{"type not string", `{"type":5,"payload":{}}`},
		{"missing payload", `{"type":"sync.progress"}`},
		{"null payload", `{"type":"sync.progress","payload":null}`},
		{"string payload", `{"type":"unknown.kind","payload":"hello"}`},
		{"missing operation id", `{"type":"sync.progress","payload":{"current":1,"total":2}}`},
		{"missing rule id", `{"type":"cleanup.complete","payload":{"deleted":2}}`},
		{"wrong field type", `{"type":"sync.progress","payload":{"operation_id":"a","current":"half"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.frame))
			if err == nil {
				t.Fatalf("Decode() = %#v, want error", ev)
			}
			if !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("Decode() error = %v, want ErrMalformedFrame", err)
			}
		})
	}
}

func TestPercent_ZeroTotal(t *testing.T) {
	if p := (SyncProgress{Current: 5}).Percent(); p != 0 {
		t.Errorf("SyncProgress.Percent() = %d, want 0", p)
	}
	if p := (CleanupProgress{Deleted: 3, Total: 4}).Percent(); p != 75 {
		t.Errorf("CleanupProgress.Percent() = %d, want 75", p)
	}
}
