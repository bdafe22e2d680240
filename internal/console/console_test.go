package console

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-dev/readyroom/pkg/game"
)

var _ game.Sink = (*Console)(nil)

func fixedClock() time.Time {
	return time.Date(2024, 1, 1, 12, 30, 45, 0, time.UTC)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want Kind
	}{
		{"phase accepting -> countdown", KindPhase},
		{"moving to running", KindPhase},
		{"roster frozen: [1 2]", KindPhase},
		{"game about to start: 3", KindPhase},
		{"client 4 accepted", KindJoin},
		{"client 4 disconnected", KindLeave},
		{"client 4 left the game", KindLeave},
		{"client 4: dropped chat update: underflow", KindWarn},
		{"ready check interrupted", KindWarn},
		{"input from 2: 5 bytes", KindInfo},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := classify(tt.msg); got != tt.want {
				t.Errorf("classify(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}

func TestPrintf(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, WithClock(fixedClock), WithoutColor())

	c.Printf("client %d accepted", 3)

	want := "[12:30:45] [JOIN] client 3 accepted\n"
	if got := buf.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestEvent(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, WithClock(fixedClock), WithoutColor())

	c.Event(KindSent, "%s", "ConnectionRequested")
	c.Event(KindReceived, "%s", "ConnectionAccepted")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "[SENT] ConnectionRequested") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.Contains(lines[1], "[RECV] ConnectionAccepted") {
		t.Errorf("line 1 = %q", lines[1])
	}
}

func TestConcurrentLinesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, WithoutColor())

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				c.Printf("input from %d: 1 bytes", i)
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 400 {
		t.Fatalf("lines = %d, want 400", len(lines))
	}
	for _, line := range lines {
		if !strings.HasSuffix(line, "1 bytes") {
			t.Errorf("interleaved line %q", line)
			break
		}
	}
}
