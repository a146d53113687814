package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/LapseGo/internal/logic/timelapse"
)

// Event kinds sent on the status stream.
const (
	KindLog    = "log"
	KindStatus = "status"
)

// StatusEvent is one SSE message: a log line or a run status snapshot.
type StatusEvent struct {
	Time   string            `json:"t"`
	Kind   string            `json:"kind"`
	Level  string            `json:"l,omitempty"`
	Msg    string            `json:"msg,omitempty"`
	Status *timelapse.Status `json:"status,omitempty"`
}

// StatusBroadcaster distributes events to every connected SSE client.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
	now     func() time.Time
}

func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
		now:     time.Now,
	}
}

// Subscribe returns a channel of JSON encoded events and its cleanup,
// which the caller must run when the client goes away.
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Log sends a log line. Slow clients miss messages rather than block.
func (b *StatusBroadcaster) Log(level, msg string) {
	b.send(StatusEvent{Kind: KindLog, Level: level, Msg: msg})
}

// PublishStatus sends a status snapshot. It has the signature of a
// timelapse.Tracker listener.
func (b *StatusBroadcaster) PublishStatus(s timelapse.Status) {
	b.send(StatusEvent{Kind: KindStatus, Status: &s})
}

// Clients returns the number of subscribers.
func (b *StatusBroadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *StatusBroadcaster) send(evt StatusEvent) {
	evt.Time = b.now().Format(time.RFC3339)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// full, drop
		}
	}
}

// BroadcastWriter adapts the broadcaster to io.Writer so the debug logger
// can be teed into the stream.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

// Write broadcasts each non-empty line, taking its level from the console
// writer's three letter tag (INF, WRN, ERR...).
func (w *broadcastWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		w.b.Log(lineLevel(line), line)
	}
	return len(p), nil
}

var levelTags = map[string]string{
	"TRC": "trace",
	"DBG": "debug",
	"INF": "info",
	"WRN": "warn",
	"ERR": "error",
	"FTL": "fatal",
}

func lineLevel(line string) string {
	fields := strings.Fields(line)
	if len(fields) > 1 {
		if lvl, ok := levelTags[fields[1]]; ok {
			return lvl
		}
	}
	return "info"
}
