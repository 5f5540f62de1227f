package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/walletd/internal/messenger"
	"github.com/alfredjeanlab/walletd/internal/model"
	"github.com/alfredjeanlab/walletd/internal/store"
)

const (
	streamKeepalive  = 15 * time.Second
	streamBuffer     = 64
	streamReplayPage = 200
)

// eventStream fans recorded events out to SSE clients. Stream ids are the
// event log ids, so a client that reconnects resumes from the store.
type eventStream struct {
	mu      sync.RWMutex
	clients map[*streamClient]struct{}
}

type streamClient struct {
	filter topicFilter
	ch     chan *model.Event
}

func newEventStream() *eventStream {
	return &eventStream{clients: make(map[*streamClient]struct{})}
}

// broadcast delivers e to every matching client. Slow clients miss events
// rather than block the messenger.
func (s *eventStream) broadcast(e *model.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		if !c.filter.match(e.Topic) {
			continue
		}
		select {
		case c.ch <- e:
		default:
		}
	}
}

func (s *eventStream) subscribe(filter topicFilter) *streamClient {
	c := &streamClient{filter: filter, ch: make(chan *model.Event, streamBuffer)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	return c
}

func (s *eventStream) unsubscribe(c *streamClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// topicFilter matches event names. Each pattern is an event name in which
// either half may be "*" ("AppStateController:*", "*:stateChange"). NATS
// subjects such as "wallet.KeyringController.*" or "wallet.>" are accepted
// too. An empty filter matches everything.
type topicFilter []string

func parseTopicFilter(q string) topicFilter {
	var f topicFilter
	for _, p := range strings.Split(q, ",") {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
			continue
		case p == ">" || p == "wallet.>":
			p = "*"
		case !strings.Contains(p, ":"):
			if name := messenger.EventName(p); name != "" {
				p = name
			}
		}
		f = append(f, p)
	}
	return f
}

func (f topicFilter) match(event string) bool {
	if len(f) == 0 {
		return true
	}
	controller, name, _ := strings.Cut(event, ":")
	for _, p := range f {
		if p == "*" || p == event {
			return true
		}
		pc, pn, ok := strings.Cut(p, ":")
		if !ok {
			continue
		}
		if (pc == "*" || pc == controller) && (pn == "*" || pn == name) {
			return true
		}
	}
	return false
}

// handleEventStream handles GET /v1/events/stream.
//
// Query params: topics (comma-separated filter) and after (resume point,
// same as the Last-Event-ID header). A fresh connection starts with the
// current app state; a resumed one replays the log instead.
func (s *WalletServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	resume := r.Header.Get("Last-Event-ID")
	if resume == "" {
		resume = r.URL.Query().Get("after")
	}
	var lastID int64
	if resume != "" {
		id, err := strconv.ParseInt(resume, 10, 64)
		if err != nil || id < 0 {
			writeError(w, http.StatusBadRequest, "invalid event id")
			return
		}
		lastID = id
	}

	filter := parseTopicFilter(r.URL.Query().Get("topics"))
	// Subscribe before replaying so nothing recorded in between is lost.
	client := s.stream.subscribe(filter)
	defer s.stream.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	if resume != "" {
		var err error
		if lastID, err = s.replay(ctx, w, filter, lastID); err != nil {
			s.logger.Warn("event stream replay failed", "after", resume, "err", err)
		}
	} else if filter.match(messenger.EventAppStateChange) {
		if data, err := json.Marshal(s.app.State()); err == nil {
			writeStreamEvent(w, &model.Event{Topic: messenger.EventAppStateChange, Payload: data})
		}
	}
	flusher.Flush()

	keepalive := time.NewTicker(streamKeepalive)
	defer keepalive.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-client.ch:
			if e.ID != 0 && e.ID <= lastID {
				continue // already replayed
			}
			writeStreamEvent(w, e)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// replay writes logged events after lastID and returns the last id sent.
func (s *WalletServer) replay(ctx context.Context, w io.Writer, filter topicFilter, lastID int64) (int64, error) {
	for {
		page, err := s.store.ListEvents(ctx, store.EventFilter{AfterID: lastID, Limit: streamReplayPage})
		if err != nil {
			return lastID, err
		}
		for _, e := range page {
			if filter.match(e.Topic) {
				writeStreamEvent(w, e)
			}
			lastID = e.ID
		}
		if len(page) < streamReplayPage {
			return lastID, nil
		}
	}
}

// writeStreamEvent writes e in SSE framing. Events that were never logged
// carry no id.
func writeStreamEvent(w io.Writer, e *model.Event) {
	if e.ID != 0 {
		fmt.Fprintf(w, "id: %d\n", e.ID)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Topic, e.Payload)
}
