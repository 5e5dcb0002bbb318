package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"otcpool/services/otcd/api"
	"otcpool/services/otcd/journal"
)

const subscriberBuffer = 64

// Hub fans journaled events out to websocket subscribers. A subscriber that
// falls behind by more than its buffer is disconnected.
type Hub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	ch     chan api.Event
	closed bool
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger, subs: make(map[*subscriber]struct{})}
}

// Publish delivers record to every subscriber without blocking.
func (h *Hub) Publish(record journal.EventRecord) {
	evt, err := toAPIEvent(record)
	if err != nil {
		h.logger.Error("otcd: stream encode failed", "sequence", record.Sequence, "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.ch <- evt:
		default:
			h.dropLocked(sub)
		}
	}
}

func (h *Hub) subscribe() *subscriber {
	sub := &subscriber{ch: make(chan api.Event, subscriberBuffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	h.dropLocked(sub)
	h.mu.Unlock()
}

func (h *Hub) dropLocked(sub *subscriber) {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(h.subs, sub)
	close(sub.ch)
}

// Subscribers reports the number of connected streams.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func toAPIEvent(record journal.EventRecord) (api.Event, error) {
	attrs, err := record.Decode()
	if err != nil {
		return api.Event{}, err
	}
	return api.Event{
		Sequence:   record.Sequence,
		ID:         record.ID.String(),
		Type:       record.Type,
		Attributes: attrs,
		Hash:       record.Hash,
		PrevHash:   record.PrevHash,
		CreatedAt:  record.CreatedAt.Unix(),
	}, nil
}

// handleEventStream upgrades to a websocket, replays the journal after the
// optional ?after= cursor and then forwards live events.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	after, err := parseCursor(r.URL.Query().Get("after"))
	if err != nil {
		s.writeError(w, badRequest("invalid after cursor"))
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	sub := s.hub.subscribe()
	defer s.hub.unsubscribe(sub)
	ctx := conn.CloseRead(r.Context())

	if err := s.streamEvents(ctx, conn, sub, after); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && !errors.Is(err, context.Canceled) {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, sub *subscriber, after uint64) error {
	last := after
	for {
		backlog, err := s.journal.Events(ctx, last, 500)
		if err != nil {
			return err
		}
		if len(backlog) == 0 {
			break
		}
		for _, record := range backlog {
			evt, err := toAPIEvent(record)
			if err != nil {
				return err
			}
			if err := writeStreamEvent(ctx, conn, evt); err != nil {
				return err
			}
			last = record.Sequence
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-sub.ch:
			if !ok {
				return conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
			}
			// Events already sent from the backlog are skipped.
			if evt.Sequence <= last {
				continue
			}
			if err := writeStreamEvent(ctx, conn, evt); err != nil {
				return err
			}
			last = evt.Sequence
		}
	}
}

func writeStreamEvent(ctx context.Context, conn *websocket.Conn, evt api.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func parseCursor(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}
