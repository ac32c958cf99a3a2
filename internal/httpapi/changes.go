package httpapi

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/communitypulse/impactd/internal/collections"
)

// changeMessage is one websocket frame pushed to dashboard clients when
// the refresher detects changes.
type changeMessage struct {
	Kind       collections.Kind         `json:"kind"`
	Report     collections.ChangeReport `json:"report"`
	DetectedAt time.Time                `json:"detectedAt"`
}

const subscriberBuffer = 16

// changeHub fans change reports out to websocket subscribers. Broadcast
// never blocks: a subscriber whose buffer is full has stopped reading
// and is dropped, which closes its channel and ends its connection.
type changeHub struct {
	logger      *log.Logger
	mu          sync.Mutex
	subscribers map[chan changeMessage]struct{}
}

func newChangeHub(logger *log.Logger) *changeHub {
	return &changeHub{
		logger:      logger,
		subscribers: make(map[chan changeMessage]struct{}),
	}
}

func (h *changeHub) Broadcast(kind collections.Kind, report collections.ChangeReport) {
	message := changeMessage{Kind: kind, Report: report, DetectedAt: time.Now().UTC()}
	h.mu.Lock()
	defer h.mu.Unlock()
	for subscriber := range h.subscribers {
		select {
		case subscriber <- message:
		default:
			delete(h.subscribers, subscriber)
			close(subscriber)
			h.logger.Printf("httpapi: dropping stalled change subscriber kind=%s", kind)
		}
	}
}

func (h *changeHub) subscribe() chan changeMessage {
	subscriber := make(chan changeMessage, subscriberBuffer)
	h.mu.Lock()
	h.subscribers[subscriber] = struct{}{}
	h.mu.Unlock()
	return subscriber
}

func (h *changeHub) unsubscribe(subscriber chan changeMessage) {
	h.mu.Lock()
	delete(h.subscribers, subscriber)
	h.mu.Unlock()
}

func (h *changeHub) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Printf("httpapi: websocket accept failed: %v", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	subscriber := h.subscribe()
	defer h.unsubscribe(subscriber)

	// The client never sends application frames; CloseRead keeps
	// control frames flowing and ends the context when it hangs up.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "bye")
			return
		case message, ok := <-subscriber:
			if !ok {
				// The hub dropped us for not keeping up.
				conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, message)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
