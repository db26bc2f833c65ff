package devserver

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"nhooyr.io/websocket"

	"github.com/wesm/pitwatch/internal/remote"
)

const clientQueue = 256

type subscriber struct {
	send chan []byte
}

// hub fans notifications out to websocket subscribers. Notifications that
// queue up while a subscriber is writing are sent together in one frame,
// newline separated.
type hub struct {
	mu      sync.Mutex
	clients map[*subscriber]struct{}
	logger  *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{clients: map[*subscriber]struct{}{}, logger: logger}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) broadcast(n remote.Notification) {
	b, err := json.Marshal(n)
	if err != nil {
		h.logger.Error("encode notification", "type", n.Type, "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.logger.Warn("subscriber queue full, dropping notification", "type", n.Type)
		}
	}
}

// serve registers conn and writes queued notifications until the client
// goes away or ctx ends.
func (h *hub) serve(ctx context.Context, conn *websocket.Conn) {
	c := &subscriber{send: make(chan []byte, clientQueue)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
	}()

	// Clients never send; CloseRead handles control frames and cancels ctx
	// when the peer closes.
	ctx = conn.CloseRead(ctx)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case first := <-c.send:
			frame := [][]byte{first}
		drain:
			for {
				select {
				case b := <-c.send:
					frame = append(frame, b)
				default:
					break drain
				}
			}
			wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Write(wctx, websocket.MessageText, bytes.Join(frame, []byte{'\n'}))
			cancel()
			if err != nil {
				h.logger.Debug("subscriber write failed", "err", err)
				return
			}
		}
	}
}
