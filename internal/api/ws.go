package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tradejournal/internal/events"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 64
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsHub fans price_tick events out to every connected /api/ws/prices client.
type wsHub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
	log     zerolog.Logger
}

func newWSHub(bus *events.Bus, log zerolog.Logger) *wsHub {
	h := &wsHub{
		clients: make(map[chan []byte]struct{}),
		log:     log.With().Str("component", "ws_prices").Logger(),
	}
	h.consume(bus)
	return h
}

func (h *wsHub) consume(bus *events.Bus) {
	ticks, _ := bus.Subscribe(events.EventPriceTick, 256)
	go func() {
		for payload := range ticks {
			tick, ok := payload.(events.PriceTickEvent)
			if !ok {
				continue
			}
			data, err := json.Marshal(gin.H{
				"code": tick.Code, "price": tick.Price, "source": tick.Source,
			})
			if err != nil {
				continue
			}
			h.broadcast(data)
		}
	}()
}

func (h *wsHub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
			h.log.Warn().Msg("dropping price tick for slow client")
		}
	}
}

func (h *wsHub) register(ch chan []byte) {
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
}

func (h *wsHub) unregister(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

// GET /api/ws/prices
func (s *Server) handlePriceWS(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	send := make(chan []byte, wsSendBuffer)
	s.Hub.register(send)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		conn.SetReadLimit(4096)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsPongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		s.Hub.unregister(send)
		conn.Close()
	}()

	for {
		select {
		case data, ok := <-send:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
