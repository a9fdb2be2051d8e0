package notify

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Hub streams bus notifications to websocket clients as JSON.
type Hub struct {
	bus      *Bus
	upgrader websocket.Upgrader
	buffer   int
	log      log.Logger
}

func NewHub(bus *Bus, l log.Logger) *Hub {
	if l == nil {
		l = log.Root()
	}
	return &Hub{
		bus:      bus,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		buffer:   16,
		log:      l.New("component", "hub"),
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("Websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.Close()

	notes, cancel := h.bus.Subscribe(h.buffer)
	defer cancel()

	// The reader only handles control frames and notices disconnects.
	gone := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.log.Debug("Websocket client connected", "remote", r.RemoteAddr)
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case n, ok := <-notes:
			if !ok {
				conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(n); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
