package statusapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSendBuffer = 64
)

// wsClient is one websocket subscriber.
type wsClient struct {
	conn   *websocket.Conn
	server *Server
	sendCh chan any
	done   chan struct{}
	once   sync.Once
}

// send queues msg, dropping it when the client is too slow.
func (c *wsClient) send(msg any) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	default:
		c.server.logger.Debug("dropping status update for slow websocket client")
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump only watches for close and pong frames; clients have nothing
// to say.
func (c *wsClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.WithError(err).Debug("websocket read error")
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.WithError(err).Debug("websocket write error")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := &wsClient{
		conn:   conn,
		server: s,
		sendCh: make(chan any, wsSendBuffer),
		done:   make(chan struct{}),
	}

	s.wsClientMu.Lock()
	s.wsClients[c] = struct{}{}
	s.wsClientMu.Unlock()
	s.logger.WithField("remote", r.RemoteAddr).Debug("websocket client connected")

	if st, ok := s.Status(); ok {
		c.send(map[string]any{
			"method": "notify_status_update",
			"params": []any{st},
		})
	}
	go c.writePump()
	c.readPump()
}

func (s *Server) broadcast(msg any) {
	s.wsClientMu.RLock()
	defer s.wsClientMu.RUnlock()
	for c := range s.wsClients {
		c.send(msg)
	}
}

func (s *Server) removeClient(c *wsClient) {
	s.wsClientMu.Lock()
	delete(s.wsClients, c)
	s.wsClientMu.Unlock()
}

func (s *Server) closeClients() {
	s.wsClientMu.Lock()
	clients := s.wsClients
	s.wsClients = make(map[*wsClient]struct{})
	s.wsClientMu.Unlock()
	for c := range clients {
		c.close()
	}
}
