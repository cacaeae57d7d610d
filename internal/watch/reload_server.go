package watch

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message types sent to reload clients
const (
	MessageBuilding = "building"
	MessageSuccess  = "success"
	MessageError    = "error"
)

// ReloadMessage is sent to every connected client
type ReloadMessage struct {
	Type      string   `json:"type"`
	Timestamp int64    `json:"timestamp"`
	Files     []string `json:"files,omitempty"`
	Duration  float64  `json:"duration,omitempty"` // milliseconds
	Error     string   `json:"error,omitempty"`
	Endpoints int      `json:"endpoints,omitempty"`
}

// ReloadServer keeps websocket connections of clients waiting for rebuilds
type ReloadServer struct {
	connections map[*websocket.Conn]struct{}
	broadcast   chan *ReloadMessage
	register    chan *websocket.Conn
	unregister  chan *websocket.Conn
	done        chan struct{}
	closeOnce   sync.Once
	mutex       sync.RWMutex
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

// NewReloadServer creates a reload server and starts its event loop
func NewReloadServer(logger *zap.Logger) *ReloadServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	rs := &ReloadServer{
		connections: make(map[*websocket.Conn]struct{}),
		broadcast:   make(chan *ReloadMessage, 256),
		register:    make(chan *websocket.Conn),
		unregister:  make(chan *websocket.Conn),
		done:        make(chan struct{}),
		logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	go rs.run()

	return rs
}

// checkOrigin accepts same-host and localhost origins
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return strings.EqualFold(u.Host, r.Host) || host == "localhost" || host == "127.0.0.1" || host == "::1"
}

func (rs *ReloadServer) run() {
	for {
		select {
		case <-rs.done:
			return

		case conn := <-rs.register:
			rs.mutex.Lock()
			rs.connections[conn] = struct{}{}
			n := len(rs.connections)
			rs.mutex.Unlock()
			rs.logger.Debug("reload client connected", zap.Int("clients", n))

		case conn := <-rs.unregister:
			rs.mutex.Lock()
			if _, ok := rs.connections[conn]; ok {
				delete(rs.connections, conn)
				conn.Close()
			}
			n := len(rs.connections)
			rs.mutex.Unlock()
			rs.logger.Debug("reload client disconnected", zap.Int("clients", n))

		case message := <-rs.broadcast:
			rs.sendToAll(message)
		}
	}
}

func (rs *ReloadServer) sendToAll(message *ReloadMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		rs.logger.Error("failed to encode reload message", zap.Error(err))
		return
	}

	rs.mutex.RLock()
	var failed []*websocket.Conn
	for conn := range rs.connections {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			rs.logger.Debug("failed to send reload message", zap.Error(err))
			failed = append(failed, conn)
		}
	}
	rs.mutex.RUnlock()

	if len(failed) > 0 {
		rs.mutex.Lock()
		for _, conn := range failed {
			if _, ok := rs.connections[conn]; ok {
				conn.Close()
				delete(rs.connections, conn)
			}
		}
		rs.mutex.Unlock()
	}
}

// ServeHTTP upgrades the request to a websocket connection
func (rs *ReloadServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := rs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rs.logger.Debug("reload upgrade failed", zap.Error(err))
		return
	}

	select {
	case rs.register <- conn:
	case <-rs.done:
		conn.Close()
		return
	}

	go rs.readMessages(conn)
}

// readMessages drains the client until it goes away
func (rs *ReloadServer) readMessages(conn *websocket.Conn) {
	defer func() {
		select {
		case rs.unregister <- conn:
		case <-rs.done:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				rs.logger.Debug("reload client error", zap.Error(err))
			}
			return
		}
	}
}

func (rs *ReloadServer) send(message *ReloadMessage) {
	message.Timestamp = time.Now().Unix()
	select {
	case rs.broadcast <- message:
	case <-rs.done:
	default:
		rs.logger.Warn("reload message dropped", zap.String("type", message.Type))
	}
}

// NotifyBuilding tells clients a rebuild started because of files
func (rs *ReloadServer) NotifyBuilding(files []string) {
	rs.send(&ReloadMessage{Type: MessageBuilding, Files: files})
}

// NotifySuccess tells clients a new table is being served
func (rs *ReloadServer) NotifySuccess(duration time.Duration, endpoints int) {
	rs.send(&ReloadMessage{
		Type:      MessageSuccess,
		Duration:  float64(duration.Microseconds()) / 1000,
		Endpoints: endpoints,
	})
}

// NotifyError tells clients a rebuild failed
func (rs *ReloadServer) NotifyError(err error) {
	rs.send(&ReloadMessage{Type: MessageError, Error: err.Error()})
}

// ConnectionCount returns the number of connected clients
func (rs *ReloadServer) ConnectionCount() int {
	rs.mutex.RLock()
	defer rs.mutex.RUnlock()
	return len(rs.connections)
}

// Close stops the event loop and closes all connections
func (rs *ReloadServer) Close() {
	rs.closeOnce.Do(func() {
		close(rs.done)

		rs.mutex.Lock()
		defer rs.mutex.Unlock()
		for conn := range rs.connections {
			conn.Close()
		}
		rs.connections = make(map[*websocket.Conn]struct{})
	})
}
