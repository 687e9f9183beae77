package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/droiddeck/backend/internal/events"
	"github.com/droiddeck/backend/internal/infrastructure/logging"
	"github.com/droiddeck/backend/internal/infrastructure/monitoring"
	"github.com/droiddeck/backend/internal/shared/id"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Handler relays bus events to websocket subscribers.
type Handler struct {
	bus     *events.Bus
	metrics *monitoring.Metrics
	log     *logging.Logger
}

// NewHandler creates a websocket handler over the event bus.
func NewHandler(bus *events.Bus, metrics *monitoring.Metrics, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handler{
		bus:     bus,
		metrics: metrics,
		log:     log.Named("ws"),
	}
}

// HandleConnection upgrades the request and streams every published
// event to the client until it disconnects.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	connID := id.NewConnectionID()
	log := h.log.With(zap.String("conn_id", connID.String()))
	log.Info("client connected", zap.String("remote", conn.RemoteAddr().String()))

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
		defer h.metrics.WSConnections.Dec()
	}

	// Bus delivery is synchronous from publisher goroutines and the
	// pinger writes concurrently; the mutex keeps frames whole.
	var writeMu sync.Mutex
	write := func(messageType int, payload []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(messageType, payload)
	}

	welcome := events.Envelope{
		Topic:     "stream.connected",
		Timestamp: time.Now(),
		Event:     map[string]string{"connection_id": connID.String()},
	}
	if payload, err := sonic.Marshal(welcome); err == nil {
		if err := write(websocket.TextMessage, payload); err != nil {
			return
		}
	}

	unsubscribe := h.bus.SubscribeAll(func(env events.Envelope) {
		payload, err := sonic.Marshal(env)
		if err != nil {
			log.Warn("event marshal failed", zap.String("topic", env.Topic), zap.Error(err))
			return
		}
		if err := write(websocket.TextMessage, payload); err != nil {
			log.Debug("event write failed", zap.Error(err))
		}
	})
	defer unsubscribe()

	done := make(chan struct{})
	defer close(done)
	go ping(write, done)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Clients do not send application messages; the read loop exists
	// for pong frames and disconnect detection.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("read failed", zap.Error(err))
			}
			log.Info("client disconnected")
			return
		}
	}
}

func ping(write func(int, []byte) error, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
