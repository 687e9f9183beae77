package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/droiddeck/backend/internal/events"
	"github.com/droiddeck/backend/internal/infrastructure/logging"
	"github.com/droiddeck/backend/internal/shared/types"
)

func dialTestStream(t *testing.T, bus *events.Bus) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/stream", NewHandler(bus, nil, logging.NewNop()).HandleConnection)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) events.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env events.Envelope
	if err := sonic.Unmarshal(payload, &env); err != nil {
		t.Fatalf("unmarshal %q: %v", payload, err)
	}
	return env
}

// The welcome frame is written before the bus subscription is
// registered, so tests wait for the wildcard subscriber explicitly.
func waitForSubscriber(t *testing.T, bus *events.Bus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount("*") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed to the bus")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamSendsWelcome(t *testing.T) {
	bus := events.New(logging.NewNop())
	conn := dialTestStream(t, bus)

	env := readEnvelope(t, conn)
	if env.Topic != "stream.connected" {
		t.Errorf("topic = %q", env.Topic)
	}
	event, ok := env.Event.(map[string]any)
	if !ok {
		t.Fatalf("event = %T", env.Event)
	}
	if id, _ := event["connection_id"].(string); !strings.HasPrefix(id, "conn_") {
		t.Errorf("connection_id = %v", event["connection_id"])
	}
}

func TestStreamRelaysPublishedEvents(t *testing.T) {
	bus := events.New(logging.NewNop())
	conn := dialTestStream(t, bus)
	readEnvelope(t, conn) // welcome

	waitForSubscriber(t, bus)
	bus.Publish(types.TopicConnection, types.ConnectionStatus{Connected: true, Status: "connected"})

	env := readEnvelope(t, conn)
	if env.Topic != types.TopicConnection {
		t.Errorf("topic = %q", env.Topic)
	}
	event, ok := env.Event.(map[string]any)
	if !ok {
		t.Fatalf("event = %T", env.Event)
	}
	if connected, _ := event["connected"].(bool); !connected {
		t.Errorf("event = %v", event)
	}
}

func TestStreamUnsubscribesOnDisconnect(t *testing.T) {
	bus := events.New(logging.NewNop())
	conn := dialTestStream(t, bus)
	readEnvelope(t, conn)

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount("*") != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("wildcard subscribers = %d after close", bus.SubscriberCount("*"))
		}
		time.Sleep(10 * time.Millisecond)
	}
}
