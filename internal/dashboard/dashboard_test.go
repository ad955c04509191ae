package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/steveyegge/fintrack/internal/metrics"
	"github.com/steveyegge/fintrack/internal/model"
	engine "github.com/steveyegge/fintrack/internal/sync"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// startTestServer starts a server on a random loopback port.
func startTestServer(t *testing.T, cfg *Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.Logger = testLogger()

	server := NewServer(cfg)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

// dial connects a client and consumes the welcome message.
func dial(t *testing.T, ctx context.Context, server *Server) (*websocket.Conn, Message) {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	return conn, readMessage(t, ctx, conn)
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func waitForClients(t *testing.T, server *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, server.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Host: "127.0.0.1", Port: 0, Logger: testLogger()})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if addr := server.GetAddr(); addr == "" || strings.HasSuffix(addr, ":0") {
		t.Fatalf("Server address not resolved: %q", addr)
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocketConnection(t *testing.T) {
	server := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, welcome := dial(t, ctx, server)
	if welcome.Type != MessageTypeStats {
		t.Errorf("Expected welcome message type %s, got %s", MessageTypeStats, welcome.Type)
	}
	waitForClients(t, server, 1)
}

func TestMultipleClients(t *testing.T) {
	server := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const numClients = 3
	for i := 0; i < numClients; i++ {
		dial(t, ctx, server)
	}
	waitForClients(t, server, numClients)
}

func TestMessageBroadcast(t *testing.T) {
	server := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := dial(t, ctx, server)
	waitForClients(t, server, 1)

	dataJSON, _ := json.Marshal(RecordUpdateData{Entity: model.EntityGoal, LocalID: 3, Action: ActionPending})
	server.Broadcast(Message{Type: MessageTypeRecordUpdate, Data: dataJSON})

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeRecordUpdate {
		t.Fatalf("Expected message type %s, got %s", MessageTypeRecordUpdate, msg.Type)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Broadcast should stamp messages without a timestamp")
	}

	var data RecordUpdateData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal record data: %v", err)
	}
	if data.Entity != model.EntityGoal || data.LocalID != 3 {
		t.Errorf("Record data mismatch: %+v", data)
	}
}

func TestHandlerRecordEvents(t *testing.T) {
	server := startTestServer(t, nil)
	handler := NewHandler(server, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := dial(t, ctx, server)
	waitForClients(t, server, 1)

	handler.RecordSynced(engine.Synced(model.EntityTransaction, 1, 101))
	handler.RecordPending(engine.Pending(model.EntityGoal, 2, errors.New("backend down")))
	handler.RecordPulled(model.EntityTransaction, 3, 103)
	handler.RecordDeleted(model.EntityTransaction, 1, true)

	tests := []struct {
		action   string
		localID  int64
		remoteID int64
		reason   string
	}{
		{ActionSynced, 1, 101, ""},
		{ActionPending, 2, 0, "backend down"},
		{ActionPulled, 3, 103, ""},
		{ActionDeleted, 1, 0, ""},
	}

	for _, tt := range tests {
		msg := readMessage(t, ctx, conn)
		if msg.Type != MessageTypeRecordUpdate {
			t.Fatalf("Expected message type %s, got %s", MessageTypeRecordUpdate, msg.Type)
		}

		var data RecordUpdateData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			t.Fatalf("Failed to unmarshal record data: %v", err)
		}
		if data.Action != tt.action || data.LocalID != tt.localID || data.RemoteID != tt.remoteID || data.Reason != tt.reason {
			t.Errorf("got %+v, want action=%s local=%d remote=%d reason=%q",
				data, tt.action, tt.localID, tt.remoteID, tt.reason)
		}
		if tt.action == ActionDeleted && (data.RemoteDeleted == nil || !*data.RemoteDeleted) {
			t.Errorf("delete should report remote_deleted=true, got %v", data.RemoteDeleted)
		}
	}

	stats := handler.GetStats()
	if stats.Synced != 1 || stats.Deferred != 1 || stats.Pulled != 1 || stats.Deleted != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.Transactions != 0 {
		t.Errorf("pull then delete should net zero transactions, got %d", stats.Transactions)
	}
}

func TestHandlerSyncComplete(t *testing.T) {
	server := startTestServer(t, nil)
	handler := NewHandler(server, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := dial(t, ctx, server)
	waitForClients(t, server, 1)

	handler.SyncCompleted(engine.Tally{
		TransactionsPushed: 2,
		GoalsPulled:        1,
		Failed:             1,
		Duration:           2 * time.Second,
	})

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeSyncComplete {
		t.Fatalf("Expected message type %s, got %s", MessageTypeSyncComplete, msg.Type)
	}

	var data SyncCompleteData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal sync data: %v", err)
	}
	if data.Pushed != 2 || data.Pulled != 1 || data.Failed != 1 {
		t.Errorf("Sync data mismatch: %+v", data)
	}
	if data.Message != "2 synced, 1 downloaded" {
		t.Errorf("Message = %q", data.Message)
	}
	if data.Duration != 2*time.Second {
		t.Errorf("Duration = %v, want 2s", data.Duration)
	}

	msg = readMessage(t, ctx, conn)
	if msg.Type != MessageTypeStats {
		t.Fatalf("Expected stats after sync_complete, got %s", msg.Type)
	}
	var stats StatsData
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats: %v", err)
	}
	if stats.Syncs != 1 || stats.LastSync == nil {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestHandlerSyncCompleteNoUser(t *testing.T) {
	server := NewServer(&Config{Logger: testLogger()})
	handler := NewHandler(server, testLogger())

	handler.SyncCompleted(engine.Tally{NoUser: true})

	if stats := handler.GetStats(); stats.Syncs != 0 || stats.LastSync != nil {
		t.Errorf("a sync without a user should not count: %+v", stats)
	}
}

func TestWelcomeCarriesStats(t *testing.T) {
	server := startTestServer(t, nil)
	handler := NewHandler(server, testLogger())
	handler.SetCounts(5, 2, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, welcome := dial(t, ctx, server)
	if welcome.Type != MessageTypeStats {
		t.Fatalf("Expected welcome type %s, got %s", MessageTypeStats, welcome.Type)
	}

	var stats StatsData
	if err := json.Unmarshal(welcome.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal welcome stats: %v", err)
	}
	if stats.Transactions != 5 || stats.Goals != 2 || stats.Pending != 3 {
		t.Errorf("welcome stats = %+v, want 5/2/3", stats)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := NewServer(&Config{Logger: testLogger()})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["clients"] != float64(0) {
		t.Errorf("clients = %v, want 0", body["clients"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.RecordSynced(engine.Synced(model.EntityTransaction, 1, 2))

	server := NewServer(&Config{Metrics: m.Handler(), Logger: testLogger()})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	want := `fintrack_sync_records_total{direction="push",kind="transaction",result="synced"} 1`
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("metrics output missing %q", want)
	}
}

func TestMetricsEndpointDisabled(t *testing.T) {
	server := NewServer(&Config{Logger: testLogger()})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without a metrics handler, got %d", rec.Code)
	}
}

func TestRootPage(t *testing.T) {
	server := NewServer(&Config{Logger: testLogger()})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Fintrack Sync Dashboard") {
		t.Error("root page missing title")
	}
}
