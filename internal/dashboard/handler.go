package dashboard

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/steveyegge/fintrack/internal/model"
	engine "github.com/steveyegge/fintrack/internal/sync"
)

// Record actions carried by record_update messages.
const (
	ActionSynced  = "synced"
	ActionPending = "pending"
	ActionPulled  = "pulled"
	ActionDeleted = "deleted"
)

// RecordUpdateData describes what happened to one record.
type RecordUpdateData struct {
	Entity   model.Entity `json:"entity"`
	LocalID  int64        `json:"local_id"`
	RemoteID int64        `json:"remote_id,omitempty"`
	Action   string       `json:"action"`
	Reason   string       `json:"reason,omitempty"`

	// RemoteDeleted is set on deletions only.
	RemoteDeleted *bool `json:"remote_deleted,omitempty"`
}

// SyncCompleteData contains full sync results.
type SyncCompleteData struct {
	Pushed   int           `json:"pushed"`
	Pulled   int           `json:"pulled"`
	Failed   int           `json:"failed"`
	NoUser   bool          `json:"no_user,omitempty"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
}

// StatsData contains running statistics.
type StatsData struct {
	// Local row counts, as last reported by SetCounts.
	Transactions int `json:"transactions"`
	Goals        int `json:"goals"`
	Pending      int `json:"pending"`

	// Activity since the dashboard started.
	Synced   int        `json:"synced"`
	Deferred int        `json:"deferred"`
	Pulled   int        `json:"pulled"`
	Deleted  int        `json:"deleted"`
	Syncs    int        `json:"syncs"`
	LastSync *time.Time `json:"last_sync,omitempty"`
}

// Handler turns sync engine events into dashboard messages.
// It implements sync.Observer.
type Handler struct {
	server *Server
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData
}

var _ engine.Observer = (*Handler)(nil)

// NewHandler creates a new event handler connected to a dashboard server.
// New clients receive the current statistics as their first message.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}

	h := &Handler{
		server: server,
		logger: logger,
	}
	server.SetWelcome(h.statsMessage)
	return h
}

// RecordSynced implements sync.Observer.
func (h *Handler) RecordSynced(o engine.Outcome) {
	h.mu.Lock()
	h.stats.Synced++
	h.mu.Unlock()

	h.broadcastRecord(RecordUpdateData{
		Entity:   o.Entity,
		LocalID:  o.LocalID,
		RemoteID: o.RemoteID,
		Action:   ActionSynced,
	})
}

// RecordPending implements sync.Observer.
func (h *Handler) RecordPending(o engine.Outcome) {
	h.mu.Lock()
	h.stats.Deferred++
	h.mu.Unlock()

	data := RecordUpdateData{
		Entity:  o.Entity,
		LocalID: o.LocalID,
		Action:  ActionPending,
	}
	if o.Reason != nil {
		data.Reason = o.Reason.Error()
	}
	h.broadcastRecord(data)
}

// RecordPulled implements sync.Observer.
func (h *Handler) RecordPulled(entity model.Entity, localID, remoteID int64) {
	h.mu.Lock()
	h.stats.Pulled++
	h.countEntity(entity, 1)
	h.mu.Unlock()

	h.broadcastRecord(RecordUpdateData{
		Entity:   entity,
		LocalID:  localID,
		RemoteID: remoteID,
		Action:   ActionPulled,
	})
}

// RecordDeleted implements sync.Observer.
func (h *Handler) RecordDeleted(entity model.Entity, localID int64, remoteDeleted bool) {
	h.mu.Lock()
	h.stats.Deleted++
	h.countEntity(entity, -1)
	h.mu.Unlock()

	h.broadcastRecord(RecordUpdateData{
		Entity:        entity,
		LocalID:       localID,
		Action:        ActionDeleted,
		RemoteDeleted: &remoteDeleted,
	})
}

// SyncCompleted implements sync.Observer.
func (h *Handler) SyncCompleted(t engine.Tally) {
	h.logger.Printf("Sync complete: %s in %v", t.Message(), t.Duration)

	now := time.Now()
	h.mu.Lock()
	if !t.NoUser {
		h.stats.Syncs++
		h.stats.LastSync = &now
	}
	h.mu.Unlock()

	data := SyncCompleteData{
		Pushed:   t.Pushed(),
		Pulled:   t.Pulled(),
		Failed:   t.Failed,
		NoUser:   t.NoUser,
		Message:  t.Message(),
		Duration: t.Duration,
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal sync data: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeSyncComplete,
		Timestamp: now,
		Data:      dataJSON,
	})
	h.broadcastStats()
}

// SetCounts replaces the local row counts, typically from the store on
// startup and after each sync.
func (h *Handler) SetCounts(transactions, goals, pending int) {
	h.mu.Lock()
	h.stats.Transactions = transactions
	h.stats.Goals = goals
	h.stats.Pending = pending
	h.mu.Unlock()

	h.broadcastStats()
}

// GetStats returns the current statistics.
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// countEntity adjusts the row count of entity. Callers hold h.mu.
func (h *Handler) countEntity(entity model.Entity, delta int) {
	switch entity {
	case model.EntityTransaction:
		h.stats.Transactions = max(0, h.stats.Transactions+delta)
	case model.EntityGoal:
		h.stats.Goals = max(0, h.stats.Goals+delta)
	}
}

func (h *Handler) broadcastRecord(data RecordUpdateData) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal record data: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeRecordUpdate,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}

func (h *Handler) broadcastStats() {
	h.server.Broadcast(h.statsMessage())
}

func (h *Handler) statsMessage() Message {
	stats := h.GetStats()

	dataJSON, err := json.Marshal(stats)
	if err != nil {
		h.logger.Printf("Failed to marshal stats: %v", err)
		return Message{Type: MessageTypeStats, Timestamp: time.Now()}
	}

	return Message{
		Type:      MessageTypeStats,
		Timestamp: time.Now(),
		Data:      dataJSON,
	}
}
