package sync

import "github.com/steveyegge/fintrack/internal/model"

// Observer is notified of engine activity. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	RecordSynced(o Outcome)
	RecordPending(o Outcome)
	RecordPulled(entity model.Entity, localID, remoteID int64)
	RecordDeleted(entity model.Entity, localID int64, remoteDeleted bool)
	SyncCompleted(t Tally)
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) RecordSynced(Outcome)                    {}
func (NopObserver) RecordPending(Outcome)                   {}
func (NopObserver) RecordPulled(model.Entity, int64, int64) {}
func (NopObserver) RecordDeleted(model.Entity, int64, bool) {}
func (NopObserver) SyncCompleted(Tally)                     {}

// MultiObserver fans events out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) RecordSynced(o Outcome) {
	for _, obs := range m {
		obs.RecordSynced(o)
	}
}

func (m MultiObserver) RecordPending(o Outcome) {
	for _, obs := range m {
		obs.RecordPending(o)
	}
}

func (m MultiObserver) RecordPulled(entity model.Entity, localID, remoteID int64) {
	for _, obs := range m {
		obs.RecordPulled(entity, localID, remoteID)
	}
}

func (m MultiObserver) RecordDeleted(entity model.Entity, localID int64, remoteDeleted bool) {
	for _, obs := range m {
		obs.RecordDeleted(entity, localID, remoteDeleted)
	}
}

func (m MultiObserver) SyncCompleted(t Tally) {
	for _, obs := range m {
		obs.SyncCompleted(t)
	}
}
