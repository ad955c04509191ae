package sync

import (
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/fintrack/internal/model"
)

// ErrNoUser is returned when an operation that writes needs a signed-in user.
var ErrNoUser = errors.New("no current user")

// ErrNotEligible is the pending reason when the caller skipped the remote attempt.
var ErrNotEligible = errors.New("not eligible to sync (offline or signed out)")

// State is the sync state of one record after an operation.
type State int

const (
	StatePending State = iota
	StateSynced
)

func (s State) String() string {
	if s == StateSynced {
		return "synced"
	}
	return "pending"
}

// Outcome is the per-record result of a sync attempt: either
// Synced{RemoteID} or Pending{Reason}.
type Outcome struct {
	Entity   model.Entity
	LocalID  int64
	State    State
	RemoteID int64 // set when State == StateSynced
	Reason   error // set when State == StatePending
}

// Synced returns a synced outcome.
func Synced(entity model.Entity, localID, remoteID int64) Outcome {
	return Outcome{Entity: entity, LocalID: localID, State: StateSynced, RemoteID: remoteID}
}

// Pending returns a pending outcome.
func Pending(entity model.Entity, localID int64, reason error) Outcome {
	return Outcome{Entity: entity, LocalID: localID, State: StatePending, Reason: reason}
}

// IsSynced reports whether the record reached the server.
func (o Outcome) IsSynced() bool {
	return o.State == StateSynced
}

func (o Outcome) String() string {
	if o.IsSynced() {
		return fmt.Sprintf("%s %d: synced (remote %d)", o.Entity, o.LocalID, o.RemoteID)
	}
	return fmt.Sprintf("%s %d: pending (%v)", o.Entity, o.LocalID, o.Reason)
}

// BatchResult collects the outcomes of a push or pull.
//
// For a push, Count is the number of newly synced records and Failed the
// number left pending. For a pull, Count is the number of inserted rows and
// Failed the number of remote records that could not be stored.
type BatchResult struct {
	Entity   model.Entity
	Outcomes []Outcome
	Count    int
	Failed   int
}

func newBatch(entity model.Entity) *BatchResult {
	return &BatchResult{Entity: entity, Outcomes: make([]Outcome, 0)}
}

func (b *BatchResult) add(o Outcome) {
	b.Outcomes = append(b.Outcomes, o)
	if o.IsSynced() {
		b.Count++
	} else {
		b.Failed++
	}
}

// Pending returns the outcomes that did not sync.
func (b *BatchResult) Pending() []Outcome {
	var out []Outcome
	for _, o := range b.Outcomes {
		if !o.IsSynced() {
			out = append(out, o)
		}
	}
	return out
}

// Tally summarizes a full sync.
type Tally struct {
	TransactionsPushed int
	GoalsPushed        int
	TransactionsPulled int
	GoalsPulled        int

	// Failed counts records left pending or remote records not stored.
	Failed int

	// NoUser is set when no user was signed in and nothing ran.
	NoUser bool

	Duration time.Duration
}

// Pushed returns the number of records uploaded.
func (t Tally) Pushed() int {
	return t.TransactionsPushed + t.GoalsPushed
}

// Pulled returns the number of records downloaded.
func (t Tally) Pulled() int {
	return t.TransactionsPulled + t.GoalsPulled
}

// Message renders the user-facing result. A sync that moved nothing is
// neutral, not an error.
func (t Tally) Message() string {
	if t.Pushed() == 0 && t.Pulled() == 0 {
		return "already synchronized"
	}
	return fmt.Sprintf("%d synced, %d downloaded", t.Pushed(), t.Pulled())
}

// DeleteResult describes a deletion.
type DeleteResult struct {
	// Found is false when no such row existed for the user.
	Found bool

	// RemoteDeleted is true when the server copy was removed.
	RemoteDeleted bool

	// RemoteErr is the ignored remote failure, if any.
	RemoteErr error
}

// Eligibility is the caller's ability to reach the server right now.
type Eligibility struct {
	Authenticated    bool
	BackendAvailable bool
}

// Eligible reports whether a remote attempt is worth making.
func (e Eligibility) Eligible() bool {
	return e.Authenticated && e.BackendAvailable
}
