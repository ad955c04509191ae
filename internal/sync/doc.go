// Package sync keeps a device's local store and the API server in step.
//
// Overview
//
// Every write lands in the local store first. The engine then tries, at most
// once per call unless retries are configured, to mirror it on the server.
// A failed attempt leaves the row pending; a later push picks it up.
//
//	user action
//	     ↓
//	  Engine ──create──→ store (synced=0)      always, first
//	     │
//	     └──POST──→ server ──id──→ store (synced=1, remote_id=id)   best effort
//
// Operations
//
//   - AddTransaction / AddGoal: local create, then one opportunistic push.
//   - PushPendingTransactions / PushPendingGoals: push every pending row in
//     creation order. One failure never aborts the batch.
//   - PullTransactions / PullGoals: insert every server record whose id is
//     not yet known locally.
//   - FullSync: push then pull, per record kind. Never fails.
//   - DeleteTransaction / DeleteGoal: best-effort remote delete, then an
//     unconditional local delete.
//
// Record states
//
// A row is Pending (synced=0, no remote id) until the server confirms it,
// then Synced. There is no transition back. Push filters on synced=0 and pull
// checks remote ids, so operations may interleave without locking.
//
// Usage
//
//	engine := sync.New(database, client, sess, nil)
//
//	out, err := engine.AddTransaction(ctx, tx, sync.AddOptions{
//	    Eligible: engine.Eligibility(ctx).Eligible(),
//	})
//	if err != nil {
//	    return err // local write failed
//	}
//	if out.State == sync.StatePending {
//	    fmt.Println("saved offline:", out.Reason)
//	}
//
//	tally := engine.FullSync(ctx)
//	fmt.Println(tally.Message())
package sync
