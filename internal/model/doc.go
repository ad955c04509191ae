// Package model defines the finance records that fintrack stores locally and
// mirrors to the remote API.
//
// # Records
//
// Two entity kinds exist: Transaction (a dated income or expense) and Goal (a
// savings target for one calendar month). Both carry the same bookkeeping
// fields:
//
//   - LocalID: assigned by the local store, immutable
//   - RemoteID: assigned by the server on the first successful push
//   - OwnerUserID: the authenticated user that owns the row
//   - Synced: true once RemoteID has been confirmed for this exact row
//
// A record starts Local-Only (Synced=false, RemoteID=nil) and moves to Synced
// exactly once. There is no transition back.
//
// # Wire Format
//
// The remote API uses its own field names (desc, type, date, target_amount,
// ...). TransactionPayload and GoalPayload carry only the domain fields and
// are what gets POSTed; RemoteTransaction and RemoteGoal are what the server
// lists back with an id attached.
//
//	{"amount": 42.5, "desc": "Groceries", "type": "expense",
//	 "category": "food", "date": "2024-05-03"}
package model
