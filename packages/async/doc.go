// Package async provides Call, a single-value asynchronous result.
//
// A Call completes exactly once, either with a value or with an error. The
// caller owns the returned handle: it can wait on it (Await, Done), attach
// continuations (Then, OnError, Finally), derive new calls (Map, TryMap,
// ToVoid) or move delivery onto another execution context (ReceiveOn).
//
// Cancelling a pending call aborts the underlying work through its context
// and guarantees that none of its continuations run afterwards.
package async
