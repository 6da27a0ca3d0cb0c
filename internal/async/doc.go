// Package async provides completion tokens: single-use continuations that
// carry the outcome of an asynchronous operation back to the session
// dispatcher.
//
// A Token starts pending and is completed exactly once with Complete. Its
// handlers run synchronously, on the dispatcher, inside Complete. Tokens
// may be linked to a parent; by default a child that finishes reports its
// outcome to the parent, and the parent completes once its last dependent
// has finished. DataToken adds a result payload and CountingToken waits
// for a fixed number of child completions.
//
// RunSequence composes steps into a transaction-like chain that rolls back
// completed steps when a later step fails.
package async
