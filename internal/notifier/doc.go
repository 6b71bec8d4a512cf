// Package notifier delivers operator-facing chat messages asynchronously.
//
// Job progress, job summaries and command confirmations are queued with
// Notify, which never blocks, and sent by a small supervised worker pool
// under a shared rate limit, with jittered exponential retry. A bounded
// in-memory history of delivered messages backs /status.
package notifier
