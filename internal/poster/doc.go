// Package poster runs bulk and periodic posting jobs against a remote wall
// API, and chat jobs against a messenger.
//
// A job is described by a JobSpec and identified by a key derived from its
// class and first target ("periodic:100", "bulk:100", "chat:2000000001").
// The Registry admits at most one live job per key, runs each job on its
// own supervised goroutine and removes the record as soon as the job's loop
// exits.
//
// Two bulk jobs whose target lists start with the same group share a key
// and therefore collide; the second one is rejected with ErrAlreadyRunning.
//
// Stop requests are cooperative. A stop issued during the inter-tick wait
// takes effect immediately; one issued during a network call takes effect
// once that call returns (bounded by the per-call timeout).
//
// Chat jobs with RetractAfter delete each tick's messages after that delay.
// Messages still waiting when the job stops are deleted before the final
// event.
package poster
