// Package responder implements the vacation auto-reply cycle.
//
// A cycle lists recent inbox messages, fetches each one, decides whether it
// needs a reply, sends the fixed reply when it does, and labels the thread
// either way. Cycles are driven by a Scheduler that waits a random delay
// between runs and never lets two cycles overlap.
//
// Failures never escape a cycle: a list failure ends the cycle, a fetch
// failure skips that message, and send or label failures are logged. Nothing
// is retried.
package responder
