// Package terminal owns the simulated terminal session.
//
// Ownership boundary:
// - host TCP connection lifecycle and framing
// - transaction history and response matching
// - reversal construction
//
// Everything here is mutated on the session loop goroutine only. Other
// goroutines reach it through Session.Post, Session.Call or the read-only
// getters, which hop onto the loop.
package terminal
