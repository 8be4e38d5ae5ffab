// Package domain defines the core domain types shared by the poll engine,
// the participant registry, the hub, and the adapters.
//
// This package contains concept-oriented files (poll.go, participant.go, chat.go, errors.go)
// with plain data types and sentinel errors. No I/O, no goroutines.
package domain
