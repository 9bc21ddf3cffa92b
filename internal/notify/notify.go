// Package notify carries ledger change events to collaborators. Delivery is
// fire-and-forget: a sink that fails logs and moves on.
package notify

import (
	"github.com/google/logger"
)

// Event types.
const (
	EventTicketsUpdated      = "tickets_updated"
	EventParticipantsUpdated = "participants_updated"
	EventParticipantsReset   = "participants_reset"
)

// Notifier receives ledger change events.
type Notifier interface {
	TicketsUpdated(total int)
	ParticipantsUpdated(unique int)
	ParticipantsReset(reason string)
}

// Nop discards every event.
type Nop struct{}

func (Nop) TicketsUpdated(int)       {}
func (Nop) ParticipantsUpdated(int)  {}
func (Nop) ParticipantsReset(string) {}

// Log writes events to the process log.
type Log struct{}

func (Log) TicketsUpdated(total int) {
	logger.Infof("tickets updated: %d", total)
}

func (Log) ParticipantsUpdated(unique int) {
	logger.Infof("participants updated: %d", unique)
}

func (Log) ParticipantsReset(reason string) {
	logger.Infof("participants reset (%s)", reason)
}

// Multi fans each event out to every sink in order.
type Multi []Notifier

func (m Multi) TicketsUpdated(total int) {
	for _, n := range m {
		n.TicketsUpdated(total)
	}
}

func (m Multi) ParticipantsUpdated(unique int) {
	for _, n := range m {
		n.ParticipantsUpdated(unique)
	}
}

func (m Multi) ParticipantsReset(reason string) {
	for _, n := range m {
		n.ParticipantsReset(reason)
	}
}
