// Package card drives DingTalk AI streaming cards through their lifecycle.
//
// A card is a remote, user-visible UI object whose displayed text is replaced
// incrementally to simulate live typing. The remote API imposes a strict
// order: instantiate, deliver, an "inputting" phase transition, content
// pushes, a finalizing push, then the terminal status write. The Controller
// enforces that order; callers only see Create, Update and Finish.
package card

import "errors"

// phase is the card lifecycle state. Transitions only move forward.
type phase int

const (
	phaseCreated phase = iota
	phaseActive
	phaseFinished
)

var (
	// ErrFinished is returned when updating a card that was already finalized.
	ErrFinished = errors.New("card already finished")
)

// Target identifies where a card is delivered.
type Target struct {
	// IsGroup selects group delivery (open conversation + robot code) over
	// direct delivery (staff id).
	IsGroup bool
	// OpenConversationID is the group conversation identifier. Group only.
	OpenConversationID string
	// RobotCode is the bot's routing code. Group only.
	RobotCode string
	// StaffID is the recipient's staff identifier. Direct only.
	StaffID string
}

// Card is one live streaming card. It is owned by a single message-handling
// task and must not be shared.
type Card struct {
	// ID is the out-track identifier generated at creation, unique per message.
	ID string

	phase      phase
	lastPushed string
	lastFinal  bool
	target     Target
}

// Finished reports whether the card reached its terminal phase.
func (c *Card) Finished() bool {
	return c.phase == phaseFinished
}
