package card

import (
	"context"

	"github.com/google/uuid"

	"github.com/zhuxian89/dingtalk-moltbot-connector/logger"
)

// API is the card REST surface the controller drives. *Client implements it;
// tests substitute stubs.
type API interface {
	Instantiate(ctx context.Context, cardID, templateID string) error
	Deliver(ctx context.Context, cardID string, target Target) error
	StreamPush(ctx context.Context, cardID, content string, isFinal bool) error
	SetFinished(ctx context.Context, cardID string) error
}

// Controller owns the card lifecycle state machine.
type Controller struct {
	api        API
	templateID string
}

// NewController creates a controller pushing cards built from templateID.
func NewController(api API, templateID string) *Controller {
	return &Controller{
		api:        api,
		templateID: templateID,
	}
}

// Create instantiates and delivers a new card, making it visible but empty to
// the end user. Either remote call failing aborts creation; the caller must
// fall back to non-card delivery.
func (c *Controller) Create(ctx context.Context, target Target) (*Card, error) {
	cardID := uuid.NewString()

	if err := c.api.Instantiate(ctx, cardID, c.templateID); err != nil {
		return nil, err
	}
	if err := c.api.Deliver(ctx, cardID, target); err != nil {
		return nil, err
	}

	logger.Debug("card created", "card_id", cardID, "group", target.IsGroup)
	return &Card{
		ID:     cardID,
		phase:  phaseCreated,
		target: target,
	}, nil
}

// Update pushes content as a full replacement of the card's display text.
//
// The first Update for a card pushes the "inputting" phase transition (an
// empty non-final push) before any content; the remote system rejects content
// on a card still in its created phase. If that transition push fails the
// card is broken and the error propagates. Re-pushing identical content is
// skipped.
func (c *Controller) Update(ctx context.Context, card *Card, content string, isFinal bool) error {
	if card.phase == phaseFinished {
		return ErrFinished
	}

	if card.phase == phaseCreated {
		if err := c.api.StreamPush(ctx, card.ID, "", false); err != nil {
			return err
		}
		card.phase = phaseActive
	}

	if content == card.lastPushed && isFinal == card.lastFinal {
		return nil
	}

	if err := c.api.StreamPush(ctx, card.ID, content, isFinal); err != nil {
		return err
	}
	card.lastPushed = content
	card.lastFinal = isFinal
	return nil
}

// Finish closes the card: a finalizing content push first, then the terminal
// status write. The order matters, the remote system treats the streaming
// channel and the status field as independent state and a skipped finalize
// leaves the card dangling mid-stream. A failed status write is logged and
// swallowed since the user-visible content was already delivered.
func (c *Controller) Finish(ctx context.Context, card *Card, content string) error {
	if card.phase == phaseFinished {
		return ErrFinished
	}

	if err := c.Update(ctx, card, content, true); err != nil {
		return err
	}

	if err := c.api.SetFinished(ctx, card.ID); err != nil {
		logger.Warn("card terminal status write failed", "card_id", card.ID, "error", err)
	}
	card.phase = phaseFinished
	return nil
}
