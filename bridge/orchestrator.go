package bridge

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/zhuxian89/dingtalk-moltbot-connector/card"
	"github.com/zhuxian89/dingtalk-moltbot-connector/completion"
	"github.com/zhuxian89/dingtalk-moltbot-connector/logger"
	metrics "github.com/zhuxian89/dingtalk-moltbot-connector/metrics/prometheus"
	"github.com/zhuxian89/dingtalk-moltbot-connector/session"
	"github.com/zhuxian89/dingtalk-moltbot-connector/telemetry"
)

const (
	// defaultUpdateInterval bounds card push volume: content updates go out at
	// most once per interval, regardless of delta arrival rate.
	defaultUpdateInterval = 500 * time.Millisecond

	defaultSessionTimeout = 30 * time.Minute

	// resetAck is sent when a reset command rotates the session.
	resetAck = "会话已重置,我们重新开始吧。(Conversation reset.)"

	// markdownTitle heads degraded plain-markdown replies.
	markdownTitle = "AI 回复"

	// mediaUsagePrompt teaches the model the local reference forms the media
	// resolver understands.
	mediaUsagePrompt = "当你需要在回复中包含生成的图片时,使用 Markdown 图片语法引用其本地文件路径," +
		"例如 ![说明](/tmp/example.png)。不要编造不存在的文件路径。"
)

// Streamer opens one streaming completion per message.
type Streamer interface {
	Stream(ctx context.Context, req completion.ChatRequest) (<-chan completion.Fragment, error)
}

// CardDriver is the card lifecycle surface. *card.Controller implements it.
type CardDriver interface {
	Create(ctx context.Context, target card.Target) (*card.Card, error)
	Update(ctx context.Context, c *card.Card, content string, isFinal bool) error
	Finish(ctx context.Context, c *card.Card, content string) error
}

// MediaProcessor rewrites local media references in final text.
type MediaProcessor interface {
	Process(ctx context.Context, text, token string) string
}

// TokenProvider supplies the bearer token for media uploads.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Options carries the orchestrator's tunables. The zero value is usable:
// defaults are applied in NewOrchestrator and both conversation types are
// allowed.
type Options struct {
	SessionTimeout time.Duration
	UpdateInterval time.Duration

	// CustomPrompt is appended to the system prompts when non-empty.
	CustomPrompt string

	// MediaUploadEnabled turns on local-reference rewriting in final text.
	MediaUploadEnabled bool

	// RobotCode is the bot's routing code for group card delivery when the
	// inbound event does not carry one.
	RobotCode string

	// GroupDisabled and DirectDisabled drop messages from the corresponding
	// conversation type without processing.
	GroupDisabled  bool
	DirectDisabled bool
}

// Orchestrator handles one inbound message at a time per call; many calls may
// run concurrently. It owns no per-message state beyond its stack.
type Orchestrator struct {
	sessions *session.Registry
	cards    CardDriver
	streamer Streamer
	resolver MediaProcessor
	tokens   TokenProvider
	replier  Replier
	tracer   trace.Tracer
	opts     Options
}

// NewOrchestrator wires the per-message coordinator. tokens may be nil when
// media upload is disabled.
func NewOrchestrator(
	sessions *session.Registry,
	cards CardDriver,
	streamer Streamer,
	resolver MediaProcessor,
	tokens TokenProvider,
	replier Replier,
	opts Options,
) *Orchestrator {
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = defaultSessionTimeout
	}
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = defaultUpdateInterval
	}
	return &Orchestrator{
		sessions: sessions,
		cards:    cards,
		streamer: streamer,
		resolver: resolver,
		tokens:   tokens,
		replier:  replier,
		tracer:   telemetry.Tracer(nil),
		opts:     opts,
	}
}

// HandleMessage processes one inbound event. A nil return acknowledges the
// message to the transport; an error return means nothing reached the user.
func (o *Orchestrator) HandleMessage(ctx context.Context, ev *InboundEvent) error {
	ctx, span := o.tracer.Start(ctx, "bridge.HandleMessage",
		trace.WithAttributes(
			attribute.String("msg.kind", ev.MsgType),
			attribute.Bool("msg.group", ev.IsGroup()),
		))
	defer span.End()

	if ev.IsGroup() && o.opts.GroupDisabled {
		logger.Debug("group message dropped by access policy", "sender", ev.SenderKey())
		return nil
	}
	if !ev.IsGroup() && o.opts.DirectDisabled {
		logger.Debug("direct message dropped by access policy", "sender", ev.SenderKey())
		return nil
	}

	text := ev.ExtractText()
	if text == "" {
		metrics.RecordMessage(ev.MsgType, "empty")
		return nil
	}

	sender := ev.SenderKey()

	if session.IsResetCommand(text) {
		o.sessions.Resolve(sender, true, o.opts.SessionTimeout)
		metrics.RecordMessage(ev.MsgType, "reset")
		metrics.SetSessionsActive(o.sessions.ActiveCount())
		logger.Info("session reset", "sender", sender)
		return o.replier.SendText(ctx, ev.SessionWebhook, resetAck)
	}

	conversationKey, rotated := o.sessions.Resolve(sender, false, o.opts.SessionTimeout)
	metrics.SetSessionsActive(o.sessions.ActiveCount())
	if rotated {
		logger.Info("session expired, rotated key", "sender", sender)
	}

	err := o.respond(ctx, ev, text, conversationKey)
	if err != nil {
		metrics.RecordMessage(ev.MsgType, "error")
		return err
	}
	metrics.RecordMessage(ev.MsgType, "success")
	return nil
}

// respond drives one completion stream into either a streaming card or a
// buffered plain message.
func (o *Orchestrator) respond(ctx context.Context, ev *InboundEvent, text, conversationKey string) error {
	activeCard, err := o.cards.Create(ctx, o.cardTarget(ev))
	if err != nil {
		logger.Warn("card creation failed, falling back to plain delivery", "error", err)
		metrics.RecordCardFallback()
		activeCard = nil
	}

	streamStart := time.Now()
	fragments, err := o.streamer.Stream(ctx, completion.ChatRequest{
		UserText:        text,
		SystemPrompts:   o.systemPrompts(),
		ConversationKey: conversationKey,
	})
	if err != nil {
		metrics.RecordStreamDuration("error", time.Since(streamStart).Seconds())
		return o.finalize(ctx, ev, activeCard, annotateError("", err))
	}

	limiter := rate.NewLimiter(rate.Every(o.opts.UpdateInterval), 1)

	var accumulated string
	var streamErr error
	var pushed, pushesStopped bool
	for frag := range fragments {
		if frag.Err != nil {
			streamErr = frag.Err
			break
		}
		accumulated += frag.Delta

		if activeCard == nil || pushesStopped {
			continue
		}
		if !limiter.Allow() {
			metrics.RecordCardPush("throttled")
			continue
		}
		if pushErr := o.cards.Update(ctx, activeCard, accumulated, false); pushErr != nil {
			metrics.RecordCardPush("error")
			if !pushed {
				// Nothing reached the card yet, so the user never saw it.
				logger.Warn("card update failed, falling back to plain delivery", "card_id", activeCard.ID, "error", pushErr)
				metrics.RecordCardFallback()
				activeCard = nil
				continue
			}
			// The user can already see this card; stop intermediate pushes
			// and let finalize try to close it out.
			logger.Warn("card update failed, deferring to finalize", "card_id", activeCard.ID, "error", pushErr)
			pushesStopped = true
			continue
		}
		metrics.RecordCardPush("success")
		pushed = true
	}

	if streamErr != nil {
		metrics.RecordStreamDuration("error", time.Since(streamStart).Seconds())
		logger.Error("completion stream failed", "error", streamErr, "partial_len", len(accumulated))
		return o.finalize(ctx, ev, activeCard, annotateError(accumulated, streamErr))
	}

	metrics.RecordStreamDuration("success", time.Since(streamStart).Seconds())
	return o.finalize(ctx, ev, activeCard, accumulated)
}

// finalize runs media post-processing over the final text and delivers it,
// through the card when one is live, else as one markdown message.
func (o *Orchestrator) finalize(ctx context.Context, ev *InboundEvent, activeCard *card.Card, text string) error {
	final := o.resolveMedia(ctx, text)

	if activeCard != nil {
		if err := o.cards.Finish(ctx, activeCard, final); err != nil {
			logger.Warn("card finish failed, falling back to plain delivery", "card_id", activeCard.ID, "error", err)
			metrics.RecordCardFallback()
			return o.replier.SendMarkdown(ctx, ev.SessionWebhook, markdownTitle, final)
		}
		return nil
	}
	return o.replier.SendMarkdown(ctx, ev.SessionWebhook, markdownTitle, final)
}

// resolveMedia rewrites local references when media upload is enabled and a
// token is available; otherwise the text passes through unchanged.
func (o *Orchestrator) resolveMedia(ctx context.Context, text string) string {
	if !o.opts.MediaUploadEnabled || o.tokens == nil {
		return text
	}
	token, err := o.tokens.Token(ctx)
	if err != nil {
		logger.Warn("media upload token unavailable", "error", err)
		metrics.RecordMediaUpload("error")
		return text
	}
	return o.resolver.Process(ctx, text, token)
}

func (o *Orchestrator) systemPrompts() []string {
	prompts := []string{}
	if o.opts.MediaUploadEnabled {
		prompts = append(prompts, mediaUsagePrompt)
	}
	if o.opts.CustomPrompt != "" {
		prompts = append(prompts, o.opts.CustomPrompt)
	}
	return prompts
}

func (o *Orchestrator) cardTarget(ev *InboundEvent) card.Target {
	robotCode := ev.RobotCode
	if robotCode == "" {
		robotCode = o.opts.RobotCode
	}
	return card.Target{
		IsGroup:            ev.IsGroup(),
		OpenConversationID: ev.OpenConversationID,
		RobotCode:          robotCode,
		StaffID:            ev.SenderKey(),
	}
}

// annotateError appends a visible error annotation so the user never sees a
// silently stuck reply.
func annotateError(accumulated string, err error) string {
	if accumulated == "" {
		return fmt.Sprintf("(生成失败: %v)", err)
	}
	return accumulated + fmt.Sprintf("\n\n(生成中断: %v)", err)
}
