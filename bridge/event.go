// Package bridge coordinates one inbound chat message end to end: session
// resolution, completion streaming, throttled card updates, media reference
// rewriting, and degraded plain-message delivery when no card is available.
package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message kind discriminators as delivered by the transport.
const (
	MsgTypeText     = "text"
	MsgTypeRichText = "richText"
	MsgTypePicture  = "picture"
	MsgTypeAudio    = "audio"
	MsgTypeVideo    = "video"
	MsgTypeFile     = "file"
)

// Conversation type discriminators.
const (
	ConversationDirect = "1"
	ConversationGroup  = "2"
)

// Placeholder text for non-text message kinds.
const (
	placeholderPicture = "[图片消息]"
	placeholderAudio   = "[语音消息]"
	placeholderVideo   = "[视频消息]"
	placeholderFile    = "[文件消息]"
)

// TextContent is the payload of a plain text message.
type TextContent struct {
	Content string `json:"content"`
}

// RichTextContent is the payload of a rich-text message: an ordered list of
// runs, of which only the text runs contribute to extraction.
type RichTextContent struct {
	RichText []RichTextRun `json:"richText"`
}

// RichTextRun is one run inside a rich-text message.
type RichTextRun struct {
	Text string `json:"text,omitempty"`
}

// AudioContent is the payload of an audio message. Recognition carries the
// speech-to-text result when the platform produced one.
type AudioContent struct {
	Recognition string `json:"recognition,omitempty"`
}

// InboundEvent is one chat message from the transport, parsed into tagged
// per-kind content at the boundary. Exactly one content field matching
// MsgType is set for the kinds that carry content.
type InboundEvent struct {
	MsgType          string `json:"msgtype"`
	ConversationType string `json:"conversationType"`

	SenderStaffID string `json:"senderStaffId,omitempty"`
	SenderID      string `json:"senderId,omitempty"`
	SenderNick    string `json:"senderNick,omitempty"`

	OpenConversationID string `json:"conversationId,omitempty"`
	RobotCode          string `json:"robotCode,omitempty"`
	SessionWebhook     string `json:"sessionWebhook,omitempty"`
	CreateAt           int64  `json:"createAt,omitempty"`

	Text     *TextContent     `json:"text,omitempty"`
	RichText *RichTextContent `json:"content,omitempty"`
	Audio    *AudioContent    `json:"audio,omitempty"`
}

// ParseEvent decodes a raw transport payload into an InboundEvent, validating
// the fields the orchestrator depends on.
func ParseEvent(raw []byte) (*InboundEvent, error) {
	var ev InboundEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode inbound event: %w", err)
	}
	if ev.MsgType == "" {
		return nil, fmt.Errorf("inbound event missing msgtype")
	}
	if ev.SenderKey() == "" {
		return nil, fmt.Errorf("inbound event missing sender identity")
	}
	return &ev, nil
}

// SenderKey returns the sender identity, preferring the staff id when present.
func (e *InboundEvent) SenderKey() string {
	if e.SenderStaffID != "" {
		return e.SenderStaffID
	}
	return e.SenderID
}

// IsGroup reports whether the event came from a group conversation.
func (e *InboundEvent) IsGroup() bool {
	return e.ConversationType == ConversationGroup
}

// ExtractText returns the display text for the event's message kind.
// Audio prefers the recognized-speech field over its placeholder. Unknown
// kinds yield empty text, which ends processing upstream.
func (e *InboundEvent) ExtractText() string {
	switch e.MsgType {
	case MsgTypeText:
		if e.Text == nil {
			return ""
		}
		return strings.TrimSpace(e.Text.Content)
	case MsgTypeRichText:
		if e.RichText == nil {
			return ""
		}
		var sb strings.Builder
		for _, run := range e.RichText.RichText {
			sb.WriteString(run.Text)
		}
		return strings.TrimSpace(sb.String())
	case MsgTypePicture:
		return placeholderPicture
	case MsgTypeAudio:
		if e.Audio != nil {
			if rec := strings.TrimSpace(e.Audio.Recognition); rec != "" {
				return rec
			}
		}
		return placeholderAudio
	case MsgTypeVideo:
		return placeholderVideo
	case MsgTypeFile:
		return placeholderFile
	default:
		return ""
	}
}
