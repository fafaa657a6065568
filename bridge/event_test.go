package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	raw := []byte(`{
		"msgtype": "text",
		"conversationType": "2",
		"senderStaffId": "staff1",
		"senderId": "raw1",
		"senderNick": "Alice",
		"conversationId": "conv1",
		"robotCode": "bot1",
		"sessionWebhook": "https://example.com/hook",
		"createAt": 1700000000000,
		"text": {"content": " hello "}
	}`)

	ev, err := ParseEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "staff1", ev.SenderKey())
	assert.True(t, ev.IsGroup())
	assert.Equal(t, "hello", ev.ExtractText())
}

func TestParseEvent_Invalid(t *testing.T) {
	_, err := ParseEvent([]byte(`{"conversationType":"1"}`))
	require.Error(t, err)

	_, err = ParseEvent([]byte(`not json`))
	require.Error(t, err)
}

func TestSenderKey_FallsBackToRawID(t *testing.T) {
	ev := &InboundEvent{SenderID: "raw1"}
	assert.Equal(t, "raw1", ev.SenderKey())
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		ev   InboundEvent
		want string
	}{
		{
			name: "plain text",
			ev:   InboundEvent{MsgType: MsgTypeText, Text: &TextContent{Content: "hi"}},
			want: "hi",
		},
		{
			name: "text missing payload",
			ev:   InboundEvent{MsgType: MsgTypeText},
			want: "",
		},
		{
			name: "rich text concatenates runs",
			ev: InboundEvent{MsgType: MsgTypeRichText, RichText: &RichTextContent{
				RichText: []RichTextRun{{Text: "hello "}, {Text: ""}, {Text: "world"}},
			}},
			want: "hello world",
		},
		{
			name: "picture placeholder",
			ev:   InboundEvent{MsgType: MsgTypePicture},
			want: placeholderPicture,
		},
		{
			name: "audio with recognition",
			ev:   InboundEvent{MsgType: MsgTypeAudio, Audio: &AudioContent{Recognition: "spoken words"}},
			want: "spoken words",
		},
		{
			name: "audio without recognition",
			ev:   InboundEvent{MsgType: MsgTypeAudio},
			want: placeholderAudio,
		},
		{
			name: "audio with whitespace-only recognition",
			ev:   InboundEvent{MsgType: MsgTypeAudio, Audio: &AudioContent{Recognition: "  \n "}},
			want: placeholderAudio,
		},
		{
			name: "video placeholder",
			ev:   InboundEvent{MsgType: MsgTypeVideo},
			want: placeholderVideo,
		},
		{
			name: "file placeholder",
			ev:   InboundEvent{MsgType: MsgTypeFile},
			want: placeholderFile,
		},
		{
			name: "unknown kind yields empty",
			ev:   InboundEvent{MsgType: "sticker"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ev.ExtractText())
		})
	}
}
