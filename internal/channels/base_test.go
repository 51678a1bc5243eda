package channels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewgate/crewgate/internal/bus"
)

func TestBaseChannel_IsAllowed(t *testing.T) {
	tests := []struct {
		name      string
		allowFrom []string
		sender    string
		want      bool
	}{
		{"empty allowlist admits everyone", nil, "whoever", true},
		{"listed sender", []string{"991", "ops-bot"}, "991", true},
		{"unlisted sender", []string{"991"}, "992", false},
		{"pipe alternate matches on id", []string{"991"}, "991|jsmith", true},
		{"pipe alternate matches on username", []string{"jsmith"}, "991|jsmith", true},
		{"no alternate matches", []string{"991"}, "40|mallory", false},
		{"empty alternate segment ignored", []string{"991"}, "|991", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &BaseChannel{AllowFrom: tt.allowFrom}
			assert.Equal(t, tt.want, b.IsAllowed(tt.sender))
		})
	}
}

func TestBaseChannel_HandleMessage(t *testing.T) {
	mb := bus.New()
	b := &BaseChannel{ChannelName: "telegram", Bus: mb}

	b.HandleMessage("991", "group-4", "deploy status?", []string{"photo.jpg"}, map[string]any{"thread": 5})
	require.Equal(t, 1, mb.InboundSize())

	msg := <-mb.Inbound()
	assert.Equal(t, "telegram", msg.Channel)
	assert.Equal(t, "991", msg.SenderID)
	assert.Equal(t, "group-4", msg.ChatID)
	assert.Equal(t, "deploy status?", msg.Content)
	assert.Equal(t, []string{"photo.jpg"}, msg.Media)
	assert.Equal(t, 5, msg.Metadata["thread"])
}

func TestBaseChannel_HandleMessage_DeniedSenderDropped(t *testing.T) {
	mb := bus.New()
	b := &BaseChannel{ChannelName: "telegram", Bus: mb, AllowFrom: []string{"991"}}

	b.HandleMessage("mallory", "group-4", "let me in", nil, nil)
	assert.Zero(t, mb.InboundSize())
}
