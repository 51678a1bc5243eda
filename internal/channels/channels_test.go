package channels

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewgate/crewgate/internal/bus"
)

func TestMarkdownToTelegramHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
		excludes []string
	}{
		{name: "empty", input: "", contains: nil},
		{name: "bold stars", input: "ship **today**", contains: []string{"<b>today</b>"}},
		{name: "bold underscores", input: "__note__", contains: []string{"<b>note</b>"}},
		{name: "strikethrough", input: "~~cancelled~~", contains: []string{"<s>cancelled</s>"}},
		{
			name:     "inline code survives escaping",
			input:    "run `make <target>`",
			contains: []string{"<code>make &lt;target&gt;</code>"},
		},
		{
			name:     "fenced block keeps body",
			input:    "```sh\nkubectl get pods\n```",
			contains: []string{"<pre><code>", "kubectl get pods"},
		},
		{
			name:     "link",
			input:    "see [docs](https://pkg.go.dev)",
			contains: []string{`<a href="https://pkg.go.dev">docs</a>`},
		},
		{
			name:     "heading stripped to text",
			input:    "## Rollout plan\ndetails",
			contains: []string{"Rollout plan"},
			excludes: []string{"##"},
		},
		{
			name:     "bullets",
			input:    "- alpha\n- beta",
			contains: []string{"• alpha", "• beta"},
		},
		{
			name:     "html entities escaped",
			input:    "if a < b && b > c",
			contains: []string{"&lt;", "&gt;", "&amp;&amp;"},
			excludes: []string{"<b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MarkdownToTelegramHTML(tt.input)
			if tt.input == "" {
				assert.Empty(t, got)
			}
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			for _, not := range tt.excludes {
				assert.NotContains(t, got, not)
			}
		})
	}
}

// --- Telegram Channel tests ---

func TestTelegramChannel_Interface(t *testing.T) {
	ch := NewTelegramChannel("test-token", nil, bus.New())
	var _ Channel = ch
	assert.Equal(t, "telegram", ch.Name())
	assert.False(t, ch.IsRunning())
}

func TestTelegramChannel_StartNoToken(t *testing.T) {
	ch := NewTelegramChannel("", nil, bus.New())
	err := ch.Start(context.Background())
	assert.Error(t, err)
}

// --- WebSocket Channel tests ---

func TestWebSocketChannel_Interface(t *testing.T) {
	ch := NewWebSocketChannel("127.0.0.1:0", nil, bus.New())
	var _ Channel = ch
	assert.Equal(t, "websocket", ch.Name())
	assert.False(t, ch.IsRunning())
}

func TestWebSocketChannel_StartNoAddr(t *testing.T) {
	ch := NewWebSocketChannel("", nil, bus.New())
	err := ch.Start(context.Background())
	assert.Error(t, err)
}

// dialWS spins up a test server around the channel's connect handler and
// dials it with the given query string.
func dialWS(t *testing.T, ch *WebSocketChannel, query string) (*websocket.Conn, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(ch.handleConnect))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	require.NoError(t, err)
	return conn, srv
}

func TestWebSocketChannel_InboundReachesBus(t *testing.T) {
	mb := bus.New()
	ch := NewWebSocketChannel("127.0.0.1:0", nil, mb)
	conn, srv := dialWS(t, ch, "chat=chat1&sender=alice")
	defer srv.Close()
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(wsInbound{Content: "hello"}))

	select {
	case msg := <-mb.Inbound():
		assert.Equal(t, "websocket", msg.Channel)
		assert.Equal(t, "alice", msg.SenderID)
		assert.Equal(t, "chat1", msg.ChatID)
		assert.Equal(t, "hello", msg.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for bus message")
	}
}

func TestWebSocketChannel_SendRoutesToChat(t *testing.T) {
	mb := bus.New()
	ch := NewWebSocketChannel("127.0.0.1:0", nil, mb)
	conn, srv := dialWS(t, ch, "chat=chat1")
	defer srv.Close()
	defer conn.Close()

	// The handler registers the client before its read loop; give it a beat.
	require.Eventually(t, func() bool {
		return ch.Send(bus.OutboundMessage{Channel: "websocket", ChatID: "chat1", Content: "reply"}) == nil
	}, 2*time.Second, 10*time.Millisecond)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame wsOutbound
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "reply", frame.Content)
	assert.Equal(t, "chat1", frame.ChatID)
}

func TestWebSocketChannel_SendUnknownChat(t *testing.T) {
	ch := NewWebSocketChannel("127.0.0.1:0", nil, bus.New())
	err := ch.Send(bus.OutboundMessage{ChatID: "nobody", Content: "hi"})
	assert.Error(t, err)
}

func TestWebSocketChannel_DeniedSender(t *testing.T) {
	ch := NewWebSocketChannel("127.0.0.1:0", []string{"alice"}, bus.New())
	srv := httptest.NewServer(http.HandlerFunc(ch.handleConnect))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?chat=chat1&sender=mallory"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, 403, resp.StatusCode)
}

// --- Manager tests ---

type mockChannel struct {
	name    string
	started bool
	stopped bool
	sent    []bus.OutboundMessage
}

func (m *mockChannel) Name() string                       { return m.name }
func (m *mockChannel) Start(_ context.Context) error      { m.started = true; return nil }
func (m *mockChannel) Stop() error                        { m.stopped = true; return nil }
func (m *mockChannel) Send(msg bus.OutboundMessage) error { m.sent = append(m.sent, msg); return nil }
func (m *mockChannel) IsRunning() bool                    { return m.started && !m.stopped }

func TestManager_Register(t *testing.T) {
	mgr := NewManager(bus.New())
	mgr.Register(&mockChannel{name: "test"})
	assert.Equal(t, []string{"test"}, mgr.EnabledChannels())
}

func TestManager_Get(t *testing.T) {
	mgr := NewManager(bus.New())
	ch := &mockChannel{name: "telegram"}
	mgr.Register(ch)
	assert.Equal(t, ch, mgr.Get("telegram"))
	assert.Nil(t, mgr.Get("nonexistent"))
}

func TestManager_StopAll(t *testing.T) {
	mgr := NewManager(bus.New())
	ch1 := &mockChannel{name: "ch1", started: true}
	ch2 := &mockChannel{name: "ch2", started: true}
	mgr.Register(ch1)
	mgr.Register(ch2)
	mgr.StopAll()
	assert.True(t, ch1.stopped)
	assert.True(t, ch2.stopped)
}

func TestManager_GetStatus(t *testing.T) {
	mgr := NewManager(bus.New())
	mgr.Register(&mockChannel{name: "up", started: true})
	mgr.Register(&mockChannel{name: "down"})
	status := mgr.GetStatus()
	assert.True(t, status["up"])
	assert.False(t, status["down"])
}
