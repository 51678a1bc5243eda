package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/crewgate/crewgate/internal/bus"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramChannel is the Telegram bot adapter. It long-polls getUpdates;
// no webhook or public endpoint is required.
type TelegramChannel struct {
	BaseChannel
	Token    string
	botUser  string
	client   *http.Client
	cancelFn context.CancelFunc
}

// NewTelegramChannel creates a TelegramChannel.
func NewTelegramChannel(token string, allowFrom []string, msgBus *bus.MessageBus) *TelegramChannel {
	return &TelegramChannel{
		BaseChannel: BaseChannel{
			ChannelName: "telegram",
			Bus:         msgBus,
			AllowFrom:   allowFrom,
		},
		Token: token,
		// Longer than the 30s long-poll window.
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (t *TelegramChannel) Name() string    { return "telegram" }
func (t *TelegramChannel) IsRunning() bool { return t.Running }

// Start connects the bot and long-polls updates until ctx is cancelled.
func (t *TelegramChannel) Start(ctx context.Context) error {
	if t.Token == "" {
		return fmt.Errorf("telegram bot token not configured")
	}
	ctx, t.cancelFn = context.WithCancel(ctx)

	info, err := t.api("getMe", nil)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	if result, ok := info["result"].(map[string]any); ok {
		if username, ok := result["username"].(string); ok {
			t.botUser = username
			log.Printf("[Telegram] bot @%s connected", username)
		}
	}

	t.Running = true
	defer func() { t.Running = false }()
	return t.pollLoop(ctx)
}

func (t *TelegramChannel) pollLoop(ctx context.Context) error {
	offset := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		updates, err := t.api("getUpdates", map[string]any{
			"offset":          offset,
			"timeout":         30,
			"allowed_updates": []string{"message"},
		})
		if err != nil {
			log.Printf("[Telegram] getUpdates: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
			continue
		}

		results, _ := updates["result"].([]any)
		for _, u := range results {
			update, ok := u.(map[string]any)
			if !ok {
				continue
			}
			if uid, ok := update["update_id"].(float64); ok {
				offset = int(uid) + 1
			}
			t.handleUpdate(update)
		}
	}
}

// Stop stops the bot.
func (t *TelegramChannel) Stop() error {
	t.Running = false
	if t.cancelFn != nil {
		t.cancelFn()
	}
	return nil
}

// Send delivers a message, converting markdown to Telegram HTML. If
// Telegram rejects the HTML (unbalanced tags in model output), the raw
// text is sent instead.
func (t *TelegramChannel) Send(msg bus.OutboundMessage) error {
	_, err := t.api("sendMessage", map[string]any{
		"chat_id":    msg.ChatID,
		"text":       MarkdownToTelegramHTML(msg.Content),
		"parse_mode": "HTML",
	})
	if err != nil {
		_, err = t.api("sendMessage", map[string]any{
			"chat_id": msg.ChatID,
			"text":    msg.Content,
		})
	}
	return err
}

// handleUpdate extracts one inbound message from a getUpdates entry.
// Sender IDs carry the username as a pipe-separated alternate so the
// allowlist accepts either form.
func (t *TelegramChannel) handleUpdate(update map[string]any) {
	msg, ok := update["message"].(map[string]any)
	if !ok {
		return
	}
	from, _ := msg["from"].(map[string]any)
	chat, _ := msg["chat"].(map[string]any)
	if from == nil || chat == nil {
		return
	}

	senderID := fmt.Sprintf("%.0f", from["id"])
	if username, _ := from["username"].(string); username != "" {
		senderID += "|" + username
	}
	chatID := fmt.Sprintf("%.0f", chat["id"])

	text, _ := msg["text"].(string)
	if text == "" {
		text, _ = msg["caption"].(string)
	}
	if text == "" {
		text = "[empty message]"
	}

	t.HandleMessage(senderID, chatID, text, nil, map[string]any{
		"message_id": msg["message_id"],
	})
}

// api posts one Bot API method call and decodes the JSON response.
// Telegram-level failures (ok=false) come back as errors.
func (t *TelegramChannel) api(method string, params map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/bot%s/%s", telegramAPIBase, t.Token, method)
	resp, err := t.client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", method, err)
	}
	if ok, _ := result["ok"].(bool); !ok {
		desc, _ := result["description"].(string)
		return result, fmt.Errorf("%s: %s", method, desc)
	}
	return result, nil
}

var (
	mdCodeBlock = regexp.MustCompile("(?s)```[\\w]*\\n?([\\s\\S]*?)```")
	mdInline    = regexp.MustCompile("`([^`]+)`")
	mdHeading   = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	mdQuote     = regexp.MustCompile(`(?m)^>\s*(.*)$`)
	mdLink      = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	mdBoldStar  = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdBoldUnder = regexp.MustCompile(`__(.+?)__`)
	mdItalic    = regexp.MustCompile(`(?:^|[^a-zA-Z0-9])_([^_]+)_(?:[^a-zA-Z0-9]|$)`)
	mdStrike    = regexp.MustCompile(`~~(.+?)~~`)
	mdBullet    = regexp.MustCompile(`(?m)^[-*]\s+`)
)

func escapeHTML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// MarkdownToTelegramHTML converts markdown to the HTML subset Telegram
// accepts. Code spans are lifted out before any other rewriting so their
// contents survive untouched, then restored escaped.
func MarkdownToTelegramHTML(text string) string {
	if text == "" {
		return ""
	}

	var blocks, inlines []string
	text = mdCodeBlock.ReplaceAllStringFunc(text, func(m string) string {
		blocks = append(blocks, mdCodeBlock.FindStringSubmatch(m)[1])
		return fmt.Sprintf("\x00CB%d\x00", len(blocks)-1)
	})
	text = mdInline.ReplaceAllStringFunc(text, func(m string) string {
		inlines = append(inlines, mdInline.FindStringSubmatch(m)[1])
		return fmt.Sprintf("\x00IC%d\x00", len(inlines)-1)
	})

	text = mdHeading.ReplaceAllString(text, "$1")
	text = mdQuote.ReplaceAllString(text, "$1")
	text = escapeHTML(text)

	text = mdLink.ReplaceAllString(text, `<a href="$2">$1</a>`)
	text = mdBoldStar.ReplaceAllString(text, "<b>$1</b>")
	text = mdBoldUnder.ReplaceAllString(text, "<b>$1</b>")
	text = mdItalic.ReplaceAllStringFunc(text, func(m string) string {
		sub := mdItalic.FindStringSubmatch(m)
		prefix, suffix := "", ""
		if m[0] != '_' {
			prefix = string(m[0])
		}
		if m[len(m)-1] != '_' {
			suffix = string(m[len(m)-1])
		}
		return prefix + "<i>" + sub[1] + "</i>" + suffix
	})
	text = mdStrike.ReplaceAllString(text, "<s>$1</s>")
	text = mdBullet.ReplaceAllString(text, "• ")

	for i, code := range inlines {
		text = strings.ReplaceAll(text, fmt.Sprintf("\x00IC%d\x00", i), "<code>"+escapeHTML(code)+"</code>")
	}
	for i, code := range blocks {
		text = strings.ReplaceAll(text, fmt.Sprintf("\x00CB%d\x00", i), "<pre><code>"+escapeHTML(code)+"</code></pre>")
	}
	return text
}
