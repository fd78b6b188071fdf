package channel

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stellarlinkco/mio/internal/bus"
	"github.com/stellarlinkco/mio/internal/config"
)

type fakeBot struct {
	mu       sync.Mutex
	updates  chan tgbotapi.Update
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func newFakeBot() *fakeBot {
	return &fakeBot{updates: make(chan tgbotapi.Update, 10)}
}

func (f *fakeBot) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeBot) StopReceivingUpdates() {}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) GetSelf() tgbotapi.User {
	return tgbotapi.User{UserName: "mio_test_bot"}
}

func (f *fakeBot) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func fakeFactory(bot *fakeBot) BotFactory {
	return func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
		return bot, nil
	}
}

func newUpdate(fromID, chatID int64, firstName, text string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: fromID, FirstName: firstName},
			Chat: &tgbotapi.Chat{ID: chatID},
			Text: text,
			Date: int(time.Now().Unix()),
		},
	}
}

func startTelegram(t *testing.T, cfg config.TelegramConfig, b *bus.MessageBus, bot *fakeBot) *TelegramChannel {
	t.Helper()
	ch, err := NewTelegramChannelWithFactory(cfg, b, fakeFactory(bot))
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("start channel: %v", err)
	}
	t.Cleanup(func() { ch.Stop() })
	return ch
}

func readInbound(t *testing.T, b *bus.MessageBus) bus.InboundMessage {
	t.Helper()
	select {
	case msg := <-b.Inbound:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for inbound message")
		return bus.InboundMessage{}
	}
}

func TestTelegramRequiresToken(t *testing.T) {
	_, err := NewTelegramChannelWithFactory(config.TelegramConfig{}, bus.NewMessageBus(10), fakeFactory(newFakeBot()))
	if err == nil {
		t.Fatalf("expected error for missing token")
	}
}

func TestTelegramInboundFlow(t *testing.T) {
	b := bus.NewMessageBus(10)
	bot := newFakeBot()
	startTelegram(t, config.TelegramConfig{Token: "tok"}, b, bot)

	bot.updates <- newUpdate(42, 42, "Ming", "hello there")

	msg := readInbound(t, b)
	if msg.UserID != "42" {
		t.Fatalf("expected user id 42, got %q", msg.UserID)
	}
	if msg.DisplayName != "Ming" {
		t.Fatalf("expected display name Ming, got %q", msg.DisplayName)
	}
	if msg.Content != "hello there" {
		t.Fatalf("expected content, got %q", msg.Content)
	}
}

func TestTelegramAllowList(t *testing.T) {
	b := bus.NewMessageBus(10)
	bot := newFakeBot()
	startTelegram(t, config.TelegramConfig{Token: "tok", AllowFrom: []string{"42"}}, b, bot)

	bot.updates <- newUpdate(99, 99, "Stranger", "let me in")
	bot.updates <- newUpdate(42, 42, "Ming", "hi")

	msg := readInbound(t, b)
	if msg.UserID != "42" {
		t.Fatalf("expected only allowed sender, got %q", msg.UserID)
	}
	select {
	case extra := <-b.Inbound:
		t.Fatalf("unexpected extra message: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTelegramCaptionFallback(t *testing.T) {
	b := bus.NewMessageBus(10)
	bot := newFakeBot()
	startTelegram(t, config.TelegramConfig{Token: "tok"}, b, bot)

	upd := newUpdate(7, 7, "Yu", "")
	upd.Message.Caption = "photo caption"
	bot.updates <- upd

	msg := readInbound(t, b)
	if msg.Content != "photo caption" {
		t.Fatalf("expected caption content, got %q", msg.Content)
	}
}

func TestTelegramDropsEmptyMessages(t *testing.T) {
	b := bus.NewMessageBus(10)
	bot := newFakeBot()
	startTelegram(t, config.TelegramConfig{Token: "tok"}, b, bot)

	bot.updates <- newUpdate(7, 7, "Yu", "")

	select {
	case msg := <-b.Inbound:
		t.Fatalf("unexpected message: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTelegramSend(t *testing.T) {
	b := bus.NewMessageBus(10)
	bot := newFakeBot()
	ch := startTelegram(t, config.TelegramConfig{Token: "tok"}, b, bot)

	if err := ch.Send(bus.OutboundMessage{UserID: "42", Content: "hi back"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if bot.sentCount() != 1 {
		t.Fatalf("expected 1 sent message, got %d", bot.sentCount())
	}
	out, ok := bot.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("expected MessageConfig, got %T", bot.sent[0])
	}
	if out.ChatID != 42 || out.Text != "hi back" {
		t.Fatalf("unexpected outgoing message: %+v", out)
	}

	if err := ch.Send(bus.OutboundMessage{UserID: "not-a-number", Content: "x"}); err == nil {
		t.Fatalf("expected error for bad chat id")
	}
}

func TestTelegramSendTyping(t *testing.T) {
	b := bus.NewMessageBus(10)
	bot := newFakeBot()
	ch := startTelegram(t, config.TelegramConfig{Token: "tok"}, b, bot)

	if err := ch.SendTyping("42"); err != nil {
		t.Fatalf("send typing: %v", err)
	}
	bot.mu.Lock()
	defer bot.mu.Unlock()
	if len(bot.requests) != 1 {
		t.Fatalf("expected 1 chat action request, got %d", len(bot.requests))
	}
	action, ok := bot.requests[0].(tgbotapi.ChatActionConfig)
	if !ok {
		t.Fatalf("expected ChatActionConfig, got %T", bot.requests[0])
	}
	if action.Action != tgbotapi.ChatTyping {
		t.Fatalf("expected typing action, got %q", action.Action)
	}
}

func TestManagerSendWithoutChannels(t *testing.T) {
	m, err := NewChannelManager(config.ChannelsConfig{}, bus.NewMessageBus(10))
	if err != nil {
		t.Fatalf("create manager: %v", err)
	}
	if err := m.Send(bus.OutboundMessage{UserID: "1", Content: "x"}); err == nil {
		t.Fatalf("expected error with no channels registered")
	}
	if names := m.EnabledChannels(); len(names) != 0 {
		t.Fatalf("expected no enabled channels, got %v", names)
	}
}

func TestManagerRoutesToRegisteredChannel(t *testing.T) {
	b := bus.NewMessageBus(10)
	m, err := NewChannelManager(config.ChannelsConfig{}, b)
	if err != nil {
		t.Fatalf("create manager: %v", err)
	}

	bot := newFakeBot()
	ch, err := NewTelegramChannelWithFactory(config.TelegramConfig{Token: "tok"}, b, fakeFactory(bot))
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	ch.SetBot(bot)
	m.Register(ch)

	if err := m.Send(bus.OutboundMessage{UserID: "42", Content: "hello"}); err != nil {
		t.Fatalf("manager send: %v", err)
	}
	if bot.sentCount() != 1 {
		t.Fatalf("expected 1 delivered message, got %d", bot.sentCount())
	}
	if names := m.EnabledChannels(); len(names) != 1 || names[0] != telegramChannelName {
		t.Fatalf("expected telegram enabled, got %v", names)
	}
}
