package channel

import (
	"context"
	"fmt"
	"log"

	"github.com/stellarlinkco/mio/internal/bus"
	"github.com/stellarlinkco/mio/internal/config"
)

type ChannelManager struct {
	channels map[string]Channel
	bus      *bus.MessageBus
}

func NewChannelManager(cfg config.ChannelsConfig, b *bus.MessageBus) (*ChannelManager, error) {
	m := &ChannelManager{
		channels: make(map[string]Channel),
		bus:      b,
	}

	if cfg.Telegram.Enabled {
		ch, err := NewTelegramChannel(cfg.Telegram, b)
		if err != nil {
			return nil, fmt.Errorf("init telegram channel: %w", err)
		}
		m.register(ch)
	}

	return m, nil
}

func (m *ChannelManager) register(ch Channel) {
	m.channels[ch.Name()] = ch
	m.bus.SubscribeOutbound(ch.Name(), func(msg bus.OutboundMessage) {
		if err := ch.Send(msg); err != nil {
			log.Printf("[channel-mgr] send to %s failed: %v", ch.Name(), err)
		}
	})
}

// Register adds a transport (for testing with fakes).
func (m *ChannelManager) Register(ch Channel) {
	m.register(ch)
}

func (m *ChannelManager) StartAll(ctx context.Context) error {
	for name, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("start channel %s: %w", name, err)
		}
	}
	return nil
}

func (m *ChannelManager) StopAll() error {
	for name, ch := range m.channels {
		if err := ch.Stop(); err != nil {
			log.Printf("[channel-mgr] stop %s failed: %v", name, err)
		}
	}
	return nil
}

// Send delivers a message synchronously, reporting delivery failure to the
// caller (the bus path is fire-and-forget).
func (m *ChannelManager) Send(msg bus.OutboundMessage) error {
	if len(m.channels) == 0 {
		return fmt.Errorf("no channels registered")
	}
	for name, ch := range m.channels {
		if err := ch.Send(msg); err != nil {
			return fmt.Errorf("send via %s: %w", name, err)
		}
	}
	return nil
}

// SendTyping shows the typing indicator to the user on every transport.
func (m *ChannelManager) SendTyping(userID string) {
	for name, ch := range m.channels {
		if err := ch.SendTyping(userID); err != nil {
			log.Printf("[channel-mgr] typing on %s failed: %v", name, err)
		}
	}
}

func (m *ChannelManager) EnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}
