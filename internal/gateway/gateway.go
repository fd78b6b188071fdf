package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	rcron "github.com/robfig/cron/v3"
	"github.com/stellarlinkco/mio/internal/bus"
	"github.com/stellarlinkco/mio/internal/channel"
	"github.com/stellarlinkco/mio/internal/config"
	"github.com/stellarlinkco/mio/internal/engage"
	"github.com/stellarlinkco/mio/internal/llm"
	"github.com/stellarlinkco/mio/internal/memory"
	"github.com/stellarlinkco/mio/internal/prompt"
	"github.com/stellarlinkco/mio/internal/session"
)

// Options for creating a Gateway
type Options struct {
	LLM        llm.Client     // for testing with a fake model
	SignalChan chan os.Signal // for testing signal handling
}

// Gateway wires the conversation engine together: transports on one side,
// the model client on the other, memory in between.
type Gateway struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	store      *memory.Store
	sessions   *session.Manager
	llm        llm.Client
	assembler  *prompt.Assembler
	extraction *memory.ExtractionService
	scheduler  *engage.Scheduler
	channels   *channel.ChannelManager
	cron       *rcron.Cron
	signalChan chan os.Signal
}

// New creates a Gateway with default options
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg}

	g.bus = bus.NewMessageBus(config.DefaultBufSize)

	dbPath := strings.TrimSpace(cfg.DBPath)
	if dbPath == "" {
		dbPath = filepath.Join(config.DataDir(), "memory.db")
	}
	store, err := memory.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("create memory store: %w", err)
	}
	g.store = store

	g.sessions = session.NewManager(config.Duration(cfg.Session.TTL, config.DefaultSessionTTL))

	g.llm = opts.LLM
	if g.llm == nil {
		g.llm = llm.NewHTTPClient(cfg)
	}

	persona := prompt.LoadPersona(filepath.Join(config.ConfigDir(), "SOUL.md"))
	g.assembler = prompt.NewAssembler(g.store, g.sessions, persona, cfg.Agent.MemoryWindow)

	g.extraction = memory.NewExtractionService(g.store, g.llm)

	chMgr, err := channel.NewChannelManager(cfg.Channels, g.bus)
	if err != nil {
		_ = g.store.Close()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	g.scheduler = engage.NewScheduler(
		g.store, g.sessions, g.llm,
		g.sendProactive,
		persona,
		config.Duration(cfg.Engage.IdleGap, config.DefaultEngageIdleGap),
		config.Duration(cfg.Engage.MinInterval, config.DefaultEngageMinInterval),
	)

	g.signalChan = opts.SignalChan
	return g, nil
}

// sendProactive delivers an outreach message and records it as part of the
// conversation.
func (g *Gateway) sendProactive(userID, content string) error {
	if err := g.channels.Send(bus.OutboundMessage{UserID: userID, Content: content}); err != nil {
		return err
	}
	if err := g.store.AppendMessage(userID, memory.RoleAssistant, content); err != nil {
		log.Printf("[gateway] persist proactive message failed: %v", err)
	}
	return nil
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	g.extraction.Start(ctx)

	g.cron = rcron.New()
	if g.cfg.Engage.Enabled {
		sweepEvery := config.Duration(g.cfg.Engage.Sweep, config.DefaultEngageSweep)
		if _, err := g.cron.AddFunc(fmt.Sprintf("@every %s", sweepEvery), func() {
			sent := g.scheduler.Sweep(ctx)
			if sent > 0 {
				log.Printf("[gateway] proactive sweep sent %d messages", sent)
			}
		}); err != nil {
			log.Printf("[gateway] register proactive sweep warning: %v", err)
		}
	}
	sessionSweep := config.Duration(g.cfg.Session.Sweep, config.DefaultSessionSweep)
	if _, err := g.cron.AddFunc(fmt.Sprintf("@every %s", sessionSweep), func() {
		g.sessions.Sweep()
	}); err != nil {
		log.Printf("[gateway] register session sweep warning: %v", err)
	}
	g.cron.Start()

	go g.processLoop(ctx)

	log.Printf("[gateway] running")

	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			log.Printf("[gateway] inbound from %s: %s", msg.UserID, truncate(msg.Content, 80))
			g.handleInbound(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) Shutdown() error {
	g.extraction.Stop()
	if g.cron != nil {
		<-g.cron.Stop().Done()
	}
	_ = g.channels.StopAll()
	if err := g.store.Close(); err != nil {
		log.Printf("[gateway] close store warning: %v", err)
	}
	log.Printf("[gateway] shutdown complete")
	return nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
