package gateway

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"unicode/utf8"

	"github.com/stellarlinkco/mio/internal/bus"
	"github.com/stellarlinkco/mio/internal/llm"
	"github.com/stellarlinkco/mio/internal/memory"
)

const (
	// factTriggerEvery fires a fact-extraction pass when the user's total
	// message count lands on a multiple of it. Best-effort: concurrent
	// turns near a boundary may skip or repeat a pass.
	factTriggerEvery = 10

	// diaryWindow bounds how much history feeds one /diary summary.
	diaryWindow = 30

	diaryPrompt = `Write a short diary entry (3-5 sentences) in first person, as if you are the user, summarizing what came up in this conversation. Warm, personal tone, in the user's language.

Conversation:
%s`
)

// fallbackReplies keep the conversation alive when context assembly or the
// model call fails; the turn never surfaces a technical error to the user.
var fallbackReplies = []string{
	"Sorry, I spaced out for a second. What were you saying?",
	"Hmm, my thoughts got tangled. Tell me again?",
	"Oops, I lost my train of thought. Say it once more?",
	"My mind just went blank... what was that?",
}

func (g *Gateway) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	if msg.UserID == "" || strings.TrimSpace(msg.Content) == "" {
		log.Printf("[gateway] dropping malformed inbound event (user=%q)", msg.UserID)
		return
	}

	if utf8.RuneCountInString(msg.Content) > g.cfg.Agent.MaxInboundChars {
		g.reply(msg.UserID, "That message is a bit too long for me. Could you shorten it?")
		return
	}

	if strings.HasPrefix(msg.Content, "/") {
		g.handleCommand(ctx, msg)
		return
	}

	g.handleTurn(ctx, msg)
}

func (g *Gateway) handleTurn(ctx context.Context, msg bus.InboundMessage) {
	g.channels.SendTyping(msg.UserID)

	// Build before Touch so the gap note sees the previous turn's time.
	turnCtx := g.assembler.Build(msg.UserID, msg.DisplayName, msg.Content)

	reply, err := g.llm.Complete(ctx, turnCtx)
	if err != nil {
		// Retry once with the minimal context before giving up on the
		// model; an oversized or degraded prompt may be what failed.
		log.Printf("[gateway] completion for %s failed, retrying with minimal context: %v", msg.UserID, err)
		reply, err = g.llm.Complete(ctx, g.assembler.Fallback(msg.Content))
	}
	if err != nil {
		log.Printf("[gateway] minimal-context completion for %s failed: %v", msg.UserID, err)
		reply = fallbackReplies[rand.Intn(len(fallbackReplies))]
	}

	g.reply(msg.UserID, reply)

	if err := g.store.AppendMessage(msg.UserID, memory.RoleUser, msg.Content); err != nil {
		log.Printf("[gateway] persist user message failed: %v", err)
	}
	if err := g.store.AppendMessage(msg.UserID, memory.RoleAssistant, reply); err != nil {
		log.Printf("[gateway] persist assistant message failed: %v", err)
	}

	g.sessions.Touch(msg.UserID, msg.DisplayName)

	g.extraction.EnqueueMood(msg.UserID)
	count, err := g.store.MessageCount(msg.UserID)
	if err != nil {
		log.Printf("[gateway] message count for %s failed: %v", msg.UserID, err)
		return
	}
	if count > 0 && count%factTriggerEvery == 0 {
		g.extraction.EnqueueFacts(msg.UserID)
	}
}

func (g *Gateway) handleCommand(ctx context.Context, msg bus.InboundMessage) {
	cmd := strings.Fields(msg.Content)[0]
	cmd = strings.SplitN(cmd, "@", 2)[0] // strip bot mention suffix

	switch cmd {
	case "/start":
		g.sessions.Touch(msg.UserID, msg.DisplayName)
		name := msg.DisplayName
		if name == "" {
			name = "there"
		}
		g.reply(msg.UserID, fmt.Sprintf("Hi %s! I'm Mio. Tell me anything and I'll remember the things that matter.", name))

	case "/memory":
		g.reply(msg.UserID, g.memoryReport(msg.UserID))

	case "/clear":
		if err := g.store.ClearUser(msg.UserID); err != nil {
			log.Printf("[gateway] clear user %s failed: %v", msg.UserID, err)
			g.reply(msg.UserID, "Something went wrong while clearing. Try again in a bit?")
			return
		}
		g.sessions.Clear(msg.UserID)
		g.reply(msg.UserID, "All done. I've forgotten our conversations, your facts, everything. Fresh start!")

	case "/diary":
		g.reply(msg.UserID, g.diaryEntry(ctx, msg.UserID))

	default:
		g.reply(msg.UserID, "I don't know that command. I understand /start, /memory, /clear and /diary.")
	}
}

func (g *Gateway) memoryReport(userID string) string {
	var sb strings.Builder
	sb.WriteString("Here's what I remember:\n")

	facts, err := g.store.Facts(userID)
	if err != nil {
		log.Printf("[gateway] facts for %s failed: %v", userID, err)
	}
	if len(facts) == 0 {
		sb.WriteString("\nNo long-term facts yet. Keep talking to me!\n")
	} else {
		sb.WriteString("\nFacts:\n")
		for _, f := range facts {
			sb.WriteString("• " + f.Fact + "\n")
		}
	}

	if mood, err := g.store.RecentMood(userID); err == nil && mood != "" {
		sb.WriteString("\nLast mood I noticed: " + mood + "\n")
	}
	if count, err := g.store.MessageCount(userID); err == nil {
		fmt.Fprintf(&sb, "\nMessages exchanged: %d", count)
	}
	return sb.String()
}

func (g *Gateway) diaryEntry(ctx context.Context, userID string) string {
	msgs, err := g.store.RecentMessages(userID, diaryWindow)
	if err != nil || len(msgs) == 0 {
		return "We haven't talked enough today for a diary entry. Chat with me a little first!"
	}

	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(m.Role + ": " + m.Content + "\n")
	}

	entry, err := g.llm.Complete(ctx, []llm.Message{
		{Role: "user", Content: fmt.Sprintf(diaryPrompt, sb.String())},
	})
	if err != nil {
		log.Printf("[gateway] diary for %s failed: %v", userID, err)
		return "I couldn't put today into words just now. Ask me again in a bit?"
	}
	return entry
}

func (g *Gateway) reply(userID, content string) {
	g.bus.Outbound <- bus.OutboundMessage{UserID: userID, Content: content}
}
