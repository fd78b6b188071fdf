// Package engage decides which inactive users get an unprompted outreach
// message, rate-limited by two independent cooldown gates.
package engage

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/stellarlinkco/mio/internal/llm"
	"github.com/stellarlinkco/mio/internal/memory"
	"github.com/stellarlinkco/mio/internal/session"
)

const proactivePrompt = `The user has been quiet for a while. Write one short, natural message to gently re-engage them, like a friend checking in. Do not mention being prompted or scheduled. Write in the user's language.

%s`

// fallbackMessages are hand-authored openers used when generation fails or
// returns nothing.
var fallbackMessages = []string{
	"Hey, how's your day going?",
	"Was just thinking of you. Everything alright?",
	"Hi! Anything fun happen today?",
	"Miss chatting with you. What have you been up to?",
}

// MemoryReader is the slice of the store the scheduler reads.
type MemoryReader interface {
	UserIDs() ([]string, error)
	Facts(userID string) ([]memory.Fact, error)
	RecentMood(userID string) (string, error)
	MessageCount(userID string) (int, error)
	LastMessageTime(userID string) (time.Time, error)
}

// Scheduler sweeps known users and sends proactive messages when a user has
// been idle past the idle gap AND has not been proactively contacted within
// the minimum interval.
type Scheduler struct {
	store       MemoryReader
	sessions    *session.Manager
	llm         llm.Client
	send        func(userID, content string) error
	persona     string
	idleGap     time.Duration
	minInterval time.Duration
	now         func() time.Time
}

func NewScheduler(store MemoryReader, sessions *session.Manager, client llm.Client, send func(userID, content string) error, persona string, idleGap, minInterval time.Duration) *Scheduler {
	if idleGap <= 0 {
		idleGap = 30 * time.Minute
	}
	if minInterval <= 0 {
		minInterval = 2 * time.Hour
	}
	return &Scheduler{
		store:       store,
		sessions:    sessions,
		llm:         client,
		send:        send,
		persona:     persona,
		idleGap:     idleGap,
		minInterval: minInterval,
		now:         time.Now,
	}
}

// SetNow overrides the clock (for testing).
func (s *Scheduler) SetNow(now func() time.Time) { s.now = now }

// Sweep examines every known user once. Per-user failures are logged and do
// not halt the sweep. Returns how many messages were sent.
func (s *Scheduler) Sweep(ctx context.Context) int {
	userIDs, err := s.store.UserIDs()
	if err != nil {
		log.Printf("[engage] list users failed: %v", err)
		return 0
	}

	sent := 0
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return sent
		}
		if s.sweepUser(ctx, userID) {
			sent++
		}
	}
	return sent
}

func (s *Scheduler) sweepUser(ctx context.Context, userID string) bool {
	st, ok := s.sessions.Get(userID)
	if !ok {
		// Rebuild from durable history after a restart.
		last, err := s.store.LastMessageTime(userID)
		if err != nil || last.IsZero() {
			return false
		}
		s.sessions.Seed(userID, last)
		st, _ = s.sessions.Get(userID)
	}

	now := s.now()
	if now.Sub(st.LastInteractionAt) <= s.idleGap {
		return false
	}
	if now.Sub(st.LastProactiveAt) <= s.minInterval {
		return false
	}

	content := s.generate(ctx, userID, st, now)
	if err := s.send(userID, content); err != nil {
		log.Printf("[engage] send to %s failed: %v", userID, err)
		return false
	}
	s.sessions.MarkProactive(userID)
	log.Printf("[engage] proactive message sent to %s", userID)
	return true
}

func (s *Scheduler) generate(ctx context.Context, userID string, st session.State, now time.Time) string {
	content, err := s.llm.Complete(ctx, []llm.Message{
		{Role: "system", Content: s.outreachPersona(userID, st, now)},
		{Role: "user", Content: fmt.Sprintf(proactivePrompt, s.userBrief(userID))},
	})
	if err != nil || strings.TrimSpace(content) == "" {
		if err != nil {
			log.Printf("[engage] generate for %s failed, using fallback: %v", userID, err)
		}
		return fallbackMessages[rand.Intn(len(fallbackMessages))]
	}
	return strings.TrimSpace(content)
}

func (s *Scheduler) outreachPersona(userID string, st session.State, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(s.persona)
	if st.DisplayName != "" {
		fmt.Fprintf(&sb, "\n\nYou are reaching out to %s.", st.DisplayName)
	}
	idle := now.Sub(st.LastInteractionAt)
	fmt.Fprintf(&sb, "\nThey last talked to you about %d minutes ago.", int(idle.Minutes()))
	return sb.String()
}

// userBrief summarizes facts, mood and chat count for the outreach prompt.
// All reads are best-effort.
func (s *Scheduler) userBrief(userID string) string {
	var sb strings.Builder

	if facts, err := s.store.Facts(userID); err == nil && len(facts) > 0 {
		sb.WriteString("What you know about them:\n")
		for _, f := range facts {
			sb.WriteString("- " + f.Fact + "\n")
		}
	}
	if mood, err := s.store.RecentMood(userID); err == nil && mood != "" {
		sb.WriteString("They recently seemed: " + mood + "\n")
	}
	if count, err := s.store.MessageCount(userID); err == nil && count > 0 {
		fmt.Fprintf(&sb, "You have exchanged %d messages.\n", count)
	}
	if sb.Len() == 0 {
		return "You do not know much about them yet."
	}
	return sb.String()
}
