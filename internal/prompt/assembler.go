// Package prompt turns raw memory into the bounded message context for one
// model call.
package prompt

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/stellarlinkco/mio/internal/llm"
	"github.com/stellarlinkco/mio/internal/memory"
	"github.com/stellarlinkco/mio/internal/session"
)

const (
	// longGap triggers an explicit "long time" system note; shortGap a
	// lighter one.
	longGap  = 6 * time.Hour
	shortGap = time.Hour
)

// MemoryReader is the slice of the store the assembler reads. All reads are
// best-effort: a failure degrades the prompt, never the turn.
type MemoryReader interface {
	RecentMessages(userID string, limit int) ([]memory.Message, error)
	Facts(userID string) ([]memory.Fact, error)
	RecentMood(userID string) (string, error)
	MessageCount(userID string) (int, error)
}

type Assembler struct {
	store    MemoryReader
	sessions *session.Manager
	persona  string
	window   int
	now      func() time.Time
}

func NewAssembler(store MemoryReader, sessions *session.Manager, persona string, window int) *Assembler {
	if persona == "" {
		persona = DefaultPersona
	}
	if window <= 0 {
		window = 20
	}
	return &Assembler{
		store:    store,
		sessions: sessions,
		persona:  persona,
		window:   window,
		now:      time.Now,
	}
}

// SetNow overrides the clock (for testing).
func (a *Assembler) SetNow(now func() time.Time) { a.now = now }

// Build assembles the ordered context for one turn: system persona, bounded
// history, an optional gap note, and the new user message last. It never
// fails; on degraded reads it still returns a valid sequence, and at minimum
// [persona, user message].
func (a *Assembler) Build(userID, displayName, text string) []llm.Message {
	msgs := make([]llm.Message, 0, a.window+3)
	msgs = append(msgs, llm.Message{Role: "system", Content: a.systemPrompt(userID, displayName)})

	history, err := a.store.RecentMessages(userID, a.window)
	if err != nil {
		log.Printf("[prompt] history read degraded for %s: %v", userID, err)
		history = nil
	}
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}

	if note := a.gapNote(userID); note != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: note})
	}

	msgs = append(msgs, llm.Message{Role: "user", Content: text})
	return msgs
}

// Fallback is the minimal valid context: default persona plus the raw user
// message.
func (a *Assembler) Fallback(text string) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: a.persona},
		{Role: "user", Content: text},
	}
}

func (a *Assembler) systemPrompt(userID, displayName string) string {
	var sb strings.Builder
	sb.WriteString(a.persona)

	if displayName == "" {
		if st, ok := a.sessions.Get(userID); ok {
			displayName = st.DisplayName
		}
	}
	if displayName != "" {
		fmt.Fprintf(&sb, "\n\nYou are chatting with %s.", displayName)
	}

	if facts, err := a.store.Facts(userID); err != nil {
		log.Printf("[prompt] facts read degraded for %s: %v", userID, err)
	} else if len(facts) > 0 {
		sb.WriteString("\n\nWhat you know about them:")
		seen := make(map[string]bool, len(facts))
		for _, f := range facts {
			key := strings.ToLower(strings.TrimSpace(f.Fact))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			sb.WriteString("\n- " + strings.TrimSpace(f.Fact))
		}
	}

	if count, err := a.store.MessageCount(userID); err == nil && count > 0 {
		fmt.Fprintf(&sb, "\n\nYou two have exchanged %d messages so far.", count)
	}

	sb.WriteString("\n\nYour current vibe: " + a.moodHint(userID))
	return sb.String()
}

// moodHint composes a time-of-day baseline with the most recent stored mood.
func (a *Assembler) moodHint(userID string) string {
	hint := baselineMood(a.now().Hour())
	mood, err := a.store.RecentMood(userID)
	if err != nil {
		log.Printf("[prompt] mood read degraded for %s: %v", userID, err)
		return hint
	}
	if mood != "" {
		hint += "; the user recently seemed " + mood
	}
	return hint
}

func baselineMood(hour int) string {
	switch {
	case hour >= 5 && hour < 11:
		return "bright and energetic, a fresh start to the day"
	case hour >= 11 && hour < 17:
		return "easygoing and warm"
	case hour >= 17 && hour < 23:
		return "calm and affectionate, winding down"
	default:
		return "soft-spoken and a little sleepy"
	}
}

func (a *Assembler) gapNote(userID string) string {
	st, ok := a.sessions.Get(userID)
	if !ok || st.LastMessageAt.IsZero() {
		return ""
	}
	gap := a.now().Sub(st.LastMessageAt)
	switch {
	case gap >= longGap:
		return fmt.Sprintf("It has been about %d hours since you last talked. Greet them naturally and warmly before continuing.", int(gap.Hours()))
	case gap >= shortGap:
		return "The user just got back after being away for a bit."
	default:
		return ""
	}
}
