package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/stellarlinkco/mio/internal/llm"
)

const (
	// factWindow is how many recent messages feed one fact-extraction pass.
	factWindow = 20
	// factMinLen/factMaxLen bound accepted fact lines (exclusive).
	factMinLen = 3
	factMaxLen = 100

	// noneSignal is what the prompts instruct the model to answer when
	// there is nothing worth storing.
	noneSignal = "NONE"

	factPrompt = `You are the memory of a companion chatbot. Extract durable personal facts about the user from the conversation below: name, preferences, relationships, work, habits, important events.

Rules:
1. Only explicit facts, no speculation
2. One fact per line, as a short "- " bullet
3. Write facts in the user's own language
4. If there is nothing worth remembering, reply with exactly NONE

Conversation:
%s`

	moodPrompt = `Read this latest exchange and describe the user's current mood in a few words (for example: "cheerful", "a bit down", "excited about a trip"). Reply with only the mood description, in the user's language. If the mood is unclear, reply with exactly NONE.

Exchange:
%s`
)

type taskKind int

const (
	taskFacts taskKind = iota
	taskMood
)

type extractTask struct {
	kind   taskKind
	userID string
}

// ExtractionService turns recent conversation into structured memory writes
// in the background. Tasks are handed off through an explicit queue with its
// own worker, so extraction failures stay isolated from the reply path and
// tests can await the queue deterministically via Stop.
type ExtractionService struct {
	store *Store
	llm   llm.Client
	tasks chan extractTask

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewExtractionService(store *Store, client llm.Client) *ExtractionService {
	return &ExtractionService{
		store: store,
		llm:   client,
	}
}

func (s *ExtractionService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.tasks = make(chan extractTask, 64)
	s.done = make(chan struct{})
	go s.worker(ctx, s.tasks, s.done)
}

// Stop closes the queue and waits for already-enqueued tasks to finish. The
// close happens under the same mutex that guards enqueue's send, so a
// concurrent enqueue can never hit a closed channel.
func (s *ExtractionService) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.tasks)
	done := s.done
	s.mu.Unlock()

	<-done
	if s.cancel != nil {
		s.cancel()
	}
}

// EnqueueFacts schedules a fact-extraction pass for the user. Best effort:
// when the queue is full the task is dropped with a log line.
func (s *ExtractionService) EnqueueFacts(userID string) {
	s.enqueue(extractTask{kind: taskFacts, userID: userID})
}

// EnqueueMood schedules a mood-extraction pass for the user.
func (s *ExtractionService) EnqueueMood(userID string) {
	s.enqueue(extractTask{kind: taskMood, userID: userID})
}

func (s *ExtractionService) enqueue(task extractTask) {
	// The non-blocking send stays inside the critical section so Stop
	// cannot close the channel between the started check and the send.
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	select {
	case s.tasks <- task:
	default:
		log.Printf("[extract] queue full, dropping task for %s", task.userID)
	}
}

func (s *ExtractionService) worker(ctx context.Context, tasks <-chan extractTask, done chan struct{}) {
	defer close(done)
	for task := range tasks {
		var err error
		switch task.kind {
		case taskFacts:
			err = s.runFactExtraction(ctx, task.userID)
		case taskMood:
			err = s.runMoodExtraction(ctx, task.userID)
		}
		if err != nil {
			log.Printf("[extract] task for %s failed: %v", task.userID, err)
		}
	}
}

func (s *ExtractionService) runFactExtraction(ctx context.Context, userID string) error {
	msgs, err := s.store.RecentMessages(userID, factWindow)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}

	resp, err := s.llm.Complete(ctx, []llm.Message{
		{Role: "user", Content: fmt.Sprintf(factPrompt, renderConversation(msgs))},
	})
	if err != nil {
		return fmt.Errorf("extract facts: %w", err)
	}

	for _, fact := range ParseFactLines(resp) {
		if err := s.store.RecordFact(userID, fact); err != nil {
			log.Printf("[extract] record fact for %s failed: %v", userID, err)
		}
	}
	return nil
}

func (s *ExtractionService) runMoodExtraction(ctx context.Context, userID string) error {
	msgs, err := s.store.RecentMessages(userID, 2)
	if err != nil {
		return fmt.Errorf("load exchange: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}

	resp, err := s.llm.Complete(ctx, []llm.Message{
		{Role: "user", Content: fmt.Sprintf(moodPrompt, renderConversation(msgs))},
	})
	if err != nil {
		return fmt.Errorf("extract mood: %w", err)
	}

	mood := strings.TrimSpace(resp)
	if mood == "" || strings.EqualFold(mood, noneSignal) {
		return nil
	}
	return s.store.RecordMood(userID, mood)
}

func renderConversation(msgs []Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

// ParseFactLines turns a model response into clean fact strings: bullets and
// numbering stripped, the NONE signal honored, and each line kept only when
// its rune length is strictly between the accepted bounds.
func ParseFactLines(resp string) []string {
	resp = strings.TrimSpace(resp)
	if resp == "" || strings.EqualFold(resp, noneSignal) {
		return nil
	}

	var facts []string
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•·")
		line = trimNumbering(line)
		line = strings.TrimSpace(line)
		if line == "" || strings.EqualFold(line, noneSignal) {
			continue
		}
		n := utf8.RuneCountInString(line)
		if n <= factMinLen || n >= factMaxLen {
			continue
		}
		facts = append(facts, line)
	}
	return facts
}

func trimNumbering(line string) string {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(line) {
		return line
	}
	if line[i] == '.' || line[i] == ')' {
		return line[i+1:]
	}
	return line
}
