package memory

import "time"

// Message roles as stored and as sent to the model.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one stored conversation message.
type Message struct {
	ID        int64
	UserID    string
	Role      string
	Content   string
	CreatedAt time.Time
}

// Fact is a durable, de-duplicated piece of long-term information about a
// user.
type Fact struct {
	ID        int64
	UserID    string
	Fact      string
	CreatedAt time.Time
}

// Mood is one recorded mood observation for a user.
type Mood struct {
	ID        int64
	UserID    string
	Mood      string
	CreatedAt time.Time
}
