package state

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/greg-hellings/esginsight/pkg/backend"
)

// Role is the sender of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PendingText is the body of an assistant placeholder awaiting its answer.
const PendingText = "Thinking…"

// ErrAlreadyResolved is returned when a handle is used a second time.
var ErrAlreadyResolved = errors.New("transcript entry already resolved")

// ChatMessage is one transcript entry. Citations belong to the message that
// produced them and are never attached later.
type ChatMessage struct {
	ID        string
	Role      Role
	Text      string
	Citations []backend.Citation
	Pending   bool // placeholder not yet resolved
	Failed    bool // resolved with an error notice instead of an answer
}

func (m ChatMessage) clone() ChatMessage {
	if m.Citations != nil {
		m.Citations = append([]backend.Citation(nil), m.Citations...)
	}
	return m
}

// ChatTranscript is an append-only ordered log of chat messages.
type ChatTranscript struct {
	mu       sync.RWMutex
	messages []ChatMessage
	resolved []bool
}

// NewChatTranscript creates an empty transcript.
func NewChatTranscript() *ChatTranscript {
	return &ChatTranscript{}
}

// Handle refers to one appended entry and permits exactly one in-place
// replacement of its body.
type Handle struct {
	t     *ChatTranscript
	index int
	id    string
}

// ID returns the identifier of the referenced message.
func (h *Handle) ID() string { return h.id }

// Append adds msg to the end of the transcript. An empty ID is filled in.
func (t *ChatTranscript) Append(msg ChatMessage) *Handle {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, msg.clone())
	t.resolved = append(t.resolved, false)
	return &Handle{t: t, index: len(t.messages) - 1, id: msg.ID}
}

// AppendPending adds an assistant placeholder.
func (t *ChatTranscript) AppendPending() *Handle {
	return t.Append(ChatMessage{Role: RoleAssistant, Text: PendingText, Pending: true})
}

// Resolve replaces the entry body with an answer and its citations.
func (h *Handle) Resolve(text string, citations []backend.Citation) error {
	return h.replace(func(m *ChatMessage) {
		m.Text = text
		m.Citations = append([]backend.Citation{}, citations...)
		m.Failed = false
	})
}

// Fail replaces the entry body with an error notice.
func (h *Handle) Fail(text string) error {
	return h.replace(func(m *ChatMessage) {
		m.Text = text
		m.Citations = nil
		m.Failed = true
	})
}

func (h *Handle) replace(apply func(*ChatMessage)) error {
	t := h.t
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resolved[h.index] {
		return ErrAlreadyResolved
	}
	msg := t.messages[h.index]
	apply(&msg)
	msg.Pending = false
	t.messages[h.index] = msg
	t.resolved[h.index] = true
	return nil
}

// Messages returns a copy of every entry in order.
func (t *ChatTranscript) Messages() []ChatMessage {
	return t.Since(0)
}

// Since returns a copy of the entries from index n onwards, for incremental
// rendering.
func (t *ChatTranscript) Since(n int) []ChatMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n < 0 {
		n = 0
	}
	if n >= len(t.messages) {
		return nil
	}
	out := make([]ChatMessage, 0, len(t.messages)-n)
	for _, m := range t.messages[n:] {
		out = append(out, m.clone())
	}
	return out
}

// Get returns the entry referenced by h.
func (t *ChatTranscript) Get(h *Handle) ChatMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.messages[h.index].clone()
}

// Len returns the number of entries.
func (t *ChatTranscript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}
