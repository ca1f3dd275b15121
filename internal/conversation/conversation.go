// Package conversation turns chat turns into answers: a handful of commands are served straight
// from the booking store, everything else goes to a completion service whose reply may carry a
// booking to create.
package conversation

import (
	"slices"

	"github.com/robertarktes/turf-booking-assistant/internal/domain"
)

// MaxHistory is how many entries, across both roles, a conversation keeps.
const MaxHistory = 10

// Conversation is the bounded history of one chat session.
type Conversation struct {
	ID      string
	history []domain.ChatMessage
}

func NewConversation(id string, history []domain.ChatMessage) *Conversation {
	c := &Conversation{ID: id}
	c.history = slices.Clone(history)
	c.trim()
	return c
}

func (c *Conversation) Append(role, content string) {
	c.history = append(c.history, domain.ChatMessage{Role: role, Content: content})
	c.trim()
}

// Messages returns a copy of the retained history, oldest first.
func (c *Conversation) Messages() []domain.ChatMessage {
	return slices.Clone(c.history)
}

func (c *Conversation) Len() int {
	return len(c.history)
}

func (c *Conversation) trim() {
	if extra := len(c.history) - MaxHistory; extra > 0 {
		c.history = slices.Delete(c.history, 0, extra)
	}
}
