package domain

// Conversation is the ordered, append-only history of one chat session.
// Insertion order is chronological order and display order.
type Conversation struct {
	messages []Message
}

// Append adds m to the end of the conversation.
func (c *Conversation) Append(m Message) {
	c.messages = append(c.messages, m)
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Last returns the most recent message, if any.
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Messages returns a copy of the history safe for the caller to keep.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// LastOfRole returns the most recent message with the given role.
func LastOfRole(history []Message, role Role) (Message, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == role {
			return history[i], true
		}
	}
	return Message{}, false
}
