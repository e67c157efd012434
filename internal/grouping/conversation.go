// Package grouping rebuilds per-correspondent conversations from a flat
// stream of messages.
package grouping

import "github.com/ritiek/smsdb-import/internal/message"

// Conversation is a non-empty, ordered run of messages exchanged with one
// address. Address and country are taken from the first member.
type Conversation struct {
	address  string
	country  message.Country
	messages []message.Message
	incoming int
	outgoing int
}

func newConversation(seed message.Message) *Conversation {
	c := &Conversation{
		address: seed.Address(),
		country: seed.Country(),
	}
	c.add(seed)
	return c
}

func (c *Conversation) add(m message.Message) {
	c.messages = append(c.messages, m)
	switch m.Direction() {
	case message.Incoming:
		c.incoming++
	case message.Outgoing:
		c.outgoing++
	}
}

func (c *Conversation) Address() string          { return c.address }
func (c *Conversation) Country() message.Country { return c.country }
func (c *Conversation) Len() int                 { return len(c.messages) }
func (c *Conversation) IncomingCount() int       { return c.incoming }
func (c *Conversation) OutgoingCount() int       { return c.outgoing }

// Messages returns a copy of the members in group order.
func (c *Conversation) Messages() []message.Message {
	out := make([]message.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) First() message.Message { return c.messages[0] }
func (c *Conversation) Last() message.Message  { return c.messages[len(c.messages)-1] }
