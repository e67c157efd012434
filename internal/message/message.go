// Package message holds the text message value parsed from an export row.
package message

import "time"

// AppleEpochOffset is the number of seconds between the Unix epoch and
// 2001-01-01 UTC, the reference date of the chat-generation store.
const AppleEpochOffset int64 = 978307200

// Direction tells whether a message was sent or received. The numeric values
// match the legacy store's message.flags column.
type Direction int

const (
	Unknown  Direction = 0
	Incoming Direction = 2
	Outgoing Direction = 3
)

func (d Direction) String() string {
	switch d {
	case Incoming:
		return "incoming"
	case Outgoing:
		return "outgoing"
	default:
		return "unknown"
	}
}

// ParseDirection converts the export's direction code: "s" is sent, "r" is
// received, anything else is unknown.
func ParseDirection(code string) Direction {
	switch code {
	case "s":
		return Outgoing
	case "r":
		return Incoming
	default:
		return Unknown
	}
}

// Message is a single text message. It is immutable once created.
type Message struct {
	address        string
	timestamp      int64
	text           string
	direction      Direction
	country        Country
	appleTimestamp int64
}

// New creates a message and derives its country and Apple timestamp.
func New(address string, timestamp int64, text string, direction Direction) Message {
	return Message{
		address:        address,
		timestamp:      timestamp,
		text:           text,
		direction:      direction,
		country:        CountryFor(address),
		appleTimestamp: timestamp - AppleEpochOffset,
	}
}

func (m Message) Address() string      { return m.address }
func (m Message) Timestamp() int64     { return m.timestamp }
func (m Message) Text() string         { return m.text }
func (m Message) Direction() Direction { return m.direction }
func (m Message) Country() Country     { return m.country }

// AppleTimestamp is the timestamp in seconds since 2001-01-01 UTC.
func (m Message) AppleTimestamp() int64 { return m.appleTimestamp }

// Time returns the timestamp as a UTC time.
func (m Message) Time() time.Time {
	return time.Unix(m.timestamp, 0).UTC()
}

func (m Message) IsOutgoing() bool { return m.direction == Outgoing }
func (m Message) IsIncoming() bool { return m.direction == Incoming }
