package grouping

import (
	"fmt"
	"sort"
	"time"

	"github.com/ritiek/smsdb-import/internal/message"
)

const (
	PolicyPartition = "partition"
	PolicyWindow    = "window"
)

// Policy turns a message collection into conversations. Every input message
// ends up in exactly one conversation.
type Policy interface {
	Name() string
	Group(msgs []message.Message) []*Conversation
}

// NewPolicy returns the policy registered under name. offset is only used by
// the window policy and must be zero or a whole number of seconds.
func NewPolicy(name string, offset time.Duration) (Policy, error) {
	switch name {
	case PolicyPartition, "":
		return Partition{}, nil
	case PolicyWindow:
		if offset < 0 {
			return nil, fmt.Errorf("window offset must not be negative: %s", offset)
		}
		// timestamps have second resolution
		if offset > 0 && offset < time.Second {
			return nil, fmt.Errorf("window offset below one second: %s", offset)
		}
		if offset%time.Second != 0 {
			return nil, fmt.Errorf("window offset must be whole seconds: %s", offset)
		}
		return Window{Offset: offset}, nil
	default:
		return nil, fmt.Errorf("unknown grouping policy %q", name)
	}
}

// Partition puts all messages with the same address into one conversation.
// Conversations appear in order of each address's first message; members
// keep their input order.
type Partition struct{}

func (Partition) Name() string { return PolicyPartition }

func (Partition) Group(msgs []message.Message) []*Conversation {
	var convs []*Conversation
	byAddress := make(map[string]*Conversation)

	for _, m := range msgs {
		if c, ok := byAddress[m.Address()]; ok {
			c.add(m)
			continue
		}
		c := newConversation(m)
		byAddress[m.Address()] = c
		convs = append(convs, c)
	}

	return convs
}

// Window splits each address's messages into sessions. Messages are ordered
// by timestamp; the earliest unconsumed message seeds a conversation which
// then absorbs later messages from the same address as long as each one is
// at most Offset after the previously absorbed one. An Offset of zero means
// no gap limit, which yields one conversation per address like Partition
// but in timestamp order. An Offset with a fractional second is rounded up.
//
// Every seed rescans the remainder, so the worst case is O(n²).
type Window struct {
	Offset time.Duration
}

func (Window) Name() string { return PolicyWindow }

func (w Window) Group(msgs []message.Message) []*Conversation {
	sorted := make([]message.Message, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp() < sorted[j].Timestamp()
	})

	offset := int64((w.Offset + time.Second - 1) / time.Second)
	consumed := make([]bool, len(sorted))
	var convs []*Conversation

	for i, seed := range sorted {
		if consumed[i] {
			continue
		}
		consumed[i] = true
		c := newConversation(seed)
		last := seed.Timestamp()

		for j := i + 1; j < len(sorted); j++ {
			if consumed[j] {
				continue
			}
			m := sorted[j]
			if offset != 0 && m.Timestamp() > last+offset {
				break
			}
			if m.Address() != seed.Address() {
				continue
			}
			consumed[j] = true
			c.add(m)
			last = m.Timestamp()
		}

		convs = append(convs, c)
	}

	return convs
}
