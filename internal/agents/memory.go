// Agent message memory: a bounded history of everything the agent has drained
// from its mailbox, kept for introspection after the inbox is replaced.
package agents

import "slices"

const MaxInboxHistory = 50

// remember appends drained messages, dropping the oldest when full.
func (a *Agent) remember(msgs []Message) {
	if len(msgs) == 0 {
		return
	}
	a.history = append(a.history, msgs...)
	if over := len(a.history) - MaxInboxHistory; over > 0 {
		a.history = slices.Delete(a.history, 0, over)
	}
}

// RecentMessages returns up to count received messages, newest first.
func (a *Agent) RecentMessages(count int) []Message {
	if len(a.history) == 0 || count <= 0 {
		return nil
	}
	if count > len(a.history) {
		count = len(a.history)
	}
	out := slices.Clone(a.history[len(a.history)-count:])
	slices.Reverse(out)
	return out
}

// MessagesFrom returns the remembered messages sent by senderID, oldest first.
func (a *Agent) MessagesFrom(senderID string) []Message {
	var out []Message
	for _, m := range a.history {
		if m.SenderID == senderID {
			out = append(out, m)
		}
	}
	return out
}
