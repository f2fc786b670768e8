package messages

import "time"

// Message is a persisted direct message.
//
// Date is the client-declared compose time accepted at ingress and is the
// primary ordering key; ID breaks ties in insertion order.
type Message struct {
	ID       int64
	Sender   string
	Receiver string
	Text     string
	Date     time.Time
	Opened   bool
}

// less orders messages by (Date, ID) ascending.
func less(a, b Message) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	return a.ID < b.ID
}

// between reports whether m belongs to the conversation {a, b}.
func (m Message) between(a, b string) bool {
	return (m.Sender == a && m.Receiver == b) || (m.Sender == b && m.Receiver == a)
}
