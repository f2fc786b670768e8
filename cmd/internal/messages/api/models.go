package msgapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/karlocehulic19/messaging-app-sub000/cmd/internal/messages"
)

// clientTime accepts an RFC 3339 string or a number of Unix milliseconds.
// null and absent both decode to the zero time.
type clientTime struct{ time.Time }

func (c *clientTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return errors.New("clientTimestamp: expected RFC 3339")
		}
		c.Time = t.UTC()
		return nil
	}
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return errors.New("clientTimestamp: expected unix milliseconds")
	}
	c.Time = time.UnixMilli(ms).UTC()
	return nil
}

type sendRequest struct {
	Sender          string     `json:"sender"`
	Receiver        string     `json:"receiver"`
	Message         string     `json:"message"`
	ClientTimestamp clientTime `json:"clientTimestamp"`
}

type messageView struct {
	Date    time.Time `json:"date"`
	Message string    `json:"message"`
}

type historyView struct {
	Date     time.Time `json:"date"`
	Message  string    `json:"message"`
	Sender   string    `json:"sender"`
	Receiver string    `json:"receiver"`
}

type sendResponse struct {
	NewMessagesFromReceiver []messageView `json:"newMessagesFromReceiver"`
}

func toMessageViews(ms []messages.Message) []messageView {
	out := make([]messageView, len(ms))
	for i, m := range ms {
		out[i] = messageView{Date: m.Date, Message: m.Text}
	}
	return out
}

func toHistoryViews(ms []messages.Message) []historyView {
	out := make([]historyView, len(ms))
	for i, m := range ms {
		out[i] = historyView{Date: m.Date, Message: m.Text, Sender: m.Sender, Receiver: m.Receiver}
	}
	return out
}
