package messages

import (
	"context"
	"time"
)

// InsertInput describes a new message. Date is the accepted client timestamp.
type InsertInput struct {
	Sender   string
	Receiver string
	Text     string
	Date     time.Time
}

// ConversationQuery selects a window of the conversation between User and Partner
// as User sees it: everything User sent plus what Partner sent that is already opened.
type ConversationQuery struct {
	User    string
	Partner string
	Skip    int
	Take    int
}

// Store persists messages.
//
// Requirements:
//   - Insert assigns a strictly increasing ID and stores Opened=false.
//   - DrainUnopened selects and marks opened in one atomic step; a message is
//     returned by at most one call, ordered by (Date, ID).
//   - FetchConversation is read-only and ordered by (Date, ID).
type Store interface {
	Insert(ctx context.Context, in InsertInput) (Message, error)
	DrainUnopened(ctx context.Context, sender, receiver string) ([]Message, error)
	FetchConversation(ctx context.Context, q ConversationQuery) ([]Message, error)
	Close() error
}
