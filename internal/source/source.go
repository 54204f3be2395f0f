package source

import (
	"context"

	"github.com/nhle/mail-digest/internal/model"
)

// Mailbox opens folders on a mail server.
type Mailbox interface {
	// Open connects, authenticates, and selects folder. Any failure
	// means the folder cannot be checked this cycle.
	Open(ctx context.Context, folder string) (Folder, error)
}

// Folder is one selected mailbox folder for the duration of a cycle.
type Folder interface {
	// Name returns the folder name as it was opened.
	Name() string

	// Unseen lists envelopes of messages without the \Seen flag.
	Unseen(ctx context.Context) ([]model.Envelope, error)

	// Fetch retrieves and parses the full message without setting
	// \Seen. Attachments are written to the staging directory.
	Fetch(ctx context.Context, uid uint32) (*model.Message, error)

	// MarkSeen flags the message as read once it has been delivered.
	MarkSeen(ctx context.Context, uid uint32) error

	// Close logs out and releases the connection.
	Close() error
}
