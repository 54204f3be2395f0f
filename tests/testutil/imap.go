package testutil

import (
	"bytes"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapserver"
	"github.com/emersion/go-imap/v2/imapserver/imapmemserver"
	"github.com/stretchr/testify/require"
)

// IMAPServer is an in-process plaintext IMAP server backed by
// imapmemserver with a single user.
type IMAPServer struct {
	Addr     string
	Username string
	Password string

	user *imapmemserver.User
}

// NewIMAPServer starts a server whose user has the given folders. It is
// closed when the test ends.
func NewIMAPServer(t *testing.T, username, password string, folders ...string) *IMAPServer {
	t.Helper()

	mem := imapmemserver.New()
	user := imapmemserver.NewUser(username, password)
	for _, f := range folders {
		require.NoError(t, user.Create(f, nil), "creating folder %s", f)
	}
	mem.AddUser(user)

	srv := imapserver.New(&imapserver.Options{
		NewSession: func(*imapserver.Conn) (imapserver.Session, *imapserver.GreetingData, error) {
			return mem.NewSession(), nil, nil
		},
		Caps: imap.CapSet{
			imap.CapIMAP4rev1: {},
			imap.CapIMAP4rev2: {},
		},
		InsecureAuth: true,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })

	return &IMAPServer{
		Addr:     ln.Addr().String(),
		Username: username,
		Password: password,
		user:     user,
	}
}

// Append stores raw in folder with the given flags and returns its UID.
func (s *IMAPServer) Append(t *testing.T, folder string, raw []byte, flags ...imap.Flag) uint32 {
	t.Helper()

	data, err := s.user.Append(folder, bytes.NewReader(raw), &imap.AppendOptions{Flags: flags})
	require.NoError(t, err)

	return uint32(data.UID)
}

// Attachment is a file part for BuildMessage.
type Attachment struct {
	Filename    string
	ContentType string
	Content     string
}

// BuildMessage renders a MIME message from the given sender and subject
// with a text/plain body and optional attachments. Attachment content is
// written as 7bit text.
func BuildMessage(from, subject, body string, attachments ...Attachment) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", from)
	b.WriteString("To: student@example.com\r\n")
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("Date: Mon, 02 Sep 2024 10:00:00 +0000\r\n")
	b.WriteString("Message-ID: <fixture@example.com>\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")

	if len(attachments) == 0 {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(body)
		b.WriteString("\r\n")
		return []byte(b.String())
	}

	const boundary = "fixture-boundary"
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")

	for _, a := range attachments {
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		fmt.Fprintf(&b, "Content-Type: %s\r\n", ct)
		fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n\r\n", a.Filename)
		b.WriteString(a.Content)
		b.WriteString("\r\n")
	}

	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}
