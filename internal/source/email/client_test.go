package email

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nhle/mail-digest/internal/model"
	"github.com/nhle/mail-digest/tests/testutil"
)

func newTestClient(t *testing.T, srv *testutil.IMAPServer, stagingDir string) *IMAPClient {
	t.Helper()
	return NewIMAPClient(model.MailConfig{
		Address:  srv.Username,
		Password: srv.Password,
		Addr:     srv.Addr,
		TLS:      false,
	}, stagingDir, zaptest.NewLogger(t))
}

func TestIMAPClient_Unseen(t *testing.T) {
	srv := testutil.NewIMAPServer(t, "student@example.com", "app-pass", "INBOX", "Spam")
	first := srv.Append(t, "INBOX", testutil.BuildMessage("Prof Smith <smith@uni.edu>", "Quiz", "Quiz on Friday."))
	srv.Append(t, "INBOX", testutil.BuildMessage("news@shop.com", "Sale", "Everything half off."), imap.FlagSeen)
	third := srv.Append(t, "INBOX", testutil.BuildMessage("jones@uni.edu", "Lab", "Lab closed today."))

	c := newTestClient(t, srv, t.TempDir())
	f, err := c.Open(context.Background(), "INBOX")
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, "INBOX", f.Name())

	envs, err := f.Unseen(context.Background())
	require.NoError(t, err)
	require.Len(t, envs, 2)

	assert.Equal(t, first, envs[0].UID)
	assert.Equal(t, "Prof Smith <smith@uni.edu>", envs[0].From)
	assert.Equal(t, "Quiz", envs[0].Subject)
	assert.Equal(t, third, envs[1].UID)
	assert.Equal(t, "jones@uni.edu", envs[1].From)
}

func TestIMAPClient_UnseenEmptyFolder(t *testing.T) {
	srv := testutil.NewIMAPServer(t, "student@example.com", "app-pass", "INBOX", "Spam")

	c := newTestClient(t, srv, t.TempDir())
	f, err := c.Open(context.Background(), "Spam")
	require.NoError(t, err)
	defer f.Close()

	envs, err := f.Unseen(context.Background())
	require.NoError(t, err)
	assert.Empty(t, envs)
}

func TestIMAPClient_FetchDoesNotMarkSeen(t *testing.T) {
	srv := testutil.NewIMAPServer(t, "student@example.com", "app-pass", "INBOX")
	uid := srv.Append(t, "INBOX", testutil.BuildMessage(
		"smith@uni.edu",
		"Slides",
		"Slides for week 5.",
		testutil.Attachment{Filename: "week5.pdf", ContentType: "application/pdf", Content: "PDFDATA"},
	))

	staging := filepath.Join(t.TempDir(), "temp_files")
	c := newTestClient(t, srv, staging)

	f, err := c.Open(context.Background(), "INBOX")
	require.NoError(t, err)

	msg, err := f.Fetch(context.Background(), uid)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Equal(t, uid, msg.UID)
	assert.Equal(t, "INBOX", msg.Folder)
	assert.Equal(t, "smith@uni.edu", msg.From)
	assert.Equal(t, "Slides", msg.Subject)
	assert.Equal(t, "Slides for week 5.", msg.Body)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, filepath.Join(staging, "week5.pdf"), msg.Attachments[0])

	data, err := os.ReadFile(msg.Attachments[0])
	require.NoError(t, err)
	assert.Equal(t, "PDFDATA", string(data))

	// A fresh session still sees the message as unseen.
	f, err = c.Open(context.Background(), "INBOX")
	require.NoError(t, err)
	defer f.Close()

	envs, err := f.Unseen(context.Background())
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, uid, envs[0].UID)
}

func TestIMAPClient_MarkSeen(t *testing.T) {
	srv := testutil.NewIMAPServer(t, "student@example.com", "app-pass", "INBOX")
	uid := srv.Append(t, "INBOX", testutil.BuildMessage("smith@uni.edu", "Quiz", "Quiz on Friday."))

	c := newTestClient(t, srv, t.TempDir())
	f, err := c.Open(context.Background(), "INBOX")
	require.NoError(t, err)
	require.NoError(t, f.MarkSeen(context.Background(), uid))
	require.NoError(t, f.Close())

	f, err = c.Open(context.Background(), "INBOX")
	require.NoError(t, err)
	defer f.Close()

	envs, err := f.Unseen(context.Background())
	require.NoError(t, err)
	assert.Empty(t, envs)
}

func TestIMAPClient_FetchMissingUID(t *testing.T) {
	srv := testutil.NewIMAPServer(t, "student@example.com", "app-pass", "INBOX")

	c := newTestClient(t, srv, t.TempDir())
	f, err := c.Open(context.Background(), "INBOX")
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Fetch(context.Background(), 42)
	assert.Error(t, err)
}

func TestIMAPClient_OpenErrors(t *testing.T) {
	srv := testutil.NewIMAPServer(t, "student@example.com", "app-pass", "INBOX")

	t.Run("wrong password", func(t *testing.T) {
		c := NewIMAPClient(model.MailConfig{
			Address:  srv.Username,
			Password: "nope",
			Addr:     srv.Addr,
		}, t.TempDir(), zaptest.NewLogger(t))

		_, err := c.Open(context.Background(), "INBOX")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logging in")
	})

	t.Run("missing folder", func(t *testing.T) {
		c := newTestClient(t, srv, t.TempDir())

		_, err := c.Open(context.Background(), "[Gmail]/Spam")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "[Gmail]/Spam")
	})

	t.Run("unreachable server", func(t *testing.T) {
		c := NewIMAPClient(model.MailConfig{
			Address:  srv.Username,
			Password: srv.Password,
			Addr:     "127.0.0.1:1",
		}, t.TempDir(), zaptest.NewLogger(t))

		_, err := c.Open(context.Background(), "INBOX")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connecting to IMAP")
	})
}
