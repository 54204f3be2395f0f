package email

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-digest/tests/testutil"
)

func TestParseMessage_PlainText(t *testing.T) {
	raw := testutil.BuildMessage(
		"Prof Smith <smith@uni.edu>",
		"Quiz moved",
		"The quiz is moved to Friday.",
	)

	got, err := parseMessage(raw, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "Prof Smith <smith@uni.edu>", got.From)
	assert.Equal(t, "Quiz moved", got.Subject)
	assert.Equal(t, "The quiz is moved to Friday.\r\n", got.Body)
	assert.Empty(t, got.Attachments)
}

func TestParseMessage_Attachments(t *testing.T) {
	dir := t.TempDir()
	raw := testutil.BuildMessage(
		"smith@uni.edu",
		"Lab 3",
		"See attached.",
		testutil.Attachment{Filename: "lab3.txt", ContentType: "text/plain", Content: "step one"},
		testutil.Attachment{Filename: "lab3.txt", Content: "step two"},
	)

	got, err := parseMessage(raw, dir)
	require.NoError(t, err)

	assert.Equal(t, "smith@uni.edu", got.From)
	assert.Equal(t, "See attached.", got.Body)
	require.Len(t, got.Attachments, 2)
	assert.Equal(t, filepath.Join(dir, "lab3.txt"), got.Attachments[0])
	assert.Equal(t, filepath.Join(dir, "lab3_1.txt"), got.Attachments[1])

	data, err := os.ReadFile(got.Attachments[0])
	require.NoError(t, err)
	assert.Equal(t, "step one", strings.TrimSpace(string(data)))
}

func TestParseMessage_HTMLFallback(t *testing.T) {
	raw := strings.Join([]string{
		"From: smith@uni.edu",
		"Subject: Office hours",
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<html><body><p>Office hours are <b>cancelled</b> this week.</p></body></html>",
		"",
	}, "\r\n")

	got, err := parseMessage([]byte(raw), t.TempDir())
	require.NoError(t, err)

	assert.Contains(t, got.Body, "cancelled")
	assert.Contains(t, got.Body, "Office hours are")
	assert.NotContains(t, got.Body, "<p>")
}

func TestParseMessage_PlainPreferredOverHTML(t *testing.T) {
	raw := strings.Join([]string{
		"From: smith@uni.edu",
		"Subject: Reading",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="alt"`,
		"",
		"--alt",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Read chapter 4.",
		"--alt",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>Read <i>chapter 4</i>.</p>",
		"--alt--",
		"",
	}, "\r\n")

	got, err := parseMessage([]byte(raw), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "Read chapter 4.", got.Body)
}

func TestParseMessage_InlinePartsNotStaged(t *testing.T) {
	dir := t.TempDir()
	raw := strings.Join([]string{
		"From: smith@uni.edu",
		"Subject: Logo",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="b"`,
		"",
		"--b",
		"Content-Type: text/plain",
		"",
		"Body text here.",
		"--b",
		"Content-Type: image/png",
		"Content-Disposition: inline; filename=\"logo.png\"",
		"",
		"PNGDATA",
		"--b--",
		"",
	}, "\r\n")

	got, err := parseMessage([]byte(raw), dir)
	require.NoError(t, err)

	assert.Empty(t, got.Attachments)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseMessage_EncodedSubjectAndMissingSubject(t *testing.T) {
	t.Run("encoded word is decoded", func(t *testing.T) {
		raw := testutil.BuildMessage("smith@uni.edu", "=?UTF-8?Q?Caf=C3=A9_hours?=", "Coffee at 3.")

		got, err := parseMessage(raw, t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, "Café hours", got.Subject)
	})

	t.Run("missing subject uses placeholder", func(t *testing.T) {
		raw := "From: smith@uni.edu\r\nContent-Type: text/plain\r\n\r\nHello class.\r\n"

		got, err := parseMessage([]byte(raw), t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, noSubject, got.Subject)
		assert.Equal(t, "Hello class.\r\n", got.Body)
	})
}

func TestParseMessage_BrokenHeaderDropsHeaderBlock(t *testing.T) {
	raw := strings.Join([]string{
		"From: Prof Smith <smith@uni.edu>",
		"Subject: Hi",
		"X-Broken header no colon",
		"",
		"The lab is closed today.",
		"",
	}, "\r\n")

	got, err := parseMessage([]byte(raw), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "The lab is closed today.\r\n", got.Body)
	assert.NotContains(t, got.Body, "Subject:")
}

func TestBodyAfterHeader(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"crlf", "A: b\r\n\r\nbody", "body"},
		{"lf", "A: b\n\nbody", "body"},
		{"no blank line", "just text", "just text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bodyAfterHeader([]byte(tt.in)))
		})
	}
}

func TestParseMessage_Latin1(t *testing.T) {
	raw := strings.Join([]string{
		"From: =?iso-8859-1?Q?Andr=E9_L=E9vy?= <levy@uni.edu>",
		"Subject: =?iso-8859-1?Q?R=E9union?=",
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=iso-8859-1",
		"Content-Transfer-Encoding: quoted-printable",
		"",
		"Caf=E9 r=E9union demain",
		"",
	}, "\r\n")

	got, err := parseMessage([]byte(raw), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "André Lévy <levy@uni.edu>", got.From)
	assert.Equal(t, "Réunion", got.Subject)
	assert.Equal(t, "Café réunion demain\r\n", got.Body)
}

func TestFormatAddress(t *testing.T) {
	tests := []struct {
		name, addrName, addr, want string
	}{
		{"name and address", "Prof Smith", "smith@uni.edu", "Prof Smith <smith@uni.edu>"},
		{"address only", "", "smith@uni.edu", "smith@uni.edu"},
		{"name only", "Prof Smith", "", "Prof Smith"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatAddress(tt.addrName, tt.addr))
		})
	}
}
