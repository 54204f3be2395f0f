package email

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/mail-digest/internal/files"
)

const noSubject = "No Subject"

// parsedMessage is the result of walking a raw RFC 5322 message.
type parsedMessage struct {
	From        string
	Subject     string
	Body        string
	Attachments []string
}

// parseMessage parses raw with go-message. Non-attachment text/plain
// parts are concatenated into Body; when there are none the text/html
// part is converted instead. Attachment parts with a file name are
// saved under stagingDir. Files already written are removed if a later
// attachment cannot be saved.
func parseMessage(raw []byte, stagingDir string) (*parsedMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		// Unparseable header block; keep only what follows it.
		return &parsedMessage{Subject: noSubject, Body: bodyAfterHeader(raw)}, nil
	}
	defer mr.Close()

	out := &parsedMessage{Subject: noSubject}

	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		out.From = formatAddress(from[0].Name, from[0].Address)
	} else if text, err := mr.Header.Text("From"); err == nil {
		out.From = text
	}
	if subject, err := mr.Header.Subject(); err == nil && subject != "" {
		out.Subject = subject
	}

	var plain strings.Builder
	var html string

	for {
		part, err := mr.NextPart()
		if err != nil {
			// io.EOF, or a malformed part; keep what was read so far.
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case contentType == "" || strings.HasPrefix(contentType, "text/plain"):
				plain.Write(body)
			case strings.HasPrefix(contentType, "text/html") && html == "":
				html = string(body)
			}

		case *mail.AttachmentHeader:
			disposition, _, _ := h.ContentDisposition()
			filename, _ := h.Filename()
			if disposition != "attachment" || filename == "" {
				continue
			}

			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				_, _ = files.RemoveAll(out.Attachments)
				return nil, fmt.Errorf("reading attachment %s: %w", filename, readErr)
			}

			path, saveErr := files.Save(stagingDir, filename, body)
			if saveErr != nil {
				_, _ = files.RemoveAll(out.Attachments)
				return nil, saveErr
			}
			out.Attachments = append(out.Attachments, path)
		}
	}

	out.Body = plain.String()
	if strings.TrimSpace(out.Body) == "" && html != "" {
		out.Body = htmlToText(html)
	}

	return out, nil
}

// bodyAfterHeader returns the text after the first blank line, or all
// of raw when there is none.
func bodyAfterHeader(raw []byte) string {
	for _, sep := range [][]byte{[]byte("\r\n\r\n"), []byte("\n\n")} {
		if i := bytes.Index(raw, sep); i >= 0 {
			return string(raw[i+len(sep):])
		}
	}
	return string(raw)
}

// htmlToText converts an HTML body to Markdown-flavoured text, falling
// back to the raw markup when conversion fails.
func htmlToText(html string) string {
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return html
	}
	return strings.TrimSpace(md)
}

// formatAddress renders "Name <addr>" or just the address.
func formatAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	if addr == "" {
		return name
	}
	return fmt.Sprintf("%s <%s>", name, addr)
}
