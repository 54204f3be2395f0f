package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"sort"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"
	"go.uber.org/zap"

	"github.com/nhle/mail-digest/internal/model"
	"github.com/nhle/mail-digest/internal/source"
)

// IMAPClient implements source.Mailbox over go-imap v2.
type IMAPClient struct {
	addr       string
	username   string
	password   string
	tls        bool
	stagingDir string
	logger     *zap.Logger
}

// NewIMAPClient creates a client for the account in cfg. Attachments
// of fetched messages are written to stagingDir.
func NewIMAPClient(
	cfg model.MailConfig, stagingDir string, logger *zap.Logger,
) *IMAPClient {
	return &IMAPClient{
		addr:       cfg.Addr,
		username:   cfg.Address,
		password:   cfg.Password,
		tls:        cfg.TLS,
		stagingDir: stagingDir,
		logger:     logger,
	}
}

// Connect dials the server, authenticates, and returns the connected
// client. The caller owns the client and must log out.
func (c *IMAPClient) Connect(ctx context.Context) (*imapclient.Client, error) {
	var (
		conn net.Conn
		err  error
	)

	if c.tls {
		host, _, splitErr := net.SplitHostPort(c.addr)
		if splitErr != nil {
			return nil, fmt.Errorf("parsing IMAP address %s: %w", c.addr, splitErr)
		}
		d := &tls.Dialer{Config: &tls.Config{ServerName: host}}
		conn, err = d.DialContext(ctx, "tcp", c.addr)
	} else {
		d := &net.Dialer{}
		conn, err = d.DialContext(ctx, "tcp", c.addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", c.addr, err)
	}

	client := imapclient.New(conn, &imapclient.Options{
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	})

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("logging in as %s: %w", c.username, err)
	}

	return client, nil
}

// Open connects and selects folder.
func (c *IMAPClient) Open(
	ctx context.Context, folder string,
) (source.Folder, error) {
	client, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := client.Select(folder, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		_ = client.Close()
		return nil, fmt.Errorf("selecting %s: %w", folder, err)
	}

	c.logger.Debug("folder selected", zap.String("folder", folder))

	return &folderSession{
		client:     client,
		name:       folder,
		stagingDir: c.stagingDir,
		logger:     c.logger,
	}, nil
}

// folderSession is an authenticated connection with one folder selected.
type folderSession struct {
	client     *imapclient.Client
	name       string
	stagingDir string
	logger     *zap.Logger
}

func (f *folderSession) Name() string { return f.name }

// Unseen searches for messages without \Seen and returns their
// envelopes in UID order.
func (f *folderSession) Unseen(_ context.Context) ([]model.Envelope, error) {
	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}

	searchData, err := f.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching unseen in %s: %w", f.name, err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	fetchOpts := &imap.FetchOptions{
		Envelope: true,
		UID:      true,
	}

	msgs, err := f.client.Fetch(imap.UIDSetNum(uids...), fetchOpts).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetching envelopes in %s: %w", f.name, err)
	}

	envelopes := make([]model.Envelope, 0, len(msgs))
	for _, buf := range msgs {
		envelopes = append(envelopes, envelopeFromBuffer(buf))
	}
	sort.Slice(envelopes, func(i, j int) bool {
		return envelopes[i].UID < envelopes[j].UID
	})

	return envelopes, nil
}

// Fetch retrieves the full message for uid with BODY.PEEK[] and parses
// it. Attachment parts are saved to the staging directory.
func (f *folderSession) Fetch(
	_ context.Context, uid uint32,
) (*model.Message, error) {
	bodySection := &imap.FetchItemBodySection{
		Peek: true,
	}

	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := f.client.Fetch(imap.UIDSetNum(imap.UID(uid)), fetchOpts)

	msg := fetchCmd.Next()
	if msg == nil {
		_ = fetchCmd.Close()
		return nil, fmt.Errorf("message UID %d not found in %s", uid, f.name)
	}

	buf, err := msg.Collect()
	if err != nil {
		_ = fetchCmd.Close()
		return nil, fmt.Errorf("collecting message UID %d: %w", uid, err)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching message UID %d: %w", uid, err)
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return nil, fmt.Errorf("message UID %d has no body", uid)
	}

	parsed, err := parseMessage(raw, f.stagingDir)
	if err != nil {
		return nil, fmt.Errorf("parsing message UID %d: %w", uid, err)
	}

	env := envelopeFromBuffer(buf)
	out := &model.Message{
		UID:         uid,
		Folder:      f.name,
		From:        parsed.From,
		Subject:     parsed.Subject,
		Body:        parsed.Body,
		Attachments: parsed.Attachments,
	}
	if out.From == "" {
		out.From = env.From
	}
	if out.Subject == "" {
		out.Subject = env.Subject
	}

	f.logger.Debug("message fetched",
		zap.String("folder", f.name),
		zap.Uint32("uid", uid),
		zap.Int("body_len", len(out.Body)),
		zap.Int("attachments", len(out.Attachments)),
	)

	return out, nil
}

// MarkSeen adds \Seen to the message.
func (f *folderSession) MarkSeen(_ context.Context, uid uint32) error {
	storeCmd := f.client.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)

	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("marking UID %d seen in %s: %w", uid, f.name, err)
	}
	return nil
}

// Close logs out and closes the connection.
func (f *folderSession) Close() error {
	err := f.client.Logout().Wait()
	_ = f.client.Close()
	if err != nil {
		return fmt.Errorf("logging out of %s: %w", f.name, err)
	}
	return nil
}

// envelopeFromBuffer extracts an Envelope from a FetchMessageBuffer.
func envelopeFromBuffer(buf *imapclient.FetchMessageBuffer) model.Envelope {
	env := model.Envelope{
		UID:     uint32(buf.UID),
		Subject: noSubject,
	}

	if buf.Envelope != nil {
		if buf.Envelope.Subject != "" {
			env.Subject = buf.Envelope.Subject
		}
		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			env.From = formatAddress(from.Name, from.Addr())
		}
	}

	return env
}
