package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/mail-digest/internal/files"
	"github.com/nhle/mail-digest/internal/filter"
	"github.com/nhle/mail-digest/internal/metrics"
	"github.com/nhle/mail-digest/internal/model"
	"github.com/nhle/mail-digest/internal/source"
)

// Summarizer condenses a message body. It never fails; errors come
// back as placeholder text.
type Summarizer interface {
	Summarize(ctx context.Context, body string) string
}

// Notifier delivers an optional text and an optional local file.
type Notifier interface {
	Send(ctx context.Context, text, filePath string) error
}

// alertFormat is the header put in front of every summary.
const alertFormat = "🔔 *New Relevant Email Found in %s*\n\n%s"

// Poller checks every configured folder, then sleeps for the poll
// interval, until its context is cancelled.
type Poller struct {
	mailbox    source.Mailbox
	summarizer Summarizer
	notifier   Notifier
	senders    []string
	folders    []string
	interval   time.Duration
	logger     *zap.Logger
}

// New creates a Poller for the senders, folders, and interval in cfg.
func New(
	mailbox source.Mailbox,
	summarizer Summarizer,
	notifier Notifier,
	cfg *model.AppConfig,
	logger *zap.Logger,
) *Poller {
	interval := cfg.Poll.Interval
	if interval <= 0 {
		interval = model.DefaultPollInterval
	}

	return &Poller{
		mailbox:    mailbox,
		summarizer: summarizer,
		notifier:   notifier,
		senders:    cfg.Senders,
		folders:    cfg.Mail.Folders,
		interval:   interval,
		logger:     logger,
	}
}

// Run polls until ctx is cancelled. It returns ctx.Err().
func (p *Poller) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		p.RunCycle(ctx)

		p.logger.Info("sleeping", zap.Duration("interval", p.interval))
		timer.Reset(p.interval)
	}
}

// RunCycle checks every folder once. A folder that fails is logged and
// skipped.
func (p *Poller) RunCycle(ctx context.Context) {
	start := time.Now()
	logger := p.logger.With(zap.String("cycle_id", uuid.New().String()))
	logger.Info("checking mail", zap.Strings("folders", p.folders))

	for _, folder := range p.folders {
		if ctx.Err() != nil {
			return
		}
		if err := p.checkFolder(ctx, folder, logger); err != nil {
			metrics.IncFolderError(folder)
			logger.Error("checking folder",
				zap.String("folder", folder),
				zap.Error(err),
			)
		}
	}

	metrics.ObserveCycle(time.Since(start))
}

// CheckFolder processes the unseen messages of one folder.
func (p *Poller) CheckFolder(ctx context.Context, folder string) error {
	return p.checkFolder(ctx, folder, p.logger)
}

func (p *Poller) checkFolder(
	ctx context.Context, folder string, logger *zap.Logger,
) error {
	f, err := p.mailbox.Open(ctx, folder)
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.Debug("closing folder", zap.String("folder", folder), zap.Error(err))
		}
	}()

	envelopes, err := f.Unseen(ctx)
	if err != nil {
		return err
	}
	logger.Debug("unseen messages",
		zap.String("folder", f.Name()),
		zap.Int("count", len(envelopes)),
	)

	for _, env := range envelopes {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !filter.Match(env.From, p.senders) {
			metrics.IncMessage(folder, metrics.StatusSkipped)
			continue
		}

		if err := p.processMessage(ctx, f, env, logger); err != nil {
			metrics.IncMessage(folder, metrics.StatusFailed)
			logger.Warn("message left unseen",
				zap.String("folder", folder),
				zap.Uint32("uid", env.UID),
				zap.Error(err),
			)
			continue
		}
		metrics.IncMessage(folder, metrics.StatusSuccess)
	}

	return nil
}

// processMessage fetches, summarizes, and delivers one message. The
// message is marked seen once its alert is delivered. Attachment
// failures are logged and do not keep it unseen. When the alert itself
// fails, the message stays unseen and its staged attachments are removed
// so the next cycle starts clean.
func (p *Poller) processMessage(
	ctx context.Context, f source.Folder, env model.Envelope, logger *zap.Logger,
) error {
	folder := f.Name()

	msg, err := f.Fetch(ctx, env.UID)
	if err != nil {
		return fmt.Errorf("fetching message %d: %w", env.UID, err)
	}

	logger.Info("relevant email",
		zap.String("folder", folder),
		zap.String("from", msg.From),
		zap.String("subject", msg.Subject),
		zap.Int("attachments", len(msg.Attachments)),
	)

	summary := p.summarizer.Summarize(ctx, msg.Body)
	alert := fmt.Sprintf(alertFormat, folder, summary)

	if err := p.notifier.Send(ctx, alert, ""); err != nil {
		removeStaged(msg.Attachments, logger)
		return fmt.Errorf("sending alert: %w", err)
	}

	if err := f.MarkSeen(ctx, env.UID); err != nil {
		removeStaged(msg.Attachments, logger)
		return fmt.Errorf("marking message %d seen: %w", env.UID, err)
	}

	var failed int
	for _, path := range msg.Attachments {
		if err := p.notifier.Send(ctx, "", path); err != nil {
			failed++
			logger.Warn("attachment not delivered",
				zap.String("folder", folder),
				zap.Uint32("uid", env.UID),
				zap.String("path", path),
				zap.Error(err),
			)
		}
	}
	if failed > 0 {
		removeStaged(msg.Attachments, logger)
	}

	return nil
}

// removeStaged deletes staged attachment files that are still present.
func removeStaged(paths []string, logger *zap.Logger) {
	n, err := files.RemoveAll(paths)
	if err != nil {
		logger.Warn("removing staged attachments", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Debug("removed staged attachments", zap.Int("count", n))
	}
}
