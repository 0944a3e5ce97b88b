package worker

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"outreachly/models"
	"outreachly/utils"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// IMAPWorker polls the mailboxes of users with IMAP-configured settings and
// feeds unseen messages through the reply matcher, so replies arrive in the
// system even when no inbound webhook is wired up.
type IMAPWorker struct {
	DB       *gorm.DB
	Matcher  *utils.ReplyMatcher
	Logger   *logrus.Logger
	Interval time.Duration
}

func NewIMAPWorker(db *gorm.DB, matcher *utils.ReplyMatcher, logger *logrus.Logger, interval time.Duration) *IMAPWorker {
	return &IMAPWorker{
		DB:       db,
		Matcher:  matcher,
		Logger:   logger,
		Interval: interval,
	}
}

func (iw *IMAPWorker) Start(ctx context.Context) {
	iw.Logger.Info("imap poll worker started")

	ticker := time.NewTicker(iw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			iw.Logger.Info("imap poll worker shutting down")
			return
		case <-ticker.C:
			iw.pollAll()
		}
	}
}

func (iw *IMAPWorker) pollAll() {
	var settings []models.EmailSettings
	if err := iw.DB.Where("imap_host IS NOT NULL AND imap_host != ''").Find(&settings).Error; err != nil {
		iw.Logger.WithError(err).Error("failed to fetch imap-enabled settings")
		return
	}

	for i := range settings {
		if err := iw.pollMailbox(&settings[i]); err != nil {
			iw.Logger.WithFields(logrus.Fields{
				"user_id": settings[i].UserID,
				"host":    settings[i].IMAPHost,
			}).WithError(err).Error("imap poll failed")
		}
	}
}

func (iw *IMAPWorker) pollMailbox(settings *models.EmailSettings) error {
	password, err := utils.Decrypt(settings.IMAPPassword)
	if err != nil {
		return fmt.Errorf("failed to decrypt IMAP password: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", settings.IMAPHost, settings.IMAPPort)
	imapClient, err := client.DialTLS(addr, &tls.Config{
		ServerName: settings.IMAPHost,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	defer imapClient.Logout()

	if err := imapClient.Login(settings.IMAPUsername, password); err != nil {
		return fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	if _, err := imapClient.Select("INBOX", false); err != nil {
		return fmt.Errorf("failed to select mailbox: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := imapClient.Search(criteria)
	if err != nil {
		return fmt.Errorf("failed to search messages: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.Fetch(seqset,
			[]imap.FetchItem{imap.FetchEnvelope, imap.FetchItem("BODY.PEEK[]")}, messages)
	}()

	for msg := range messages {
		if err := iw.processMessage(msg); err != nil {
			iw.Logger.WithField("seq", msg.SeqNum).WithError(err).Warn("failed to process imap message")
		}
	}

	if err := <-done; err != nil {
		return fmt.Errorf("error during fetch: %w", err)
	}

	// Mark the batch seen so the next poll skips it.
	flags := []interface{}{imap.SeenFlag}
	if err := imapClient.Store(seqset, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
		iw.Logger.WithError(err).Warn("failed to mark messages seen")
	}

	return nil
}

func (iw *IMAPWorker) processMessage(msg *imap.Message) error {
	if msg.Envelope == nil {
		return fmt.Errorf("message has no envelope")
	}

	var bodyText, bodyHTML string
	if msg.Body != nil {
		// The Body map is keyed by the server's own section pointers, so it
		// must be looked up by value through GetBody.
		section := imap.BodySectionName{}
		if literal := msg.GetBody(&section); literal != nil {
			mr, err := mail.CreateReader(literal)
			if err != nil {
				return fmt.Errorf("failed to create message reader: %w", err)
			}
			for {
				p, err := mr.NextPart()
				if err == io.EOF {
					break
				} else if err != nil {
					return fmt.Errorf("failed to read next part: %w", err)
				}

				if h, ok := p.Header.(*mail.InlineHeader); ok {
					contentType, _, _ := h.ContentType()
					b, err := io.ReadAll(p.Body)
					if err != nil {
						continue
					}
					if strings.Contains(contentType, "text/html") {
						bodyHTML = string(b)
					} else if strings.Contains(contentType, "text/plain") {
						bodyText = string(b)
					}
				}
			}
		}
	}

	receivedAt := msg.Envelope.Date
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	inbound := &utils.InboundEmail{
		From:       firstAddress(msg.Envelope.From),
		To:         firstAddress(msg.Envelope.To),
		Subject:    msg.Envelope.Subject,
		TextBody:   bodyText,
		HTMLBody:   bodyHTML,
		MessageID:  strings.Trim(msg.Envelope.MessageId, "<>"),
		InReplyTo:  strings.Trim(msg.Envelope.InReplyTo, "<>"),
		ReceivedAt: receivedAt,
		Provider:   "imap",
	}

	_, err := iw.Matcher.Match(inbound)
	return err
}

func firstAddress(addrs []*imap.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	return fmt.Sprintf("%s@%s", addrs[0].MailboxName, addrs[0].HostName)
}
