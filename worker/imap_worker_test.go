package worker

import (
	"bytes"
	"testing"
	"time"

	"outreachly/models"
	"outreachly/utils"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedImapReplyTarget(t *testing.T, db *gorm.DB) models.CampaignContact {
	t.Helper()

	user := models.User{Email: "me@acme.io", IsActive: true}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.Create(&models.EmailSettings{
		UserID: user.ID, FromEmail: "outreach@acme.io",
	}).Error)
	contact := models.Contact{UserID: user.ID, Email: "jane@example.com"}
	require.NoError(t, db.Create(&contact).Error)
	campaign := models.Campaign{UserID: user.ID, Name: "launch", Status: models.CampaignStatusCompleted}
	require.NoError(t, db.Create(&campaign).Error)

	sentAt := time.Now().Add(-time.Hour)
	record := models.CampaignContact{
		CampaignID: campaign.ID, ContactID: contact.ID,
		Status: models.SendStatusSent, MessageID: "<msg-1@acme.io>", SentAt: &sentAt,
	}
	require.NoError(t, db.Create(&record).Error)
	return record
}

func TestProcessMessageExtractsBodyAndMatches(t *testing.T) {
	db := newTestDB(t)
	record := seedImapReplyTarget(t, db)
	w := NewIMAPWorker(db, utils.NewReplyMatcher(db, newTestLogger()), newTestLogger(), time.Minute)

	raw := "From: Jane <jane@example.com>\r\n" +
		"To: outreach@acme.io\r\n" +
		"Subject: Re: launch\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"count me in\r\n"

	// The server keys the Body map with its own section pointer, never the
	// one the consumer builds.
	serverSection := &imap.BodySectionName{}
	msg := &imap.Message{
		SeqNum: 1,
		Envelope: &imap.Envelope{
			Date:      time.Now(),
			Subject:   "Re: launch",
			From:      []*imap.Address{{MailboxName: "jane", HostName: "example.com"}},
			To:        []*imap.Address{{MailboxName: "outreach", HostName: "acme.io"}},
			MessageId: "<reply-9@example.com>",
			InReplyTo: "<msg-1@acme.io>",
		},
		Body: map[*imap.BodySectionName]imap.Literal{
			serverSection: bytes.NewBufferString(raw),
		},
	}

	require.NoError(t, w.processMessage(msg))

	var inbox models.InboxMessage
	require.NoError(t, db.First(&inbox).Error)
	assert.Equal(t, "imap", inbox.Provider)
	assert.Contains(t, inbox.TextBody, "count me in")

	var reloaded models.CampaignContact
	require.NoError(t, db.First(&reloaded, record.ID).Error)
	assert.Equal(t, models.SendStatusReplied, reloaded.Status)
}

func TestProcessMessageWithoutEnvelopeFails(t *testing.T) {
	db := newTestDB(t)
	w := NewIMAPWorker(db, utils.NewReplyMatcher(db, newTestLogger()), newTestLogger(), time.Minute)

	assert.Error(t, w.processMessage(&imap.Message{SeqNum: 1}))
}
