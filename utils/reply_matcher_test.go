package utils

import (
	"testing"
	"time"

	"outreachly/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type matcherFixture struct {
	db      *gorm.DB
	matcher *ReplyMatcher
	user    models.User
	contact models.Contact
	record  models.CampaignContact
}

func newMatcherFixture(t *testing.T) *matcherFixture {
	t.Helper()
	db := newTestDB(t)

	user := models.User{Email: "me@acme.io", Name: "Me", IsActive: true}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.Create(&models.EmailSettings{
		UserID: user.ID, FromEmail: "outreach@acme.io",
	}).Error)

	contact := models.Contact{UserID: user.ID, Email: "jane@example.com", FirstName: "Jane"}
	require.NoError(t, db.Create(&contact).Error)

	campaign := models.Campaign{UserID: user.ID, Name: "launch", Status: models.CampaignStatusCompleted}
	require.NoError(t, db.Create(&campaign).Error)

	sentAt := time.Now().Add(-time.Hour)
	record := models.CampaignContact{
		CampaignID: campaign.ID, ContactID: contact.ID,
		Status: models.SendStatusSent, MessageID: "<msg-1@acme.io>", SentAt: &sentAt,
	}
	require.NoError(t, db.Create(&record).Error)

	return &matcherFixture{
		db:      db,
		matcher: NewReplyMatcher(db, newTestLogger()),
		user:    user,
		contact: contact,
		record:  record,
	}
}

func TestMatchByInReplyToHeader(t *testing.T) {
	f := newMatcherFixture(t)

	result, err := f.matcher.Match(&InboundEmail{
		From:      "Jane Doe <jane@example.com>",
		To:        "outreach@acme.io",
		Subject:   "Re: launch",
		InReplyTo: "<msg-1@acme.io>",
		Provider:  "postmark",
	})
	require.NoError(t, err)

	assert.Equal(t, "thread_match", result.Outcome)
	require.NotNil(t, result.CampaignContactID)
	assert.Equal(t, f.record.ID, *result.CampaignContactID)
	require.NotNil(t, result.InboxMessageID)

	var record models.CampaignContact
	require.NoError(t, f.db.First(&record, f.record.ID).Error)
	assert.Equal(t, models.SendStatusReplied, record.Status)

	var campaign models.Campaign
	require.NoError(t, f.db.First(&campaign, f.record.CampaignID).Error)
	assert.Equal(t, 1, campaign.ReplyCount)
}

func TestMatchReplayDoesNotDoubleCount(t *testing.T) {
	f := newMatcherFixture(t)

	msg := &InboundEmail{
		From: "jane@example.com", To: "outreach@acme.io",
		InReplyTo: "<msg-1@acme.io>", Provider: "mailgun",
	}
	_, err := f.matcher.Match(msg)
	require.NoError(t, err)
	_, err = f.matcher.Match(msg)
	require.NoError(t, err)

	var campaign models.Campaign
	require.NoError(t, f.db.First(&campaign, f.record.CampaignID).Error)
	assert.Equal(t, 1, campaign.ReplyCount, "replayed webhook must not double-count")
}

func TestMatchBySenderAddressWithinUser(t *testing.T) {
	f := newMatcherFixture(t)

	// No reply-chain header: fall back to the sender's address.
	result, err := f.matcher.Match(&InboundEmail{
		From: "jane@example.com", To: "outreach@acme.io",
		Subject: "interested", Provider: "sendgrid",
	})
	require.NoError(t, err)

	assert.Equal(t, "contact_match", result.Outcome)
	require.NotNil(t, result.CampaignContactID)
	assert.Equal(t, f.record.ID, *result.CampaignContactID, "latest sent record wins")
}

func TestHeaderMatchOutranksAddressMatch(t *testing.T) {
	f := newMatcherFixture(t)

	// Second campaign to the same contact; the header names the first one.
	campaign2 := models.Campaign{UserID: f.user.ID, Name: "second", Status: models.CampaignStatusCompleted}
	require.NoError(t, f.db.Create(&campaign2).Error)
	sentAt := time.Now()
	record2 := models.CampaignContact{
		CampaignID: campaign2.ID, ContactID: f.contact.ID,
		Status: models.SendStatusSent, MessageID: "<msg-2@acme.io>", SentAt: &sentAt,
	}
	require.NoError(t, f.db.Create(&record2).Error)

	result, err := f.matcher.Match(&InboundEmail{
		From: "jane@example.com", To: "outreach@acme.io",
		InReplyTo: "<msg-1@acme.io>", Provider: "generic",
	})
	require.NoError(t, err)

	assert.Equal(t, "thread_match", result.Outcome)
	assert.Equal(t, f.record.ID, *result.CampaignContactID,
		"header wins even when the address match would pick a newer record")
}

func TestMatchUnknownSenderFallsBackToUser(t *testing.T) {
	f := newMatcherFixture(t)

	result, err := f.matcher.Match(&InboundEmail{
		From: "stranger@elsewhere.com", To: "outreach@acme.io",
		Subject: "hello", Provider: "imap",
	})
	require.NoError(t, err)

	assert.Equal(t, "user_match", result.Outcome)
	assert.Equal(t, f.user.ID, result.UserID)
	assert.Nil(t, result.ContactID)
	require.NotNil(t, result.InboxMessageID)
}

func TestMatchUnknownRecipientIsUnmatched(t *testing.T) {
	f := newMatcherFixture(t)

	result, err := f.matcher.Match(&InboundEmail{
		From: "jane@example.com", To: "nobody@unknown.io", Provider: "generic",
	})
	require.NoError(t, err)

	assert.Equal(t, "unmatched", result.Outcome)
	assert.False(t, result.Matched())

	var count int64
	f.db.Model(&models.InboxMessage{}).Count(&count)
	assert.Zero(t, count, "unmatched messages are not persisted")
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "jane@example.com", NormalizeAddress("Jane Doe <Jane@Example.com>"))
	assert.Equal(t, "jane@example.com", NormalizeAddress("  JANE@EXAMPLE.COM "))
	assert.Equal(t, "", NormalizeAddress(""))
}
