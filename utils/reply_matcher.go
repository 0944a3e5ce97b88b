package utils

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"outreachly/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// InboundEmail is a provider-agnostic inbound reply, produced by the webhook
// payload sniffers and by the IMAP poller.
type InboundEmail struct {
	From       string
	To         string
	Subject    string
	TextBody   string
	HTMLBody   string
	MessageID  string
	InReplyTo  string
	ReceivedAt time.Time
	Provider   string
}

// MatchResult describes how an inbound message was correlated.
type MatchResult struct {
	Outcome           string `json:"outcome"` // thread_match, contact_match, user_match, unmatched
	UserID            uint   `json:"user_id,omitempty"`
	ContactID         *uint  `json:"contact_id,omitempty"`
	CampaignID        *uint  `json:"campaign_id,omitempty"`
	CampaignContactID *uint  `json:"campaign_contact_id,omitempty"`
	InboxMessageID    *uint  `json:"inbox_message_id,omitempty"`
}

// Matched reports whether the message was tied to at least a user.
func (r *MatchResult) Matched() bool {
	return r.Outcome != "unmatched"
}

// ReplyMatcher correlates inbound replies to contact/campaign/send-record.
// Matching order, first match wins: the In-Reply-To header against stored
// outbound message ids, then the sender address within the recipient user's
// contacts, then the recipient address against user profiles.
type ReplyMatcher struct {
	DB     *gorm.DB
	Logger *logrus.Logger
}

func NewReplyMatcher(db *gorm.DB, logger *logrus.Logger) *ReplyMatcher {
	return &ReplyMatcher{DB: db, Logger: logger}
}

func (rm *ReplyMatcher) Match(msg *InboundEmail) (*MatchResult, error) {
	from := NormalizeAddress(msg.From)
	to := NormalizeAddress(msg.To)

	// 1. Header reply-chain: the strongest signal, works even when the sender
	// replies from a different address than the one on file.
	if msg.InReplyTo != "" {
		// Outbound ids are stored in RFC form with angle brackets; webhook
		// payloads deliver the header with or without them.
		bare := strings.Trim(strings.TrimSpace(msg.InReplyTo), "<>")
		var record models.CampaignContact
		err := rm.DB.Where("message_id IN ?", []string{bare, "<" + bare + ">"}).First(&record).Error
		if err == nil {
			return rm.recordMatch(msg, &record, "thread_match")
		}
		if err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("reply-chain lookup failed: %w", err)
		}
	}

	userID, ok := rm.resolveUser(to)
	if !ok {
		rm.Logger.WithFields(logrus.Fields{
			"from": from,
			"to":   to,
		}).Info("inbound message matched no user, acknowledging without persisting")
		return &MatchResult{Outcome: "unmatched"}, nil
	}

	// 2. Sender address against the user's own contact set; best-effort
	// association with the most recently sent record.
	var contact models.Contact
	err := rm.DB.Where("user_id = ? AND email = ?", userID, from).First(&contact).Error
	if err == nil {
		var record models.CampaignContact
		err := rm.DB.Joins("JOIN campaigns ON campaigns.id = campaign_contacts.campaign_id").
			Where("campaign_contacts.contact_id = ? AND campaign_contacts.status IN ? AND campaigns.user_id = ?",
				contact.ID, []string{models.SendStatusSent, models.SendStatusReplied}, userID).
			Order("campaign_contacts.sent_at DESC").
			First(&record).Error
		if err == nil {
			return rm.recordMatch(msg, &record, "contact_match")
		}
		if err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("send record lookup failed: %w", err)
		}

		inbox, err := rm.persistInbox(msg, userID, &contact.ID, nil, nil)
		if err != nil {
			return nil, err
		}
		return &MatchResult{
			Outcome:        "contact_match",
			UserID:         userID,
			ContactID:      &contact.ID,
			InboxMessageID: &inbox.ID,
		}, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("contact lookup failed: %w", err)
	}

	// 3. User-only: keep the message in the user's inbox, unlinked.
	inbox, err := rm.persistInbox(msg, userID, nil, nil, nil)
	if err != nil {
		return nil, err
	}
	return &MatchResult{
		Outcome:        "user_match",
		UserID:         userID,
		InboxMessageID: &inbox.ID,
	}, nil
}

func (rm *ReplyMatcher) recordMatch(msg *InboundEmail, record *models.CampaignContact, outcome string) (*MatchResult, error) {
	var campaign models.Campaign
	if err := rm.DB.First(&campaign, record.CampaignID).Error; err != nil {
		return nil, fmt.Errorf("campaign lookup failed: %w", err)
	}

	// Set-once transition; replays of the same reply do not double-count.
	res := rm.DB.Model(&models.CampaignContact{}).
		Where("id = ? AND status = ?", record.ID, models.SendStatusSent).
		Update("status", models.SendStatusReplied)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to mark record replied: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		rm.DB.Model(&campaign).Update("reply_count", gorm.Expr("reply_count + 1"))
	}

	inbox, err := rm.persistInbox(msg, campaign.UserID, &record.ContactID, &record.CampaignID, &record.ID)
	if err != nil {
		return nil, err
	}

	activity := models.ActivityLog{
		UserID:     campaign.UserID,
		Action:     "reply_matched",
		EntityType: "campaign_contact",
		EntityID:   record.ID,
		Metadata: map[string]interface{}{
			"campaign_id": record.CampaignID,
			"contact_id":  record.ContactID,
			"outcome":     outcome,
			"provider":    msg.Provider,
		},
	}
	if err := rm.DB.Create(&activity).Error; err != nil {
		rm.Logger.WithError(err).Warn("failed to record reply activity")
	}

	return &MatchResult{
		Outcome:           outcome,
		UserID:            campaign.UserID,
		ContactID:         &record.ContactID,
		CampaignID:        &record.CampaignID,
		CampaignContactID: &record.ID,
		InboxMessageID:    &inbox.ID,
	}, nil
}

func (rm *ReplyMatcher) persistInbox(msg *InboundEmail, userID uint, contactID, campaignID, recordID *uint) (*models.InboxMessage, error) {
	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	inbox := models.InboxMessage{
		UserID:            userID,
		ContactID:         contactID,
		CampaignID:        campaignID,
		CampaignContactID: recordID,
		FromAddress:       NormalizeAddress(msg.From),
		ToAddress:         NormalizeAddress(msg.To),
		Subject:           msg.Subject,
		TextBody:          msg.TextBody,
		HTMLBody:          msg.HTMLBody,
		MessageID:         strings.TrimSpace(msg.MessageID),
		InReplyTo:         strings.TrimSpace(msg.InReplyTo),
		Provider:          msg.Provider,
		ReceivedAt:        receivedAt,
	}
	if err := rm.DB.Create(&inbox).Error; err != nil {
		return nil, fmt.Errorf("failed to persist inbox message: %w", err)
	}
	return &inbox, nil
}

func (rm *ReplyMatcher) resolveUser(to string) (uint, bool) {
	var settings models.EmailSettings
	if err := rm.DB.Where("from_email = ?", to).First(&settings).Error; err == nil {
		return settings.UserID, true
	}

	var user models.User
	if err := rm.DB.Where("email = ?", to).First(&user).Error; err == nil {
		return user.ID, true
	}

	return 0, false
}

// NormalizeAddress reduces "Name <addr@example.com>" to the bare, lowercased
// addr-spec.
func NormalizeAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if parsed, err := mail.ParseAddress(raw); err == nil {
		return strings.ToLower(parsed.Address)
	}
	return strings.ToLower(raw)
}
