package utils

import (
	"testing"
	"time"

	"outreachly/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type senderFixture struct {
	db       *gorm.DB
	sender   *CampaignSender
	user     models.User
	campaign models.Campaign
	records  []models.CampaignContact
}

// newSenderFixture seeds a scheduled campaign with n pending recipients and a
// settings row without provider credentials, so sends take the demo path.
func newSenderFixture(t *testing.T, n int) *senderFixture {
	t.Helper()
	db := newTestDB(t)

	user := models.User{Email: "me@acme.io", Name: "Me", IsActive: true}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.Create(&models.EmailSettings{
		UserID: user.ID, FromEmail: "me@acme.io", FromName: "Me",
	}).Error)

	tmpl := models.Template{
		UserID: user.ID, Name: "intro",
		Subject:     "Hi {{first_name}}",
		HTMLContent: `<p>Hello {{first_name}}</p><a href="https://example.com">site</a>`,
	}
	require.NoError(t, db.Create(&tmpl).Error)

	campaign := models.Campaign{
		UserID: user.ID, TemplateID: &tmpl.ID, Name: "launch",
		Status: models.CampaignStatusScheduled, TotalRecipients: n,
	}
	require.NoError(t, db.Create(&campaign).Error)

	var records []models.CampaignContact
	for i := 0; i < n; i++ {
		contact := models.Contact{
			UserID: user.ID, FirstName: "Jane",
			Email: string(rune('a'+i)) + "@example.com",
		}
		require.NoError(t, db.Create(&contact).Error)
		record := models.CampaignContact{
			CampaignID: campaign.ID, ContactID: contact.ID,
			Status: models.SendStatusPending,
		}
		require.NoError(t, db.Create(&record).Error)
		records = append(records, record)
	}

	sender := &CampaignSender{
		DB:      db,
		Gateway: NewProviderGateway(time.Second, newTestLogger()),
		Warmup:  NewWarmupGovernor(db),
		Logger:  newTestLogger(),
		BaseURL: "http://track.test",
	}

	return &senderFixture{db: db, sender: sender, user: user, campaign: campaign, records: records}
}

func TestRunCompletesCampaignThroughDemoPath(t *testing.T) {
	f := newSenderFixture(t, 2)

	result, err := f.sender.Run(f.campaign.ID, f.user.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, result.SentCount)
	assert.Equal(t, 0, result.FailedCount)
	assert.Equal(t, models.CampaignStatusCompleted, result.Status)

	var campaign models.Campaign
	require.NoError(t, f.db.First(&campaign, f.campaign.ID).Error)
	assert.Equal(t, models.CampaignStatusCompleted, campaign.Status)
	assert.Equal(t, 2, campaign.SentCount)
	assert.NotNil(t, campaign.StartedAt)
	assert.NotNil(t, campaign.CompletedAt)

	var record models.CampaignContact
	require.NoError(t, f.db.First(&record, f.records[0].ID).Error)
	assert.Equal(t, models.SendStatusSent, record.Status)
	assert.Equal(t, ProviderDemo, record.Provider)
	assert.NotEmpty(t, record.MessageID)
	assert.NotNil(t, record.SentAt)

	var activities int64
	f.db.Model(&models.ActivityLog{}).Where("action = ?", "email_sent").Count(&activities)
	assert.EqualValues(t, 2, activities)
}

func TestRunAcceptsDraftCampaign(t *testing.T) {
	f := newSenderFixture(t, 1)
	require.NoError(t, f.db.Model(&models.Campaign{}).
		Where("id = ?", f.campaign.ID).
		Update("status", models.CampaignStatusDraft).Error)

	result, err := f.sender.Run(f.campaign.ID, f.user.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.SentCount)
	assert.Equal(t, models.CampaignStatusCompleted, result.Status)
}

func TestRunLeavesCampaignOpenWhileRecordClaimedElsewhere(t *testing.T) {
	f := newSenderFixture(t, 2)

	// Another loop holds the first record mid-send.
	require.NoError(t, f.db.Model(&models.CampaignContact{}).
		Where("id = ?", f.records[0].ID).
		Update("status", models.SendStatusSending).Error)

	result, err := f.sender.Run(f.campaign.ID, f.user.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.SentCount, "only the unclaimed record is sent")
	assert.Equal(t, models.CampaignStatusRunning, result.Status)

	var campaign models.Campaign
	require.NoError(t, f.db.First(&campaign, f.campaign.ID).Error)
	assert.Equal(t, models.CampaignStatusRunning, campaign.Status,
		"campaign must stay open while a record is in flight")
	assert.Nil(t, campaign.CompletedAt)

	var held models.CampaignContact
	require.NoError(t, f.db.First(&held, f.records[0].ID).Error)
	assert.Equal(t, models.SendStatusSending, held.Status,
		"a record claimed by another run is never touched")
}

func TestRunRejectsForeignAndFinishedCampaigns(t *testing.T) {
	f := newSenderFixture(t, 1)

	_, err := f.sender.Run(f.campaign.ID, f.user.ID+999)
	assert.Error(t, err, "another user's campaign is invisible")

	_, err = f.sender.Run(f.campaign.ID, f.user.ID)
	require.NoError(t, err)

	_, err = f.sender.Run(f.campaign.ID, f.user.ID)
	assert.Error(t, err, "a completed campaign cannot send again")
}

func TestRunIsReinvocationSafe(t *testing.T) {
	f := newSenderFixture(t, 2)

	// First record was already delivered by an earlier, interrupted run.
	require.NoError(t, f.db.Model(&models.CampaignContact{}).
		Where("id = ?", f.records[0].ID).
		Updates(map[string]interface{}{"status": models.SendStatusSent}).Error)

	result, err := f.sender.Run(f.campaign.ID, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SentCount, "only the pending record is sent")
}

func TestRunPausesCampaignOnWarmupExhaustion(t *testing.T) {
	f := newSenderFixture(t, 3)

	now := time.Now()
	require.NoError(t, f.db.Create(&models.WarmupSchedule{
		UserID: f.user.ID, Domain: "acme.io",
		CurrentDailyLimit: 1, TargetDailyLimit: 10, IncrementPerDay: 5,
		LastSendDate: &now, Status: models.WarmupStatusActive,
	}).Error)

	result, err := f.sender.Run(f.campaign.ID, f.user.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.SentCount)
	assert.Equal(t, models.CampaignStatusPaused, result.Status)

	var campaign models.Campaign
	require.NoError(t, f.db.First(&campaign, f.campaign.ID).Error)
	assert.Equal(t, models.CampaignStatusPaused, campaign.Status)

	// The refused record went back to pending, not failed.
	var pending int64
	f.db.Model(&models.CampaignContact{}).
		Where("campaign_id = ? AND status = ?", campaign.ID, models.SendStatusPending).
		Count(&pending)
	assert.EqualValues(t, 2, pending)
}

func TestRunFailsCampaignWithoutTemplate(t *testing.T) {
	f := newSenderFixture(t, 1)
	require.NoError(t, f.db.Model(&models.Campaign{}).
		Where("id = ?", f.campaign.ID).
		Update("template_id", nil).Error)

	_, err := f.sender.Run(f.campaign.ID, f.user.ID)
	require.Error(t, err)

	var campaign models.Campaign
	require.NoError(t, f.db.First(&campaign, f.campaign.ID).Error)
	assert.Equal(t, models.CampaignStatusFailed, campaign.Status)
}
