package worker

import (
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"outreachly/config"
	"outreachly/models"
	"outreachly/utils"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	config.AppConfig = config.Config{
		Environment:   "test",
		BaseURL:       "http://track.test",
		EncryptionKey: "0123456789abcdef0123456789abcdef",
	}
	os.Exit(m.Run())
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := config.MigrateDB(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func newTestLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type followUpFixture struct {
	db       *gorm.DB
	worker   *FollowUpWorker
	user     models.User
	campaign models.Campaign
	contact  models.Contact
	record   models.CampaignContact
	sequence models.FollowUpSequence
}

// newFollowUpFixture seeds a completed campaign with one sent record and an
// active sequence. Settings carry no provider credentials, so dispatch sends
// take the demo path.
func newFollowUpFixture(t *testing.T, trigger string, delayHours int) *followUpFixture {
	t.Helper()
	db := newTestDB(t)

	user := models.User{Email: "me@acme.io", Name: "Me", IsActive: true}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.Create(&models.EmailSettings{
		UserID: user.ID, FromEmail: "me@acme.io", FromName: "Me",
	}).Error)

	contact := models.Contact{UserID: user.ID, Email: "jane@example.com", FirstName: "Jane"}
	require.NoError(t, db.Create(&contact).Error)

	campaign := models.Campaign{UserID: user.ID, Name: "launch", Status: models.CampaignStatusCompleted}
	require.NoError(t, db.Create(&campaign).Error)

	sentAt := time.Now().Add(-48 * time.Hour)
	record := models.CampaignContact{
		CampaignID: campaign.ID, ContactID: contact.ID,
		Status: models.SendStatusSent, MessageID: "<msg-1@acme.io>", SentAt: &sentAt,
	}
	require.NoError(t, db.Create(&record).Error)

	sequence := models.FollowUpSequence{
		UserID: user.ID, CampaignID: campaign.ID, Name: "bump",
		TriggerType: trigger, DelayHours: delayHours,
		Subject: "Re: {{first_name}}", Content: "<p>Bump</p>",
		Status: models.SequenceStatusActive,
	}
	require.NoError(t, db.Create(&sequence).Error)

	sender := &utils.CampaignSender{
		DB:      db,
		Gateway: utils.NewProviderGateway(time.Second, newTestLogger()),
		Warmup:  utils.NewWarmupGovernor(db),
		Logger:  newTestLogger(),
		BaseURL: "http://track.test",
	}

	return &followUpFixture{
		db:       db,
		worker:   NewFollowUpWorker(db, sender, newTestLogger(), time.Minute),
		user:     user,
		campaign: campaign,
		contact:  contact,
		record:   record,
		sequence: sequence,
	}
}

func (f *followUpFixture) entries(t *testing.T) []models.FollowUpQueueEntry {
	t.Helper()
	var entries []models.FollowUpQueueEntry
	require.NoError(t, f.db.Find(&entries).Error)
	return entries
}

func TestEnqueueSchedulesFromEngagementTimestamp(t *testing.T) {
	f := newFollowUpFixture(t, models.TriggerOpenedNotClicked, 24)

	openedAt := time.Now().Add(-2 * time.Hour)
	require.NoError(t, f.db.Model(&models.CampaignContact{}).
		Where("id = ?", f.record.ID).
		Update("opened_at", openedAt).Error)

	f.worker.EnqueueDueFollowUps()

	entries := f.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, models.QueueStatusPending, entries[0].Status)
	assert.WithinDuration(t, openedAt.Add(24*time.Hour), entries[0].ScheduledAt, time.Second,
		"delay counts from the open, not from enqueue time")
}

func TestEnqueueIsIdempotent(t *testing.T) {
	f := newFollowUpFixture(t, models.TriggerNotOpened, 72)

	f.worker.EnqueueDueFollowUps()
	f.worker.EnqueueDueFollowUps()

	assert.Len(t, f.entries(t), 1, "one entry per (sequence, record) pair")
}

func TestEnqueueSkipsNonMatchingRecords(t *testing.T) {
	f := newFollowUpFixture(t, models.TriggerClicked, 24)

	// record was never clicked
	f.worker.EnqueueDueFollowUps()

	assert.Empty(t, f.entries(t))
}

func TestEnqueueSkipsStaleFollowUps(t *testing.T) {
	f := newFollowUpFixture(t, models.TriggerNotOpened, 24)

	// sent 48h ago, delay 24h: due 24h ago, far past the staleness window
	f.worker.EnqueueDueFollowUps()

	assert.Empty(t, f.entries(t), "follow-ups overdue by more than an hour are dropped")
}

func TestDispatchSendsDueEntry(t *testing.T) {
	f := newFollowUpFixture(t, models.TriggerNotOpened, 24)

	entry := models.FollowUpQueueEntry{
		SequenceID: f.sequence.ID, CampaignContactID: f.record.ID,
		ScheduledAt: time.Now().Add(-time.Minute), Status: models.QueueStatusPending,
	}
	require.NoError(t, f.db.Create(&entry).Error)

	f.worker.DispatchDueFollowUps()

	var reloaded models.FollowUpQueueEntry
	require.NoError(t, f.db.First(&reloaded, entry.ID).Error)
	assert.Equal(t, models.QueueStatusSent, reloaded.Status)
	assert.NotNil(t, reloaded.SentAt)
}

func TestDispatchLeavesFutureEntriesAlone(t *testing.T) {
	f := newFollowUpFixture(t, models.TriggerNotOpened, 24)

	entry := models.FollowUpQueueEntry{
		SequenceID: f.sequence.ID, CampaignContactID: f.record.ID,
		ScheduledAt: time.Now().Add(time.Hour), Status: models.QueueStatusPending,
	}
	require.NoError(t, f.db.Create(&entry).Error)

	f.worker.DispatchDueFollowUps()

	var reloaded models.FollowUpQueueEntry
	require.NoError(t, f.db.First(&reloaded, entry.ID).Error)
	assert.Equal(t, models.QueueStatusPending, reloaded.Status)
}

func TestDispatchCancelsWhenRecipientReplied(t *testing.T) {
	f := newFollowUpFixture(t, models.TriggerNotOpened, 24)

	require.NoError(t, f.db.Model(&models.CampaignContact{}).
		Where("id = ?", f.record.ID).
		Update("status", models.SendStatusReplied).Error)

	entry := models.FollowUpQueueEntry{
		SequenceID: f.sequence.ID, CampaignContactID: f.record.ID,
		ScheduledAt: time.Now().Add(-time.Minute), Status: models.QueueStatusPending,
	}
	require.NoError(t, f.db.Create(&entry).Error)

	f.worker.DispatchDueFollowUps()

	var reloaded models.FollowUpQueueEntry
	require.NoError(t, f.db.First(&reloaded, entry.ID).Error)
	assert.Equal(t, models.QueueStatusFailed, reloaded.Status)
	assert.Contains(t, reloaded.ErrorMessage, "replied")
}

func TestDispatchDefersOnWarmupExhaustion(t *testing.T) {
	f := newFollowUpFixture(t, models.TriggerNotOpened, 24)

	now := time.Now()
	require.NoError(t, f.db.Create(&models.WarmupSchedule{
		UserID: f.user.ID, Domain: "acme.io",
		CurrentDailyLimit: 1, TargetDailyLimit: 10, IncrementPerDay: 5,
		EmailsSentToday: 1, LastSendDate: &now, Status: models.WarmupStatusActive,
	}).Error)

	entry := models.FollowUpQueueEntry{
		SequenceID: f.sequence.ID, CampaignContactID: f.record.ID,
		ScheduledAt: time.Now().Add(-time.Minute), Status: models.QueueStatusPending,
	}
	require.NoError(t, f.db.Create(&entry).Error)

	f.worker.DispatchDueFollowUps()

	var reloaded models.FollowUpQueueEntry
	require.NoError(t, f.db.First(&reloaded, entry.ID).Error)
	assert.Equal(t, models.QueueStatusPending, reloaded.Status,
		"exhausted budget defers the entry to the next tick")
}
