package controller

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"outreachly/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTrackingApp(t *testing.T) (*fiber.App, *gorm.DB, models.CampaignContact) {
	t.Helper()
	db := newTestDB(t)

	user := models.User{Email: "me@acme.io", IsActive: true}
	require.NoError(t, db.Create(&user).Error)
	campaign := models.Campaign{UserID: user.ID, Name: "launch", Status: models.CampaignStatusRunning}
	require.NoError(t, db.Create(&campaign).Error)
	contact := models.Contact{UserID: user.ID, Email: "jane@example.com"}
	require.NoError(t, db.Create(&contact).Error)

	sentAt := time.Now()
	record := models.CampaignContact{
		CampaignID: campaign.ID, ContactID: contact.ID,
		Status: models.SendStatusSent, SentAt: &sentAt,
	}
	require.NoError(t, db.Create(&record).Error)

	app := fiber.New()
	tc := NewTrackingController(db, newQuietLogger())
	app.Get("/track", tc.HandleTracking)

	return app, db, record
}

func TestOpenTrackingServesPixelAndSetsFirstTouch(t *testing.T) {
	app, db, record := newTrackingApp(t)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/track?id=%d&event=open", record.ID), nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "gif")
	assert.Contains(t, resp.Header.Get("Cache-Control"), "no-store")

	var reloaded models.CampaignContact
	require.NoError(t, db.First(&reloaded, record.ID).Error)
	assert.NotNil(t, reloaded.OpenedAt)

	var campaign models.Campaign
	require.NoError(t, db.First(&campaign, record.CampaignID).Error)
	assert.Equal(t, 1, campaign.OpenCount)
}

func TestOpenTrackingIsIdempotentButLogsEveryEvent(t *testing.T) {
	app, db, record := newTrackingApp(t)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/track?id=%d&event=open", record.ID), nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	var campaign models.Campaign
	require.NoError(t, db.First(&campaign, record.CampaignID).Error)
	assert.Equal(t, 1, campaign.OpenCount, "unique-touch counter")

	var events int64
	db.Model(&models.EmailEvent{}).
		Where("campaign_contact_id = ? AND event_type = ?", record.ID, models.EventTypeOpen).
		Count(&events)
	assert.EqualValues(t, 3, events, "the event log is append-only")
}

func TestClickTrackingRedirectsToTarget(t *testing.T) {
	app, db, record := newTrackingApp(t)

	target := "https://example.com/pricing"
	path := fmt.Sprintf("/track?id=%d&event=click&url=%s", record.ID, url.QueryEscape(target))
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, target, resp.Header.Get("Location"))

	var reloaded models.CampaignContact
	require.NoError(t, db.First(&reloaded, record.ID).Error)
	assert.NotNil(t, reloaded.ClickedAt)

	var event models.EmailEvent
	require.NoError(t, db.Where("event_type = ?", models.EventTypeClick).First(&event).Error)
	assert.Equal(t, target, event.TargetURL)
}

func TestTrackingUnknownRecordStillServesPixel(t *testing.T) {
	app, _, _ := newTrackingApp(t)

	req := httptest.NewRequest(http.MethodGet, "/track?id=999999&event=open", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode, "tracking never surfaces errors to the caller")
}

func TestTrackingMissingParamsStillServesPixel(t *testing.T) {
	app, _, _ := newTrackingApp(t)

	req := httptest.NewRequest(http.MethodGet, "/track", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "gif")
}
