package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreDeliverabilityCleanDomain(t *testing.T) {
	r := &DeliverabilityReport{HasSPF: true, HasDKIM: true, HasDMARC: true, HasMX: true}

	ScoreDeliverability(r)

	assert.Equal(t, 0.0, r.SpamScore)
	assert.Equal(t, "inbox", r.Placement)
}

func TestScoreDeliverabilityPartialSetup(t *testing.T) {
	// SPF and MX only: +1.5 DKIM +1.0 DMARC
	r := &DeliverabilityReport{HasSPF: true, HasMX: true}

	ScoreDeliverability(r)

	assert.Equal(t, 2.5, r.SpamScore)
	assert.Equal(t, "promotions", r.Placement)
}

func TestScoreDeliverabilityCapsAtFive(t *testing.T) {
	r := &DeliverabilityReport{Blacklisted: true}

	ScoreDeliverability(r)

	// raw 1.5+1.5+1.0+1.0+2.0 = 7, clamped
	assert.Equal(t, 5.0, r.SpamScore)
	assert.Equal(t, "spam", r.Placement)
}

func TestScoreDeliverabilityBucketBoundaries(t *testing.T) {
	inbox := &DeliverabilityReport{HasSPF: true, HasDKIM: true, HasMX: true} // +1.0
	ScoreDeliverability(inbox)
	assert.Equal(t, "inbox", inbox.Placement)

	promo := &DeliverabilityReport{HasSPF: true, HasDKIM: true} // +2.0
	ScoreDeliverability(promo)
	assert.Equal(t, "promotions", promo.Placement)

	spam := &DeliverabilityReport{HasMX: true} // +4.0
	ScoreDeliverability(spam)
	assert.Equal(t, "spam", spam.Placement)
}

func TestReverseIPv4(t *testing.T) {
	assert.Equal(t, "4.3.2.1", reverseIPv4("1.2.3.4"))
	assert.Equal(t, "", reverseIPv4("not-an-ip"))
	assert.Equal(t, "", reverseIPv4("::1"))
}
