package controller

import (
	"encoding/json"
	"log"
	"net/url"
	"strings"
	"time"

	"outreachly/models"
	"outreachly/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type InboundController struct {
	DB      *gorm.DB
	Logger  *log.Logger
	Matcher *utils.ReplyMatcher
}

func NewInboundController(db *gorm.DB, logger *log.Logger, matcher *utils.ReplyMatcher) *InboundController {
	return &InboundController{DB: db, Logger: logger, Matcher: matcher}
}

// HandleInbound ingests inbound-email webhooks. The provider format is
// detected structurally from the payload's top-level fields, not from the
// route or headers. The endpoint is a total function: webhook senders always
// get HTTP 200, whatever happens internally, so provider retry storms cannot
// be triggered from here.
func (ic *InboundController) HandleInbound(c *fiber.Ctx) error {
	payload, err := ic.parsePayload(c)
	if err != nil {
		ic.Logger.Printf("inbound payload unreadable: %v", err)
		ic.recordActivity("unparseable", nil, nil)
		return c.JSON(fiber.Map{"matched": false, "outcome": "unparseable"})
	}

	msg := sniffInboundMessage(payload)
	if msg == nil {
		ic.Logger.Printf("inbound payload matched no known provider shape")
		ic.recordActivity("unrecognized", nil, nil)
		return c.JSON(fiber.Map{"matched": false, "outcome": "unrecognized"})
	}

	result, err := ic.Matcher.Match(msg)
	if err != nil {
		ic.Logger.Printf("inbound matching failed: %v", err)
		ic.recordActivity("error", nil, msg)
		return c.JSON(fiber.Map{"matched": false, "outcome": "error"})
	}

	ic.recordActivity(result.Outcome, result, msg)

	return c.JSON(fiber.Map{
		"matched": result.Matched(),
		"outcome": result.Outcome,
		"result":  result,
	})
}

// parsePayload flattens the request body into one string-keyed map, whether
// it arrived as JSON, multipart form, urlencoded form, or raw text.
func (ic *InboundController) parsePayload(c *fiber.Ctx) (map[string]interface{}, error) {
	contentType := strings.ToLower(c.Get("Content-Type"))
	body := c.Body()

	switch {
	case strings.Contains(contentType, "application/json"):
		var payload map[string]interface{}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case strings.Contains(contentType, "multipart/form-data"):
		form, err := c.MultipartForm()
		if err != nil {
			return nil, err
		}
		payload := make(map[string]interface{}, len(form.Value))
		for key, values := range form.Value {
			if len(values) > 0 {
				payload[key] = values[0]
			}
		}
		return payload, nil

	case strings.Contains(contentType, "application/x-www-form-urlencoded"):
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, err
		}
		payload := make(map[string]interface{}, len(values))
		for key := range values {
			payload[key] = values.Get(key)
		}
		return payload, nil

	default:
		// Raw text: accept JSON without a content type, otherwise treat the
		// whole body as the message text.
		var payload map[string]interface{}
		if err := json.Unmarshal(body, &payload); err == nil {
			return payload, nil
		}
		return map[string]interface{}{"text": string(body)}, nil
	}
}

// sniffInboundMessage applies the provider sniff+normalize pairs in fixed
// priority order. New providers are added as new pairs, existing ones are
// never modified.
func sniffInboundMessage(payload map[string]interface{}) *utils.InboundEmail {
	sniffers := []struct {
		matches   func(map[string]interface{}) bool
		normalize func(map[string]interface{}) *utils.InboundEmail
	}{
		{matchesPostmark, normalizePostmark},
		{matchesMailgun, normalizeMailgun},
		{matchesSendGrid, normalizeSendGrid},
		{matchesGeneric, normalizeGeneric},
	}

	for _, s := range sniffers {
		if s.matches(payload) {
			return s.normalize(payload)
		}
	}
	return nil
}

// ---- Postmark inbound shape ----

func matchesPostmark(p map[string]interface{}) bool {
	_, hasFromFull := p["FromFull"]
	_, hasStream := p["MessageStream"]
	_, hasTextBody := p["TextBody"]
	return hasFromFull || hasStream || hasTextBody
}

func normalizePostmark(p map[string]interface{}) *utils.InboundEmail {
	from := stringField(p, "From")
	if fromFull, ok := p["FromFull"].(map[string]interface{}); ok {
		if email := stringField(fromFull, "Email"); email != "" {
			from = email
		}
	}

	inReplyTo := ""
	if headers, ok := p["Headers"].([]interface{}); ok {
		for _, h := range headers {
			header, ok := h.(map[string]interface{})
			if !ok {
				continue
			}
			if strings.EqualFold(stringField(header, "Name"), "In-Reply-To") {
				inReplyTo = stringField(header, "Value")
			}
		}
	}

	return &utils.InboundEmail{
		From:       from,
		To:         stringField(p, "To"),
		Subject:    stringField(p, "Subject"),
		TextBody:   stringField(p, "TextBody"),
		HTMLBody:   stringField(p, "HtmlBody"),
		MessageID:  stringField(p, "MessageID"),
		InReplyTo:  stripAngleBrackets(inReplyTo),
		ReceivedAt: time.Now(),
		Provider:   "postmark",
	}
}

// ---- Mailgun routes shape ----

func matchesMailgun(p map[string]interface{}) bool {
	_, hasSender := p["sender"]
	_, hasRecipient := p["recipient"]
	_, hasBodyPlain := p["body-plain"]
	return (hasSender && hasRecipient) || hasBodyPlain
}

func normalizeMailgun(p map[string]interface{}) *utils.InboundEmail {
	html := stringField(p, "body-html")
	if html == "" {
		html = stringField(p, "stripped-html")
	}

	return &utils.InboundEmail{
		From:       stringField(p, "sender"),
		To:         stringField(p, "recipient"),
		Subject:    stringField(p, "subject"),
		TextBody:   stringField(p, "body-plain"),
		HTMLBody:   html,
		MessageID:  stripAngleBrackets(stringField(p, "Message-Id")),
		InReplyTo:  stripAngleBrackets(stringField(p, "In-Reply-To")),
		ReceivedAt: time.Now(),
		Provider:   "mailgun",
	}
}

// ---- SendGrid inbound parse shape ----

func matchesSendGrid(p map[string]interface{}) bool {
	_, hasEnvelope := p["envelope"]
	_, hasHeaders := p["headers"]
	return hasEnvelope && hasHeaders
}

func normalizeSendGrid(p map[string]interface{}) *utils.InboundEmail {
	// SendGrid delivers the raw header block as one string.
	rawHeaders := stringField(p, "headers")

	return &utils.InboundEmail{
		From:       stringField(p, "from"),
		To:         stringField(p, "to"),
		Subject:    stringField(p, "subject"),
		TextBody:   stringField(p, "text"),
		HTMLBody:   stringField(p, "html"),
		MessageID:  stripAngleBrackets(headerValue(rawHeaders, "Message-ID")),
		InReplyTo:  stripAngleBrackets(headerValue(rawHeaders, "In-Reply-To")),
		ReceivedAt: time.Now(),
		Provider:   "sendgrid",
	}
}

// ---- Generic fallback shape ----

func matchesGeneric(p map[string]interface{}) bool {
	_, hasFrom := p["from"]
	_, hasText := p["text"]
	return hasFrom || hasText
}

func normalizeGeneric(p map[string]interface{}) *utils.InboundEmail {
	return &utils.InboundEmail{
		From:       stringField(p, "from"),
		To:         stringField(p, "to"),
		Subject:    stringField(p, "subject"),
		TextBody:   stringField(p, "text"),
		HTMLBody:   stringField(p, "html"),
		MessageID:  stripAngleBrackets(stringField(p, "message_id")),
		InReplyTo:  stripAngleBrackets(stringField(p, "in_reply_to")),
		ReceivedAt: time.Now(),
		Provider:   "generic",
	}
}

// recordActivity writes one audit row per inbound delivery, matched or not.
// Unattributable payloads land under user 0 with just the outcome.
func (ic *InboundController) recordActivity(outcome string, result *utils.MatchResult, msg *utils.InboundEmail) {
	activity := models.ActivityLog{
		Action:     "inbound_received",
		EntityType: "inbox_message",
		Metadata:   map[string]interface{}{"outcome": outcome},
	}
	if msg != nil {
		activity.Metadata["provider"] = msg.Provider
		activity.Metadata["from"] = utils.NormalizeAddress(msg.From)
	}
	if result != nil {
		activity.UserID = result.UserID
		if result.InboxMessageID != nil {
			activity.EntityID = *result.InboxMessageID
		}
	}
	if err := ic.DB.Create(&activity).Error; err != nil {
		ic.Logger.Printf("failed to record inbound activity: %v", err)
	}
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func stripAngleBrackets(s string) string {
	return strings.Trim(strings.TrimSpace(s), "<>")
}

// headerValue extracts one header from a raw RFC 5322 header block.
func headerValue(rawHeaders, name string) string {
	for _, line := range strings.Split(rawHeaders, "\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) == 2 && strings.EqualFold(strings.TrimSpace(parts[0]), name) {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}
