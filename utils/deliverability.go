package utils

import (
	"fmt"
	"net"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/likexian/whois"
)

// DNS blacklists consulted by the deliverability test.
var dnsBlacklists = []string{
	"zen.spamhaus.org",
	"bl.spamcop.net",
}

// Selectors probed for a DKIM record, in order. DKIM discovery is inherently
// best-effort: the real selector is private to the sending setup.
var dkimSelectors = []string{
	"default", "google", "selector1", "selector2", "k1", "s1", "s2", "mail",
}

// DeliverabilityReport is the outcome of the domain health checks for one
// address.
type DeliverabilityReport struct {
	Email  string `json:"email"`
	Domain string `json:"domain"`

	HasSPF       bool   `json:"has_spf"`
	HasDKIM      bool   `json:"has_dkim"`
	DKIMSelector string `json:"dkim_selector,omitempty"`
	HasDMARC     bool   `json:"has_dmarc"`
	HasMX        bool   `json:"has_mx"`

	MXRecords     []string `json:"mx_records,omitempty"`
	Blacklisted   bool     `json:"blacklisted"`
	BlacklistedOn []string `json:"blacklisted_on,omitempty"`

	SpamScore float64 `json:"spam_score"`
	Placement string  `json:"placement"` // inbox, promotions, spam

	WHOIS string `json:"whois,omitempty"`
}

// CheckDeliverability runs the DNS-side health checks for an address's domain
// and scores the result.
func CheckDeliverability(email string) (*DeliverabilityReport, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := checkmail.ValidateFormat(email); err != nil {
		return nil, fmt.Errorf("invalid email format: %w", err)
	}

	domain := ExtractDomain(email)
	report := &DeliverabilityReport{Email: email, Domain: domain}

	// SPF: a TXT record at the domain starting with v=spf1
	if txts, err := net.LookupTXT(domain); err == nil {
		for _, txt := range txts {
			if strings.HasPrefix(strings.TrimSpace(txt), "v=spf1") {
				report.HasSPF = true
				break
			}
		}
	}

	// DMARC: TXT at _dmarc.<domain>
	if txts, err := net.LookupTXT("_dmarc." + domain); err == nil {
		for _, txt := range txts {
			if strings.HasPrefix(strings.TrimSpace(txt), "v=DMARC1") {
				report.HasDMARC = true
				break
			}
		}
	}

	// DKIM: probe common selector names
	for _, selector := range dkimSelectors {
		txts, err := net.LookupTXT(fmt.Sprintf("%s._domainkey.%s", selector, domain))
		if err != nil {
			continue
		}
		for _, txt := range txts {
			if strings.Contains(txt, "v=DKIM1") || strings.Contains(txt, "k=rsa") {
				report.HasDKIM = true
				report.DKIMSelector = selector
				break
			}
		}
		if report.HasDKIM {
			break
		}
	}

	// MX
	if mxs, err := net.LookupMX(domain); err == nil && len(mxs) > 0 {
		report.HasMX = true
		for _, mx := range mxs {
			report.MXRecords = append(report.MXRecords, strings.TrimSuffix(mx.Host, "."))
		}
	}

	report.Blacklisted, report.BlacklistedOn = checkBlacklists(domain)

	// WHOIS is informational only; failures are ignored.
	if info, err := whois.Whois(domain); err == nil {
		report.WHOIS = info
	}

	ScoreDeliverability(report)
	return report, nil
}

// ScoreDeliverability computes the additive 0-5 spam score and the placement
// bucket from the check flags. Pure; split out so the arithmetic is testable
// without DNS.
func ScoreDeliverability(r *DeliverabilityReport) {
	score := 0.0
	if !r.HasSPF {
		score += 1.5
	}
	if !r.HasDKIM {
		score += 1.5
	}
	if !r.HasDMARC {
		score += 1.0
	}
	if !r.HasMX {
		score += 1.0
	}
	if r.Blacklisted {
		score += 2.0
	}
	if score > 5 {
		score = 5
	}
	r.SpamScore = score

	switch {
	case score < 2:
		r.Placement = "inbox"
	case score < 4:
		r.Placement = "promotions"
	default:
		r.Placement = "spam"
	}
}

func checkBlacklists(domain string) (bool, []string) {
	addrs, err := net.LookupHost(domain)
	if err != nil || len(addrs) == 0 {
		return false, nil
	}

	var listedOn []string
	for _, bl := range dnsBlacklists {
		query := reverseIPv4(addrs[0])
		if query == "" {
			continue
		}
		if hosts, err := net.LookupHost(query + "." + bl); err == nil && len(hosts) > 0 {
			listedOn = append(listedOn, bl)
		}
	}

	return len(listedOn) > 0, listedOn
}

func reverseIPv4(addr string) string {
	ip := net.ParseIP(addr)
	if ip == nil {
		return ""
	}
	v4 := ip.To4()
	if v4 == nil {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d.%d", v4[3], v4[2], v4[1], v4[0])
}
