// Package redact rewrites sensitive content into a safe form. It has two
// modes: categorical secret sanitization for blocked content, and learning
// redaction that strips identifying specifics while keeping generalizable
// signal for content that is business-sensitive but not secret.
package redact

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/memshield/memshield/internal/models"
)

const (
	// ClientPlaceholder is the stable anonymized label substituted for
	// literal client and company names.
	ClientPlaceholder = "Client A"

	// Token replaces direct contact info. The bracket form is chosen so the
	// placeholder itself never re-triggers client or PII rules.
	Token = "[REDACTED]"
)

// Categorical placeholders keep the shape of a blocked secret visible in
// downstream logs without keeping the secret.
var secretShapes = []struct {
	pattern     *regexp.Regexp
	placeholder string
}{
	{regexp.MustCompile(`\bsk_[A-Za-z0-9_]{16,}\b`), "[REDACTED_STRIPE_KEY]"},
	{regexp.MustCompile(`\bpk_[A-Za-z0-9_]{16,}\b`), "[REDACTED_STRIPE_PUBLIC]"},
	{regexp.MustCompile(`[A-Za-z0-9+/]{40,}={0,2}`), "[REDACTED_BASE64]"},
	{regexp.MustCompile(`\b[A-Fa-f0-9]{32,}\b`), "[REDACTED_HEX]"},
	{regexp.MustCompile(`\b[A-Za-z0-9]{32,}\b`), "[REDACTED_TOKEN]"},
	{regexp.MustCompile(`\b[A-Za-z0-9]{20,}_[A-Za-z0-9]{20,}\b`), "[REDACTED_TOKEN]"},
	{regexp.MustCompile(`(?i)\b(mysql|postgresql|postgres|mongodb|redis)://[^\s]+`), "[REDACTED_CONNECTION_URI]"},
	{regexp.MustCompile(`(?s)-----BEGIN (?:RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----.*?-----END [^-]+-----`), "[REDACTED_PRIVATE_KEY]"},
	{regexp.MustCompile(`(?i)password\s*[:=]\s*[^\s&;]+`), "[REDACTED_PASSWORD]"},
}

// SanitizeSecrets replaces every recognizable secret shape with a categorical
// placeholder. Used on blocked content so the stored warning context retains
// shape information for debugging without retaining the secret itself.
func SanitizeSecrets(content string) string {
	sanitized := content
	for _, shape := range secretShapes {
		sanitized = shape.pattern.ReplaceAllString(sanitized, shape.placeholder)
	}
	return sanitized
}

// Client-type vocabulary. First match wins: a real system might return
// ranked candidates, this one keeps the original single-answer policy.
var clientTypePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(marketing[\s_-]?firm|marketing[\s_-]?agency)`),
	regexp.MustCompile(`(?i)(tech[\s_-]?company|technology[\s_-]?firm)`),
	regexp.MustCompile(`(?i)(consulting[\s_-]?firm|consulting[\s_-]?company)`),
	regexp.MustCompile(`(?i)(start[\s_-]?up|startup)`),
	regexp.MustCompile(`(?i)(enterprise[\s_-]?company|enterprise)`),
	regexp.MustCompile(`(?i)(non[\s_-]?profit|nonprofit)`),
	regexp.MustCompile(`(?i)(e[\s_-]?commerce|ecommerce)`),
	regexp.MustCompile(`(?i)(software[\s_-]?as[\s_-]?a[\s_-]?service|saas)`),
	regexp.MustCompile(`(?i)(financial[\s_-]?technology|fintech)`),
	regexp.MustCompile(`(?i)(health[\s_-]?technology|healthtech)`),
	regexp.MustCompile(`(?i)(education[\s_-]?technology|edtech)`),
	regexp.MustCompile(`(?i)(retail[\s_-]?company|retailer)`),
	regexp.MustCompile(`(?i)(manufacturing[\s_-]?company|manufacturer)`),
	regexp.MustCompile(`(?i)(service[\s_-]?company|service[\s_-]?provider)`),
}

var businessTypePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(b2b|business[\s_-]?to[\s_-]?business)`),
	regexp.MustCompile(`(?i)(b2c|business[\s_-]?to[\s_-]?consumer)`),
	regexp.MustCompile(`(?i)(b2g|business[\s_-]?to[\s_-]?government)`),
	regexp.MustCompile(`(?i)(saas|subscription[\s_-]?based)`),
	regexp.MustCompile(`(?i)(marketplace|platform)`),
	regexp.MustCompile(`(?i)(e[\s_-]?commerce|online[\s_-]?retail)`),
	regexp.MustCompile(`(?i)(consulting|professional[\s_-]?services)`),
	regexp.MustCompile(`(?i)(agency|creative[\s_-]?services)`),
}

// ExtractClientProfile pulls the first matching client-type and business-type
// vocabulary entry out of content. Deterministic for a fixed input.
func ExtractClientProfile(content string) (clientType, businessType string) {
	for _, p := range clientTypePatterns {
		if m := p.FindStringSubmatch(content); m != nil {
			clientType = strings.ToLower(m[1])
			break
		}
	}
	for _, p := range businessTypePatterns {
		if m := p.FindStringSubmatch(content); m != nil {
			businessType = strings.ToLower(m[1])
			break
		}
	}
	return clientType, businessType
}

// Label-adjacent captures. Unmatched labels are simply absent from the map.
var financialExtractors = []struct {
	field   string
	pattern *regexp.Regexp
}{
	{"revenue", regexp.MustCompile(`(?i)(?:revenue|income|sales)[:\s]*\$?(\d(?:[\d,]*\d)?[km]{0,2})`)},
	{"profit", regexp.MustCompile(`(?i)(?:profit|net[\s_-]?income)[:\s]*\$?(\d(?:[\d,]*\d)?[km]{0,2})`)},
	{"budget", regexp.MustCompile(`(?i)(?:budget|spending)[:\s]*\$?(\d(?:[\d,]*\d)?[km]{0,2})`)},
	{"roi", regexp.MustCompile(`(?i)(?:roi|return[\s_-]?on[\s_-]?investment)[:\s]*([\d.]+%?)`)},
}

// ExtractFinancialMetrics pulls labeled numeric fields into a map.
func ExtractFinancialMetrics(content string) map[string]string {
	metrics := make(map[string]string)
	for _, ex := range financialExtractors {
		if m := ex.pattern.FindStringSubmatch(content); m != nil {
			metrics[ex.field] = m[1]
		}
	}
	if len(metrics) == 0 {
		return nil
	}
	return metrics
}

var strategyKeywords = []struct {
	element string
	pattern *regexp.Regexp
}{
	{"business_plan", regexp.MustCompile(`(?i)business[\s_-]?plan`)},
	{"strategy", regexp.MustCompile(`(?i)strateg(y|ic)`)},
	{"roadmap", regexp.MustCompile(`(?i)roadmap`)},
	{"goals", regexp.MustCompile(`(?i)(goal|objective|milestone)`)},
	{"growth", regexp.MustCompile(`(?i)(growth|expansion|scaling)`)},
	{"market", regexp.MustCompile(`(?i)(market[\s_-]?positioning|competitive|competition)`)},
	{"differentiation", regexp.MustCompile(`(?i)(differentiation|positioning)`)},
}

// ExtractStrategyElements returns the matched strategy keyword categories,
// not full sentences, in table order.
func ExtractStrategyElements(content string) []string {
	var elements []string
	for _, kw := range strategyKeywords {
		if kw.pattern.MatchString(content) {
			elements = append(elements, kw.element)
		}
	}
	return elements
}

// Company-name shapes replaced with the stable client placeholder.
var clientNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)client[:\s]+[A-Za-z0-9\s]+?(inc|llc|corp|ltd|company|firm|agency)\b`),
	regexp.MustCompile(`(?i)company[:\s]+[A-Za-z0-9\s]+?(inc|llc|corp|ltd|company|firm|agency)\b`),
	regexp.MustCompile(`(?i)\b[A-Za-z0-9][A-Za-z0-9&\s]{2,60}\s(inc|llc|corp|ltd)\b\.?`),
	regexp.MustCompile(`(?i)client[_-]?name[:\s]+[A-Za-z0-9\s]+`),
	regexp.MustCompile(`(?i)company[_-]?name[:\s]+[A-Za-z0-9\s]+`),
}

// Direct contact info stripped with the generic token.
var contactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
	regexp.MustCompile(`(?i)\b\d{1,5}\s+[A-Za-z0-9\s,.-]+?(Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Way|Place|Pl)\b`),
}

// Scrub replaces client and company names with the anonymized placeholder
// and direct contact info with the generic token. The surrounding text is
// left intact.
func Scrub(content string) string {
	scrubbed := content
	for _, p := range clientNamePatterns {
		scrubbed = p.ReplaceAllString(scrubbed, ClientPlaceholder)
	}
	for _, p := range contactPatterns {
		scrubbed = p.ReplaceAllString(scrubbed, Token)
	}
	return scrubbed
}

// Apply produces the sanitized form of redaction-eligible content: names and
// contact info are scrubbed, and the extracted learning summary is prepended
// so the caller keeps generalizable signal without re-identifiable specifics.
//
// Guarantee: when any learning data exists or any name/contact pattern fires,
// the returned text differs from the input.
func Apply(content string, learning models.LearningData) string {
	redacted := Scrub(content)

	var header []string
	if learning.ClientType != "" {
		header = append(header, fmt.Sprintf("Client Type: %s", learning.ClientType))
	}
	if learning.BusinessType != "" {
		header = append(header, fmt.Sprintf("Business Type: %s", learning.BusinessType))
	}
	if len(learning.FinancialMetrics) > 0 {
		fields := make([]string, 0, len(learning.FinancialMetrics))
		for k := range learning.FinancialMetrics {
			fields = append(fields, k)
		}
		sort.Strings(fields)
		pairs := make([]string, 0, len(fields))
		for _, k := range fields {
			pairs = append(pairs, fmt.Sprintf("%s: %s", k, learning.FinancialMetrics[k]))
		}
		header = append(header, fmt.Sprintf("Financial Metrics (%s): %s", ClientPlaceholder, strings.Join(pairs, ", ")))
	}
	if len(learning.StrategyElements) > 0 {
		header = append(header, fmt.Sprintf("Strategy Elements: %s", strings.Join(learning.StrategyElements, ", ")))
	}

	if len(header) == 0 {
		return redacted
	}
	return strings.Join(header, "\n") + "\n\n" + redacted
}

// headerLine matches exactly the summary lines Apply writes.
var headerLine = regexp.MustCompile(`^(Client Type|Business Type|Financial Metrics \(` + ClientPlaceholder + `\)|Strategy Elements): `)

// SplitHeader separates a learning summary prepended by an earlier Apply from
// the body it describes. Content that does not start with a header block
// returns ("", content) unchanged. Scanners use this so a stored sanitized
// entry is re-scanned on its body alone and the header is never treated as
// fresh sensitive content.
func SplitHeader(content string) (header, body string) {
	rest := content
	var lines []string
	for {
		idx := strings.Index(rest, "\n")
		if idx < 0 {
			return "", content
		}
		line := rest[:idx]
		if line == "" {
			if len(lines) == 0 {
				return "", content
			}
			return strings.Join(lines, "\n"), rest[idx+1:]
		}
		if !headerLine.MatchString(line) {
			return "", content
		}
		lines = append(lines, line)
		rest = rest[idx+1:]
	}
}
