package classifier

import (
	"regexp"

	"github.com/memshield/memshield/internal/models"
)

// DefaultRules returns the built-in rule tables for all three families.
func DefaultRules() []*Rule {
	rules := SecretRules()
	rules = append(rules, ClientRules()...)
	rules = append(rules, IndustryRules()...)
	return rules
}

// SecretRules detect hard secrets. Any match forces the classification to
// SECRET or higher and the action is always block: secret-bearing content is
// rejected outright, never redacted-and-kept.
func SecretRules() []*Rule {
	return []*Rule{
		{
			ID:             "secret-api-key-reference",
			Name:           "API Key Reference",
			Family:         models.FamilySecret,
			Pattern:        regexp.MustCompile(`(?i)(api[_-]?key|access[_-]?token|bearer[_-]?token|auth[_-]?token|jwt[_-]?token|oauth[_-]?token|refresh[_-]?token|session[_-]?token|secret[_-]?key|private[_-]?key)`),
			Classification: models.ClassificationSecret,
			Action:         models.ActionBlock,
			Severity:       models.SeverityCritical,
			Description:    "References to API keys and auth tokens",
		},
		{
			ID:             "secret-database-credential",
			Name:           "Database Credential Reference",
			Family:         models.FamilySecret,
			Pattern:        regexp.MustCompile(`(?i)(database[_-]?url|db[_-]?url|connection[_-]?string|mongodb[_-]?uri|postgres(ql)?[_-]?url|mysql[_-]?url|redis[_-]?url|database[_-]?password|db[_-]?password)`),
			Classification: models.ClassificationTopSecret,
			Action:         models.ActionBlock,
			Severity:       models.SeverityCritical,
			Description:    "References to database URLs and passwords",
		},
		{
			ID:             "secret-connection-uri",
			Name:           "Connection URI With Credentials",
			Family:         models.FamilySecret,
			Pattern:        regexp.MustCompile(`(?i)\b(mysql|postgresql|postgres|mongodb|redis)://[^:\s]+:[^@\s]+@`),
			Classification: models.ClassificationTopSecret,
			Action:         models.ActionBlock,
			Severity:       models.SeverityCritical,
			Description:    "Database connection strings embedding a password",
		},
		{
			ID:             "secret-cloud-credential",
			Name:           "Cloud Provider Credential",
			Family:         models.FamilySecret,
			Pattern:        regexp.MustCompile(`(?i)(aws[_-]?access[_-]?key|aws[_-]?secret[_-]?key|azure[_-]?key|gcp[_-]?key|google[_-]?api[_-]?key|firebase[_-]?key|stripe[_-]?key|paypal[_-]?key|twilio[_-]?key|sendgrid[_-]?key)`),
			Classification: models.ClassificationSecret,
			Action:         models.ActionBlock,
			Severity:       models.SeverityCritical,
			Description:    "References to cloud and payment provider keys",
		},
		{
			ID:      "secret-env-reference",
			Name:    "Environment Variable Reference",
			Family:  models.FamilySecret,
			Pattern: regexp.MustCompile(`(?i)(process\.env\.|env\[|getenv\(|\.env\b)`),
			// Env references are blocked even without a value present:
			// the variable name alone leaks deployment internals.
			Classification: models.ClassificationSecret,
			Action:         models.ActionBlock,
			Severity:       models.SeverityHigh,
			Description:    "Raw environment variable references",
		},
		{
			ID:             "secret-key-file",
			Name:           "Key File Path",
			Family:         models.FamilySecret,
			Pattern:        regexp.MustCompile(`(?i)(credentials|keys[_-]?file|secret[_-]?config|config[_-]?secret|\.pem\b|\.key\b|\.p12\b|\.pfx\b)`),
			Classification: models.ClassificationSecret,
			Action:         models.ActionBlock,
			Severity:       models.SeverityHigh,
			Description:    "Paths and names of credential files",
		},
		{
			ID:             "secret-private-key-block",
			Name:           "Private Key Block",
			Family:         models.FamilySecret,
			Pattern:        regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----`),
			Classification: models.ClassificationTopSecret,
			Action:         models.ActionBlock,
			Severity:       models.SeverityCritical,
			Description:    "PEM-encoded private key material",
		},
		{
			ID:     "secret-stripe-key",
			Name:   "Stripe Key Shape",
			Family: models.FamilySecret,
			// pk_ prefixes are "publishable" keys but are blocked anyway:
			// conservative by intent, the prefix alone marks payment config.
			Pattern:        regexp.MustCompile(`\b[sp]k_[A-Za-z0-9_]{16,}\b`),
			Classification: models.ClassificationSecret,
			Action:         models.ActionBlock,
			Severity:       models.SeverityCritical,
			Description:    "Stripe-style prefixed keys (sk_/pk_)",
		},
		{
			ID:             "secret-base64-blob",
			Name:           "Base64 Blob",
			Family:         models.FamilySecret,
			Pattern:        regexp.MustCompile(`[A-Za-z0-9+/]{40,}={0,2}`),
			Classification: models.ClassificationSecret,
			Action:         models.ActionBlock,
			Severity:       models.SeverityHigh,
			Description:    "Long base64 runs that look like encoded secrets",
		},
		{
			ID:             "secret-hex-blob",
			Name:           "Hex Blob",
			Family:         models.FamilySecret,
			Pattern:        regexp.MustCompile(`\b[A-Fa-f0-9]{32,}\b`),
			Classification: models.ClassificationSecret,
			Action:         models.ActionBlock,
			Severity:       models.SeverityHigh,
			Description:    "Long hex runs that look like digests or keys",
		},
		{
			ID:             "secret-long-token",
			Name:           "High-Entropy Token Shape",
			Family:         models.FamilySecret,
			Pattern:        regexp.MustCompile(`\b[A-Za-z0-9]{32,}\b`),
			Classification: models.ClassificationSecret,
			Action:         models.ActionBlock,
			Severity:       models.SeverityMedium,
			Description:    "Long alphanumeric runs that look like tokens",
		},
		{
			ID:             "secret-compound-token",
			Name:           "Compound Token Shape",
			Family:         models.FamilySecret,
			Pattern:        regexp.MustCompile(`\b[A-Za-z0-9]{20,}_[A-Za-z0-9]{20,}\b`),
			Classification: models.ClassificationSecret,
			Action:         models.ActionBlock,
			Severity:       models.SeverityHigh,
			Description:    "Underscore-joined token pairs",
		},
	}
}

// ClientRules detect client and personal data. Matches set the classification
// to at least CONFIDENTIAL and trigger redaction, not blocking.
func ClientRules() []*Rule {
	return []*Rule{
		{
			ID:             "client-identifier",
			Name:           "Client Identifier Reference",
			Family:         models.FamilyClient,
			Pattern:        regexp.MustCompile(`(?i)(client[_-]?id|client[_-]?secret|client[_-]?name|customer[_-]?id|user[_-]?id|account[_-]?id|organization[_-]?id|company[_-]?id|business[_-]?id)`),
			Classification: models.ClassificationConfidential,
			Action:         models.ActionRedact,
			Severity:       models.SeverityMedium,
			Description:    "Client, customer and account identifier labels",
		},
		{
			ID:             "client-government-id",
			Name:           "Government ID Reference",
			Family:         models.FamilyClient,
			Pattern:        regexp.MustCompile(`(?i)(\bssn\b|social[_-]?security|tax[_-]?id|\bein\b|passport|driver[_-]?license)`),
			Classification: models.ClassificationConfidential,
			Action:         models.ActionRedact,
			Severity:       models.SeverityHigh,
			Description:    "SSN, tax ID and passport references",
		},
		{
			ID:             "client-ssn-literal",
			Name:           "SSN Shape",
			Family:         models.FamilyClient,
			Pattern:        regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			Classification: models.ClassificationConfidential,
			Action:         models.ActionRedact,
			Severity:       models.SeverityHigh,
			Description:    "Literal nnn-nn-nnnn social security shapes",
		},
		{
			ID:             "client-financial-account",
			Name:           "Financial Account Reference",
			Family:         models.FamilyClient,
			Pattern:        regexp.MustCompile(`(?i)(credit[_-]?card|bank[_-]?account|routing[_-]?number|account[_-]?number)`),
			Classification: models.ClassificationConfidential,
			Action:         models.ActionRedact,
			Severity:       models.SeverityHigh,
			Description:    "Bank and card account references",
		},
		{
			ID:             "client-contact-label",
			Name:           "Contact Info Reference",
			Family:         models.FamilyClient,
			Pattern:        regexp.MustCompile(`(?i)(phone[_-]?number|email[_-]?address|home[_-]?address|billing[_-]?address|shipping[_-]?address|zip[_-]?code|postal[_-]?code)`),
			Classification: models.ClassificationConfidential,
			Action:         models.ActionRedact,
			Severity:       models.SeverityMedium,
			Description:    "Contact information labels",
		},
		{
			ID:             "client-email-literal",
			Name:           "Email Address",
			Family:         models.FamilyClient,
			Pattern:        regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
			Classification: models.ClassificationConfidential,
			Action:         models.ActionRedact,
			Severity:       models.SeverityMedium,
			Description:    "Literal email addresses",
		},
		{
			ID:             "client-company-name",
			Name:           "Company Name Shape",
			Family:         models.FamilyClient,
			Pattern:        regexp.MustCompile(`(?i)\b[a-z0-9][a-z0-9&.\s]{2,60}\b(inc|llc|corp|ltd|company|firm|agency)\b`),
			Classification: models.ClassificationConfidential,
			Action:         models.ActionRedact,
			Severity:       models.SeverityMedium,
			Description:    "Company names with a legal-entity suffix",
		},
	}
}

// IndustryRules detect business-sensitive content: financial metrics,
// strategy language, IP and legal language. Matches trigger redaction with
// learning-data extraction, never blocking - an explicit design choice
// favoring knowledge retention over blanket rejection.
func IndustryRules() []*Rule {
	return []*Rule{
		{
			ID:             "industry-financial-metric",
			Name:           "Financial Metric",
			Family:         models.FamilyIndustry,
			Topic:          models.TopicFinancial,
			Pattern:        regexp.MustCompile(`(?i)(revenue|income|sales|earnings|profit|budget|spending|expenses|cost[_-]?center|balance[_-]?sheet|cash[_-]?flow|\broi\b|\bkpi\b)`),
			Classification: models.ClassificationConfidential,
			Action:         models.ActionRedact,
			Severity:       models.SeverityMedium,
			Description:    "Financial metric vocabulary",
		},
		{
			ID:             "industry-dollar-amount",
			Name:           "Dollar Amount",
			Family:         models.FamilyIndustry,
			Topic:          models.TopicFinancial,
			Pattern:        regexp.MustCompile(`\$[\d,]+`),
			Classification: models.ClassificationConfidential,
			Action:         models.ActionRedact,
			Severity:       models.SeverityLow,
			Description:    "Literal dollar amounts",
		},
		{
			ID:             "industry-strategy-language",
			Name:           "Strategy Language",
			Family:         models.FamilyIndustry,
			Topic:          models.TopicStrategy,
			Pattern:        regexp.MustCompile(`(?i)(business[_-]?plan|strategic[_-]?plan|strategy|strategic|roadmap|milestone|forecast|projection|market[_-]?positioning|competitive|growth|expansion|scaling)`),
			Classification: models.ClassificationConfidential,
			Action:         models.ActionRedact,
			Severity:       models.SeverityMedium,
			Description:    "Business strategy vocabulary",
		},
		{
			ID:             "industry-ip-language",
			Name:           "Intellectual Property Language",
			Family:         models.FamilyIndustry,
			Topic:          models.TopicIntellectualProperty,
			Pattern:        regexp.MustCompile(`(?i)(patent|trademark|copyright|proprietary|trade[_-]?secret)`),
			Classification: models.ClassificationConfidential,
			Action:         models.ActionRedact,
			Severity:       models.SeverityMedium,
			Description:    "IP vocabulary",
		},
		{
			ID:             "industry-legal-language",
			Name:           "Legal Language",
			Family:         models.FamilyIndustry,
			Topic:          models.TopicLegal,
			Pattern:        regexp.MustCompile(`(?i)(\bnda\b|non[_-]?disclosure|litigation|lawsuit|settlement|terms[_-]?of[_-]?service|privacy[_-]?policy)`),
			Classification: models.ClassificationConfidential,
			Action:         models.ActionRedact,
			Severity:       models.SeverityMedium,
			Description:    "Legal document vocabulary",
		},
	}
}
