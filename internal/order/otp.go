package order

import (
	"regexp"
	"strings"
)

// Extraction patterns tried in order. Six-digit codes dominate in practice,
// so they win over shorter matches that may appear in the same message.
var otpPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(\d{6})\b`),
	regexp.MustCompile(`\b(\d{4})\b`),
	regexp.MustCompile(`\b(\d{5})\b`),
	regexp.MustCompile(`\b(\d{7,8})\b`),
	regexp.MustCompile(`(?i)(?:code|verification|pin)[:\s]+(\d+)`),
	regexp.MustCompile(`(\d+)`),
}

// ExtractOTP pulls a verification code out of an SMS body. When no digit
// sequence is present the trimmed raw text is returned, since some services
// send word codes.
func ExtractOTP(sms string) string {
	sms = strings.TrimSpace(sms)
	if sms == "" {
		return ""
	}
	for _, re := range otpPatterns {
		if m := re.FindStringSubmatch(sms); m != nil {
			return m[1]
		}
	}
	return sms
}
