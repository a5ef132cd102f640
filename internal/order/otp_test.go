package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractOTP(t *testing.T) {
	tests := []struct {
		name string
		sms  string
		want string
	}{
		{"six digit code", "Your verification code is 482913", "482913"},
		{"six digits win over four", "Use 1234 or better 482913 to sign in", "482913"},
		{"four digit code", "Your PIN is 4829", "4829"},
		{"five digit code", "Code 48291 expires soon", "48291"},
		{"seven digit code", "Account code 4829135", "4829135"},
		{"eight digit code", "Use 48291357 to verify", "48291357"},
		{"labeled code", "code: 93", "93"},
		{"labeled verification", "Verification: use it now 12", "12"},
		{"digits embedded in word", "ABC123XYZ", "123"},
		{"no digits falls back to raw text", "your code is WOLF", "your code is WOLF"},
		{"raw text is trimmed", "  apple banana  ", "apple banana"},
		{"empty sms", "", ""},
		{"whitespace only", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractOTP(tt.sms))
		})
	}
}
