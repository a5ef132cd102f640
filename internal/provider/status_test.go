package provider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeStatus(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want StatusCode
	}{
		{"numeric pending", `1`, StatusPending},
		{"numeric delivered", `2`, StatusDelivered},
		{"numeric processing", `3`, StatusProcessing},
		{"numeric expired", `4`, StatusExpired},
		{"numeric timeout", `5`, StatusTimedOut},
		{"numeric cancelled", `6`, StatusCancelled},
		{"numeric unknown", `42`, StatusUnknown},
		{"numeric string", `"2"`, StatusDelivered},
		{"word pending", `"pending"`, StatusPending},
		{"word success", `"success"`, StatusDelivered},
		{"word with case and space", `" Cancelled "`, StatusCancelled},
		{"american spelling", `"canceled"`, StatusCancelled},
		{"garbage word", `"wat"`, StatusUnknown},
		{"garbage json", `{"a":1}`, StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeStatus(json.RawMessage(tt.raw))
			assert.Equal(t, tt.want, got.Code)
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, Status{Code: StatusPending}.Terminal())
	assert.False(t, Status{Code: StatusDelivered}.Terminal())
	assert.False(t, Status{Code: StatusProcessing}.Terminal())
	assert.False(t, Status{Code: StatusUnknown}.Terminal())
	assert.True(t, Status{Code: StatusExpired}.Terminal())
	assert.True(t, Status{Code: StatusTimedOut}.Terminal())
	assert.True(t, Status{Code: StatusCancelled}.Terminal())
}

func TestTerminalOrderStatus(t *testing.T) {
	assert.Equal(t, "cancelled", Status{Code: StatusExpired}.TerminalOrderStatus())
	assert.Equal(t, "timeout", Status{Code: StatusTimedOut}.TerminalOrderStatus())
	assert.Equal(t, "cancelled", Status{Code: StatusCancelled}.TerminalOrderStatus())
	assert.Equal(t, "", Status{Code: StatusPending}.TerminalOrderStatus())
}

func TestQuoteRoundsUp(t *testing.T) {
	assert.Equal(t, int64(30), Quote(25, 20))
	assert.Equal(t, int64(121), Quote(100, 21))
	assert.Equal(t, int64(13), Quote(10, 25)) // 12.5 rounds up
	assert.Equal(t, int64(25), Quote(25, 0))
	assert.Equal(t, int64(25), Quote(25, -5))
}
