package provider

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// StatusCode is the closed set of provider order states. Anything the
// provider sends that we do not recognize decodes to StatusUnknown with the
// raw value preserved, never to a made-up string.
type StatusCode int

const (
	StatusUnknown StatusCode = iota
	StatusPending
	StatusDelivered
	StatusProcessing
	StatusExpired
	StatusTimedOut
	StatusCancelled
)

// Status is a decoded provider order state.
type Status struct {
	Code StatusCode
	Raw  string // original wire value, kept for unknown codes and logs
}

func (s Status) String() string {
	switch s.Code {
	case StatusPending:
		return "pending"
	case StatusDelivered:
		return "delivered"
	case StatusProcessing:
		return "processing"
	case StatusExpired:
		return "expired"
	case StatusTimedOut:
		return "timeout"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%s)", s.Raw)
	}
}

// Terminal reports whether no further provider-side transition can occur.
func (s Status) Terminal() bool {
	switch s.Code {
	case StatusExpired, StatusTimedOut, StatusCancelled:
		return true
	default:
		return false
	}
}

// TerminalOrderStatus maps a terminal provider status onto the order status
// recorded locally.
func (s Status) TerminalOrderStatus() string {
	switch s.Code {
	case StatusExpired:
		return "cancelled" // provider released the number; locally indistinguishable from a cancel
	case StatusTimedOut:
		return "timeout"
	case StatusCancelled:
		return "cancelled"
	default:
		return ""
	}
}

// DecodeStatus converts the provider's wire representation into a Status.
// The provider interchangeably sends numeric codes and their string forms;
// both are decoded here, once, at the adapter boundary.
func DecodeStatus(raw json.RawMessage) Status {
	var asInt int
	if err := json.Unmarshal(raw, &asInt); err == nil {
		return statusFromCode(asInt, string(raw))
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(asString)); err == nil {
			return statusFromCode(n, asString)
		}
		switch strings.ToLower(strings.TrimSpace(asString)) {
		case "pending":
			return Status{Code: StatusPending, Raw: asString}
		case "success", "delivered":
			return Status{Code: StatusDelivered, Raw: asString}
		case "processing":
			return Status{Code: StatusProcessing, Raw: asString}
		case "expired":
			return Status{Code: StatusExpired, Raw: asString}
		case "timeout":
			return Status{Code: StatusTimedOut, Raw: asString}
		case "cancelled", "canceled":
			return Status{Code: StatusCancelled, Raw: asString}
		default:
			return Status{Code: StatusUnknown, Raw: asString}
		}
	}

	return Status{Code: StatusUnknown, Raw: string(raw)}
}

func statusFromCode(code int, raw string) Status {
	switch code {
	case 1:
		return Status{Code: StatusPending, Raw: raw}
	case 2:
		return Status{Code: StatusDelivered, Raw: raw}
	case 3:
		// SMS dispatched and in flight; content may already be attached.
		return Status{Code: StatusProcessing, Raw: raw}
	case 4:
		return Status{Code: StatusExpired, Raw: raw}
	case 5:
		return Status{Code: StatusTimedOut, Raw: raw}
	case 6:
		return Status{Code: StatusCancelled, Raw: raw}
	default:
		return Status{Code: StatusUnknown, Raw: raw}
	}
}
