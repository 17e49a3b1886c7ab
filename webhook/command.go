package webhook

import (
	"regexp"
	"strings"
)

// Command is the driver intent parsed from a message body.
type Command string

const (
	// CommandClaim carries a claim token answering a broadcast.
	CommandClaim Command = "claim"
	// CommandAdvance moves the driver's active ride one step forward.
	CommandAdvance Command = "advance"
	// CommandCancel cancels the driver's active ride.
	CommandCancel Command = "cancel"
	// CommandUnknown is anything else; the handler replies with usage.
	CommandUnknown Command = "unknown"
)

// Claim tokens are 32 hex chars (16 random bytes). Matched anywhere in
// the body so drivers can reply around quoted broadcast text.
var tokenPattern = regexp.MustCompile(`\b[0-9a-f]{32}\b`)

// ParseCommand classifies a message body. For CommandClaim the second
// return is the extracted token.
func ParseCommand(body string) (Command, string) {
	if token := tokenPattern.FindString(strings.ToLower(body)); token != "" {
		return CommandClaim, token
	}

	switch strings.TrimSpace(body) {
	case "1":
		return CommandAdvance, ""
	case "0":
		return CommandCancel, ""
	default:
		return CommandUnknown, ""
	}
}
