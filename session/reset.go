package session

import "strings"

// resetPhrases is the fixed set of trigger phrases that start a new
// conversation. Matching is against the entire trimmed message body,
// case-insensitively; partial matches never trigger a reset.
var resetPhrases = map[string]struct{}{
	"/new":   {},
	"/reset": {},
	"新会话":    {},
	"重新开始":   {},
	"重置会话":   {},
}

// IsResetCommand reports whether text is an exact reset trigger.
func IsResetCommand(text string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	_, ok := resetPhrases[trimmed]
	return ok
}
