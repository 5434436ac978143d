package cache

import (
	"fmt"
	"strings"
)

// KeyPrefix namespaces every stored key.
const KeyPrefix = "bugbug"

// keyEscaper escapes the separator so distinct parts never share a key.
var keyEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// Key identifies the schedules of one push.
type Key struct {
	Branch   string
	Revision string
}

// String generates a deterministic store key.
// Format: bugbug:push:<branch>:<revision>:schedules
//
// Colons and percent signs inside the branch or revision are
// percent-encoded, so two keys produce the same string only when both
// parts are equal.
//
// Example:
//
//	bugbug:push:integration/autoland:abcdef123456:schedules
func (k Key) String() string {
	return fmt.Sprintf("%s:push:%s:%s:schedules",
		KeyPrefix, keyEscaper.Replace(k.Branch), keyEscaper.Replace(k.Revision))
}
