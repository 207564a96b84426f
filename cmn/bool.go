package cmn

import "strings"

// ParseBool accepts the case-insensitive boolean spellings the config file
// format allows: {1, yes, true} and {0, no, false}.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "yes", "true":
		return true, nil
	case "0", "no", "false":
		return false, nil
	default:
		return false, NewConfigError("invalid boolean value %q", s)
	}
}
