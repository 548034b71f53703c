package checkout

import (
	"regexp"
	"strings"
)

var stateCodePattern = regexp.MustCompile(`^([A-Za-z]{2})\b`)

// LegacyParseCityState pulls city and state out of a free-text address shaped
// like "Rua A, 10 - Centro, Campinas/SP".
//
// Deprecated: callers should send delivery_city and delivery_state. This
// fallback exists for older storefront builds and must not grow new formats.
func LegacyParseCityState(address string) (city, state string, ok bool) {
	idx := strings.LastIndex(address, "/")
	if idx < 0 {
		return "", "", false
	}
	match := stateCodePattern.FindStringSubmatch(strings.TrimSpace(address[idx+1:]))
	if match == nil {
		return "", "", false
	}
	head := address[:idx]
	if cut := strings.LastIndexAny(head, ",-"); cut >= 0 {
		head = head[cut+1:]
	}
	city = strings.TrimSpace(head)
	if city == "" {
		return "", "", false
	}
	return city, strings.ToUpper(match[1]), true
}
