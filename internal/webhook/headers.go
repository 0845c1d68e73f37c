package webhook

import (
	"fmt"
	"strings"

	"github.com/volkaert/simple-event-broker2/internal/domain"
)

// Header is one extra header configured on a subscription.
type Header struct {
	Key   string
	Value string
}

// ParseHeaders reads the "key:value;key2:value2" format. Empty entries are
// skipped. An entry without a colon or with a blank key is a configuration
// error.
func ParseHeaders(raw string) ([]Header, error) {
	var headers []Header
	for _, entry := range strings.Split(raw, ";") {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		key, value, ok := strings.Cut(entry, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, domain.NewError(domain.KindInternalInconsistency,
				fmt.Sprintf("malformed webhook header entry %q", entry), nil)
		}
		headers = append(headers, Header{Key: key, Value: strings.TrimSpace(value)})
	}
	return headers, nil
}
