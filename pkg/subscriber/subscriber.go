// Package subscriber identifies the EBICS customer system a key ring
// belongs to.
package subscriber

import (
	"fmt"
	"regexp"
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9,=]{1,35}$`)

// Subscriber addresses requests: the bank host, the customer (partner)
// and the user within the customer
type Subscriber struct {
	HostID    string
	PartnerID string
	UserID    string
	// SystemID is only set when a technical subscriber acts for the user
	SystemID string
	// Product names the client software in the request header
	Product string
	// Language of the product element, defaults to "en"
	Language string
}

// Validate checks the identifiers against the EBICS schema pattern
func (s Subscriber) Validate() error {
	fields := []struct {
		name, value string
		required    bool
	}{
		{"HostID", s.HostID, true},
		{"PartnerID", s.PartnerID, true},
		{"UserID", s.UserID, true},
		{"SystemID", s.SystemID, false},
	}
	for _, f := range fields {
		if f.value == "" {
			if f.required {
				return fmt.Errorf("subscriber: %s is required", f.name)
			}
			continue
		}
		if !idPattern.MatchString(f.value) {
			return fmt.Errorf("subscriber: invalid %s %q", f.name, f.value)
		}
	}
	return nil
}

// ProductLanguage returns the language attribute of the product element
func (s Subscriber) ProductLanguage() string {
	if s.Language == "" {
		return "en"
	}
	return s.Language
}
