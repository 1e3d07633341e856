// Package version describes the EBICS protocol versions supported by the
// engine and the per-version capabilities the request builder depends on.
package version

import (
	"fmt"
	"strings"
)

// Version identifies an EBICS protocol version
type Version int

const (
	// V24 is EBICS 2.4 (schema H003)
	V24 Version = iota + 1
	// V25 is EBICS 2.5 (schema H004)
	V25
	// V30 is EBICS 3.0 (schema H005)
	V30
)

// Namespace and algorithm identifiers shared by all versions
const (
	NamespaceDSig = "http://www.w3.org/2000/09/xmldsig#"
	NamespaceHEV  = "http://www.ebics.org/H000"
	NamespaceS001 = "http://www.ebics.org/S001"
	NamespaceS002 = "http://www.ebics.org/S002"
)

// Profile lists the version-specific identifiers and capabilities
type Profile struct {
	// Name is the schema name announced by HEV (H003, H004, H005)
	Name string
	// Protocol is the dotted protocol version (2.4, 2.5, 3.0)
	Protocol string
	// Revision is the value of the Revision attribute on every request
	Revision string
	// Namespace is the urn of the request/response schema
	Namespace string
	// SignatureNamespace is the namespace of INI and UserSignatureData documents
	SignatureNamespace string

	SignatureVersion      string
	AuthenticationVersion string
	EncryptionVersion     string

	// UsesCertificates is set when keys are exchanged as X.509 certificates only
	UsesCertificates bool
	// UsesBTF is set when orders are addressed by BTF service rather than order type
	UsesBTF bool
	// UsesOrderAttribute is set when OrderDetails carries an OrderAttribute
	UsesOrderAttribute bool
}

var profiles = map[Version]Profile{
	V24: {
		Name:                  "H003",
		Protocol:              "2.4",
		Revision:              "1",
		Namespace:             "http://www.ebics.org/H003",
		SignatureNamespace:    NamespaceS001,
		SignatureVersion:      "A005",
		AuthenticationVersion: "X002",
		EncryptionVersion:     "E002",
		UsesOrderAttribute:    true,
	},
	V25: {
		Name:                  "H004",
		Protocol:              "2.5",
		Revision:              "1",
		Namespace:             "urn:org:ebics:H004",
		SignatureNamespace:    NamespaceS001,
		SignatureVersion:      "A005",
		AuthenticationVersion: "X002",
		EncryptionVersion:     "E002",
		UsesOrderAttribute:    true,
	},
	V30: {
		Name:                  "H005",
		Protocol:              "3.0",
		Revision:              "1",
		Namespace:             "urn:org:ebics:H005",
		SignatureNamespace:    NamespaceS002,
		SignatureVersion:      "A006",
		AuthenticationVersion: "X002",
		EncryptionVersion:     "E002",
		UsesCertificates:      true,
		UsesBTF:               true,
	},
}

// Profile returns the capability profile of the version
func (v Version) Profile() Profile {
	return profiles[v]
}

// Valid reports whether v is a known version
func (v Version) Valid() bool {
	_, ok := profiles[v]
	return ok
}

// String returns the dotted protocol version
func (v Version) String() string {
	if p, ok := profiles[v]; ok {
		return p.Protocol
	}
	return fmt.Sprintf("Version(%d)", int(v))
}

// Parse accepts either the dotted protocol version ("2.5") or the schema
// name ("H004")
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	for v, p := range profiles {
		if strings.EqualFold(s, p.Protocol) || strings.EqualFold(s, p.Name) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown EBICS version %q", s)
}

// All returns the supported versions, oldest first
func All() []Version {
	return []Version{V24, V25, V30}
}
