// Package order lists the EBICS order types the engine can run and how each
// of them is addressed in every protocol version.
package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirosfoundation/go-ebics/pkg/returncode"
	"github.com/sirosfoundation/go-ebics/pkg/version"
)

// Direction tells which side produces the order data
type Direction int

const (
	// KeyManagement orders run outside of the transaction state machine
	KeyManagement Direction = iota
	Download
	Upload
)

func (d Direction) String() string {
	switch d {
	case Download:
		return "download"
	case Upload:
		return "upload"
	default:
		return "key-management"
	}
}

// Order attributes of EBICS 2.x requests
const (
	AttributeDZNNN = "DZNNN"
	AttributeDZHNN = "DZHNN"
	AttributeOZHNN = "OZHNN"
	AttributeUZHNN = "UZHNN"
)

// Service is the EBICS 3.0 business transaction format descriptor
type Service struct {
	Name       string
	Scope      string
	Option     string
	Container  string
	MsgName    string
	MsgVersion string
}

// Spec describes an order type
type Spec struct {
	Type      string
	Direction Direction
	// Service addresses the order in EBICS 3.0; nil for administrative orders
	Service *Service
	// Unsupported lists versions that refuse the order type
	Unsupported []version.Version
}

// SupportedBy reports whether the order type can be sent in version v
func (s Spec) SupportedBy(v version.Version) bool {
	for _, u := range s.Unsupported {
		if u == v {
			return false
		}
	}
	return true
}

// Attribute returns the EBICS 2.x OrderAttribute
func (s Spec) Attribute(withES bool) string {
	switch {
	case s.Type == "INI" || s.Type == "HIA":
		return AttributeDZNNN
	case s.Direction == Upload && withES:
		return AttributeOZHNN
	default:
		return AttributeDZHNN
	}
}

// AdminOrderType returns the EBICS 3.0 AdminOrderType of the order
func (s Spec) AdminOrderType() string {
	if s.Service == nil {
		return s.Type
	}
	if s.Direction == Upload {
		return "BTU"
	}
	return "BTD"
}

var v24 = []version.Version{version.V24}

var catalog = map[string]Spec{
	"HEV": {Type: "HEV", Direction: KeyManagement},
	"INI": {Type: "INI", Direction: KeyManagement},
	"HIA": {Type: "HIA", Direction: KeyManagement},
	"HPB": {Type: "HPB", Direction: KeyManagement},

	"HPD": {Type: "HPD", Direction: Download},
	"HKD": {Type: "HKD", Direction: Download},
	"HTD": {Type: "HTD", Direction: Download},
	"HAA": {Type: "HAA", Direction: Download},
	"HAC": {Type: "HAC", Direction: Download},
	"PTK": {Type: "PTK", Direction: Download},
	"FDL": {Type: "FDL", Direction: Download},
	"BKA": {Type: "BKA", Direction: Download},
	"STA": {Type: "STA", Direction: Download, Unsupported: v24,
		Service: &Service{Name: "EOP", MsgName: "mt940"}},
	"VMK": {Type: "VMK", Direction: Download, Unsupported: v24,
		Service: &Service{Name: "STM", MsgName: "mt942"}},
	"C52": {Type: "C52", Direction: Download, Unsupported: v24,
		Service: &Service{Name: "STM", MsgName: "camt.052"}},
	"C53": {Type: "C53", Direction: Download, Unsupported: v24,
		Service: &Service{Name: "EOP", MsgName: "camt.053"}},
	"C54": {Type: "C54", Direction: Download, Unsupported: v24,
		Service: &Service{Name: "REP", MsgName: "camt.054"}},
	"Z52": {Type: "Z52", Direction: Download, Unsupported: v24,
		Service: &Service{Name: "STM", Scope: "CH", Container: "ZIP", MsgName: "camt.052", MsgVersion: "04"}},
	"Z53": {Type: "Z53", Direction: Download, Unsupported: v24,
		Service: &Service{Name: "EOP", Scope: "CH", Container: "ZIP", MsgName: "camt.053", MsgVersion: "04"}},
	"Z54": {Type: "Z54", Direction: Download, Unsupported: v24,
		Service: &Service{Name: "REP", Scope: "CH", Container: "ZIP", MsgName: "camt.054", MsgVersion: "04"}},
	"ZSR": {Type: "ZSR", Direction: Download, Unsupported: v24,
		Service: &Service{Name: "PSR", Scope: "CH", Container: "ZIP", MsgName: "pain.002", MsgVersion: "10"}},
	"XEK": {Type: "XEK", Direction: Download, Unsupported: v24,
		Service: &Service{Name: "EOP", Scope: "AT", MsgName: "pdf"}},

	"FUL": {Type: "FUL", Direction: Upload},
	"CCT": {Type: "CCT", Direction: Upload, Unsupported: v24,
		Service: &Service{Name: "SCT", MsgName: "pain.001"}},
	"CDD": {Type: "CDD", Direction: Upload, Unsupported: v24,
		Service: &Service{Name: "SDD", Option: "COR", MsgName: "pain.008"}},
	"CDB": {Type: "CDB", Direction: Upload, Unsupported: v24,
		Service: &Service{Name: "SDD", Option: "B2B", MsgName: "pain.008"}},
	"CIP": {Type: "CIP", Direction: Upload, Unsupported: v24,
		Service: &Service{Name: "SCI", MsgName: "pain.001"}},
	"XE2": {Type: "XE2", Direction: Upload, Unsupported: v24,
		Service: &Service{Name: "MCT", Scope: "CH", MsgName: "pain.001", MsgVersion: "09"}},
	"XE3": {Type: "XE3", Direction: Upload, Unsupported: v24,
		Service: &Service{Name: "SDD", Scope: "CH", MsgName: "pain.008"}},
	"YCT": {Type: "YCT", Direction: Upload, Unsupported: v24,
		Service: &Service{Name: "MCT", Scope: "BIL", MsgName: "pain.001"}},
}

// Lookup returns the spec of an order type. Unknown types and types the
// version refuses fail with a KindUnsupportedVersion error.
func Lookup(v version.Version, orderType string) (Spec, error) {
	spec, ok := catalog[strings.ToUpper(orderType)]
	if !ok {
		return Spec{}, returncode.New(returncode.KindUnsupportedVersion,
			"order type %s is not supported", orderType)
	}
	if !spec.SupportedBy(v) {
		return Spec{}, returncode.New(returncode.KindUnsupportedVersion,
			"order type %s is not implemented for EBICS %s", spec.Type, v)
	}
	return spec, nil
}

// Types returns every known order type of the given direction
func Types(d Direction) []string {
	var out []string
	for t, s := range catalog {
		if s.Direction == d {
			out = append(out, t)
		}
	}
	return out
}

// DateRange restricts a download to a period
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Validate checks the range is well formed
func (r *DateRange) Validate() error {
	if r == nil {
		return nil
	}
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("date range requires both start and end")
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("date range end %s is before start %s",
			r.End.Format(time.DateOnly), r.Start.Format(time.DateOnly))
	}
	return nil
}

// Order is a request to run one order type
type Order struct {
	Type string
	// DateRange selects the period of statement downloads
	DateRange *DateRange
	// FileFormat and CountryCode address FDL and FUL orders
	FileFormat  string
	CountryCode string
	// WithES requests electronic signature processing for FUL uploads
	WithES bool
	// Service overrides the catalogue descriptor for EBICS 3.0
	Service *Service
}

// Validate checks the order parameters independently of the version
func (o Order) Validate() error {
	if o.Type == "" {
		return fmt.Errorf("order type is required")
	}
	if err := o.DateRange.Validate(); err != nil {
		return err
	}
	t := strings.ToUpper(o.Type)
	if (t == "FDL" || t == "FUL") && o.FileFormat == "" && o.Service == nil {
		return fmt.Errorf("order type %s requires a file format", t)
	}
	return nil
}
