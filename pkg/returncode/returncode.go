// Package returncode maps EBICS technical and business return codes to
// typed errors.
//
// Return codes are six-digit strings. Codes starting with "00" report
// success, "01" and "03" report warnings and every other prefix reports an
// error. [Map] is a pure function: the same code always yields an error of
// the same [Kind].
package returncode

import (
	"errors"
	"fmt"
	"strings"
)

// Severity classifies a return code
type Severity int

const (
	SeverityOK Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "ok"
	case SeverityWarning:
		return "warning"
	default:
		return "error"
	}
}

// Kind is the error taxonomy exposed to callers
type Kind string

const (
	KindKeyRingState       Kind = "keyring_state"
	KindAuthentication     Kind = "authentication"
	KindTransport          Kind = "transport"
	KindProtocol           Kind = "protocol"
	KindBusiness           Kind = "business"
	KindNoDataAvailable    Kind = "no_data_available"
	KindUnsupportedVersion Kind = "unsupported_version"
)

// Well-known return codes
const (
	OK                      = "000000"
	DownloadPostprocessDone = "011000"
	NoDownloadDataAvailable = "090005"
	InvalidUserOrUserState  = "091002"
	TxUnknownTxID           = "091101"
	TxAbort                 = "091102"
)

// Entry describes a known return code
type Entry struct {
	Code   string
	Symbol string
	Kind   Kind
}

var table = map[string]Entry{}

func register(kind Kind, pairs ...string) {
	for i := 0; i+1 < len(pairs); i += 2 {
		table[pairs[i]] = Entry{Code: pairs[i], Symbol: pairs[i+1], Kind: kind}
	}
}

func init() {
	register(KindProtocol,
		"000000", "EBICS_OK",
		"011000", "EBICS_DOWNLOAD_POSTPROCESS_DONE",
		"011001", "EBICS_DOWNLOAD_POSTPROCESS_SKIPPED",
		"011101", "EBICS_TX_SEGMENT_NUMBER_UNDERRUN",
		"031001", "EBICS_ORDER_PARAMS_IGNORED",
		"061002", "EBICS_INVALID_REQUEST",
		"061099", "EBICS_INTERNAL_ERROR",
		"061101", "EBICS_TX_RECOVERY_SYNC",
		"091010", "EBICS_INVALID_XML",
		"091101", "EBICS_TX_UNKNOWN_TXID",
		"091102", "EBICS_TX_ABORT",
		"091103", "EBICS_TX_MESSAGE_REPLAY",
		"091104", "EBICS_TX_SEGMENT_NUMBER_EXCEEDED",
		"091105", "EBICS_RECOVERY_NOT_SUPPORTED",
		"091009", "EBICS_SEGMENT_SIZE_EXCEEDED",
		"091011", "EBICS_INVALID_HOST_ID",
		"091112", "EBICS_INVALID_ORDER_PARAMS",
		"091113", "EBICS_INVALID_REQUEST_CONTENT",
		"091117", "EBICS_MAX_ORDER_DATA_SIZE_EXCEEDED",
		"091118", "EBICS_MAX_SEGMENTS_EXCEEDED",
		"091119", "EBICS_MAX_TRANSACTIONS_EXCEEDED",
		"091121", "EBICS_INCOMPATIBLE_ORDER_ATTRIBUTE",
	)
	register(KindAuthentication,
		"061001", "EBICS_AUTHENTICATION_FAILED",
		"090003", "EBICS_AUTHORISATION_ORDER_TYPE_FAILED",
		"091008", "EBICS_BANK_PUBKEY_UPDATE_REQUIRED",
		"091301", "EBICS_SIGNATURE_VERIFICATION_FAILED",
		"091302", "EBICS_ACCOUNT_AUTHORISATION_FAILED",
		"091303", "EBICS_AMOUNT_CHECK_FAILED",
		"091304", "EBICS_SIGNER_UNKNOWN",
		"091305", "EBICS_INVALID_SIGNER_STATE",
		"091306", "EBICS_DUPLICATE_SIGNATURE",
	)
	register(KindKeyRingState,
		"091002", "EBICS_INVALID_USER_OR_USER_STATE",
		"091003", "EBICS_USER_UNKNOWN",
		"091004", "EBICS_INVALID_USER_STATE",
		"091005", "EBICS_INVALID_ORDER_TYPE",
		"091006", "EBICS_UNSUPPORTED_ORDER_TYPE",
		"091007", "EBICS_DISTRIBUTED_SIGNATURE_AUTHORISATION_FAILED",
		"091201", "EBICS_KEYMGMT_UNSUPPORTED_VERSION_SIGNATURE",
		"091202", "EBICS_KEYMGMT_UNSUPPORTED_VERSION_AUTHENTICATION",
		"091203", "EBICS_KEYMGMT_UNSUPPORTED_VERSION_ENCRYPTION",
		"091204", "EBICS_KEYMGMT_KEYLENGTH_ERROR_SIGNATURE",
		"091205", "EBICS_KEYMGMT_KEYLENGTH_ERROR_AUTHENTICATION",
		"091206", "EBICS_KEYMGMT_KEYLENGTH_ERROR_ENCRYPTION",
		"091207", "EBICS_KEYMGMT_NO_X509_SUPPORT",
		"091208", "EBICS_X509_CERTIFICATE_EXPIRED",
		"091209", "EBICS_X509_CERTIFICATE_NOT_VALID_YET",
		"091210", "EBICS_X509_WRONG_KEY_USAGE",
		"091211", "EBICS_X509_WRONG_ALGORITHM",
		"091212", "EBICS_X509_INVALID_THUMBPRINT",
		"091213", "EBICS_X509_CTL_INVALID",
		"091214", "EBICS_X509_UNKNOWN_CERTIFICATE_AUTHORITY",
		"091215", "EBICS_X509_INVALID_POLICY",
		"091216", "EBICS_X509_INVALID_BASIC_CONSTRAINTS",
		"091217", "EBICS_ONLY_X509_SUPPORT",
		"091218", "EBICS_KEYMGMT_DUPLICATE_KEY",
		"091219", "EBICS_CERTIFICATES_VALIDATION_ERROR",
		"091221", "EBICS_SIGNATURE_VERIFICATION_FAILED_KEYMGMT",
	)
	register(KindBusiness,
		"090004", "EBICS_INVALID_ORDER_DATA_FORMAT",
		"090006", "EBICS_UNSUPPORTED_REQUEST_FOR_ORDER_INSTANCE",
		"091001", "EBICS_DOWNLOAD_SIGNED_ONLY",
		"091114", "EBICS_INVALID_ORDER_IDENTIFIER",
		"091115", "EBICS_ORDERID_ALREADY_EXISTS",
		"091116", "EBICS_ORDERID_UNKNOWN",
		"091120", "EBICS_PARTNER_ID_MISMATCH",
	)
	register(KindNoDataAvailable,
		"090005", "EBICS_NO_DOWNLOAD_DATA_AVAILABLE",
	)
}

// Lookup returns the table entry of a code
func Lookup(code string) (Entry, bool) {
	e, ok := table[normalize(code)]
	return e, ok
}

// Classify returns the severity of a code by its prefix
func Classify(code string) Severity {
	code = normalize(code)
	switch {
	case strings.HasPrefix(code, "00"):
		return SeverityOK
	case strings.HasPrefix(code, "01"), strings.HasPrefix(code, "03"):
		return SeverityWarning
	default:
		return SeverityError
	}
}

// IsOK reports whether the code does not indicate an error
func IsOK(code string) bool {
	return Classify(code) != SeverityError
}

// IsTransactionDiscarded reports whether the bank has dropped the transaction
func IsTransactionDiscarded(code string) bool {
	code = normalize(code)
	return code == TxUnknownTxID || code == TxAbort
}

// Map converts a return code into an error. It returns nil for codes that
// do not indicate an error. Unknown error codes map to KindProtocol.
func Map(code, text string) error {
	code = normalize(code)
	if IsOK(code) {
		return nil
	}
	e, ok := table[code]
	if !ok {
		e = Entry{Code: code, Symbol: "EBICS_UNKNOWN_RETURN_CODE", Kind: KindProtocol}
	}
	return &Error{Kind: e.Kind, Code: code, Symbol: e.Symbol, Text: strings.TrimSpace(text)}
}

// normalize left-pads numeric codes that lost their leading zeros
func normalize(code string) string {
	code = strings.TrimSpace(code)
	if code != "" && len(code) < 6 {
		code = strings.Repeat("0", 6-len(code)) + code
	}
	return code
}

// Error is returned for every failure classified by the engine
type Error struct {
	Kind   Kind
	Code   string
	Symbol string
	Text   string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Code != "" {
		fmt.Fprintf(&b, " %s", e.Code)
	}
	if e.Symbol != "" {
		fmt.Fprintf(&b, " %s", e.Symbol)
	}
	if e.Text != "" {
		fmt.Fprintf(&b, ": %s", e.Text)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind and code, so sentinels such as
// ErrUserAlreadyActive can be used with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// ErrUserAlreadyActive is returned when INI or HIA is attempted for keys
// that were already submitted
var ErrUserAlreadyActive = &Error{
	Kind:   KindKeyRingState,
	Code:   InvalidUserOrUserState,
	Symbol: "EBICS_INVALID_USER_OR_USER_STATE",
	Text:   "user already active",
}

// ErrNoDataAvailable is returned when a download order has nothing to deliver
var ErrNoDataAvailable = &Error{
	Kind:   KindNoDataAvailable,
	Code:   NoDownloadDataAvailable,
	Symbol: "EBICS_NO_DOWNLOAD_DATA_AVAILABLE",
}

// New returns an error of the given kind that carries no return code
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Text: fmt.Sprintf(format, args...)}
}

// Wrap returns an error of the given kind wrapping err
func Wrap(kind Kind, err error, text string) *Error {
	return &Error{Kind: kind, Text: text, Err: err}
}

// KindOf returns the kind of err, or the empty kind when err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is an *Error of the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
