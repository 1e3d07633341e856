package message

import (
	"github.com/sirosfoundation/go-ebics/pkg/order"
)

// Root elements of EBICS messages
const (
	RootRequest                = "ebicsRequest"
	RootResponse               = "ebicsResponse"
	RootUnsecuredRequest       = "ebicsUnsecuredRequest"
	RootNoPubKeyDigestsRequest = "ebicsNoPubKeyDigestsRequest"
	RootKeyManagementResponse  = "ebicsKeyManagementResponse"
	RootHEVRequest             = "ebicsHEVRequest"
	RootHEVResponse            = "ebicsHEVResponse"
)

// Phase is the TransactionPhase of a request or response
type Phase string

const (
	PhaseInitialisation Phase = "Initialisation"
	PhaseTransfer       Phase = "Transfer"
	PhaseReceipt        Phase = "Receipt"
)

// Receipt codes of the TransferReceipt element
const (
	ReceiptAcknowledged    = "0"
	ReceiptNotAcknowledged = "1"
)

// securityMedium is the medium code of a subscriber without a smart card
const securityMedium = "0000"

// Request describes one ebicsRequest
type Request struct {
	Order order.Order
	Phase Phase

	// TransactionID is set for Transfer and Receipt phases
	TransactionID string

	// SegmentNumber and LastSegment describe the segment carried or
	// requested; NumSegments is announced in the upload Initialisation
	SegmentNumber int
	NumSegments   int
	LastSegment   bool

	// OrderData is one encrypted order data segment
	OrderData []byte
	// SignatureData is the encrypted UserSignatureData of an upload
	SignatureData []byte
	// TransactionKey is the wrapped transaction key of an upload
	TransactionKey []byte

	// Acknowledged selects the receipt code of a Receipt request
	Acknowledged bool
}

// Response is the parsed form of ebicsResponse and
// ebicsKeyManagementResponse
type Response struct {
	Root string

	// TechnicalCode and TechnicalText come from header/mutable
	TechnicalCode string
	TechnicalText string
	// BusinessCode comes from body/ReturnCode
	BusinessCode string

	Phase         Phase
	TransactionID string
	NumSegments   int
	SegmentNumber int
	LastSegment   bool
	OrderID       string

	// TransactionKey is the wrapped transaction key of a download
	TransactionKey []byte
	// OrderData is one encrypted order data segment
	OrderData []byte

	// TimestampBankParameter is reported by the bank when present
	TimestampBankParameter string
}

// VersionInfo is one entry of an HEV response
type VersionInfo struct {
	// Schema is the ProtocolVersion attribute, e.g. H004
	Schema string
	// Number is the element text, e.g. 02.50
	Number string
}

// HEVResponse lists the protocol versions a bank supports
type HEVResponse struct {
	Code     string
	Text     string
	Versions []VersionInfo
}
