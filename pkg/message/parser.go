package message

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-ebics/pkg/codec"
	"github.com/sirosfoundation/go-ebics/pkg/compression"
	"github.com/sirosfoundation/go-ebics/pkg/keyring"
	"github.com/sirosfoundation/go-ebics/pkg/returncode"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/version"
)

// ErrMalformedResponse is wrapped by every error caused by a response that
// cannot be read as EBICS XML
var ErrMalformedResponse = errors.New("malformed response")

// Parser reads bank responses for one key ring
type Parser struct {
	ring       *keyring.KeyRing
	compressor *compression.Compressor
}

// NewParser creates a response parser
func NewParser(ring *keyring.KeyRing) *Parser {
	return &Parser{
		ring:       ring,
		compressor: compression.NewCompressor(),
	}
}

func malformed(format string, args ...any) error {
	return returncode.Wrap(returncode.KindProtocol,
		fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...)), "")
}

func readDocument(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, malformed("%v", err)
	}
	if doc.Root() == nil {
		return nil, malformed("empty document")
	}
	return doc, nil
}

// Parse reads an ebicsResponse or ebicsKeyManagementResponse. Once the bank
// authentication key is known, an ebicsResponse must carry a valid
// AuthSignature.
func (p *Parser) Parse(data []byte) (*Response, error) {
	doc, err := readDocument(data)
	if err != nil {
		return nil, err
	}
	root := doc.Root()
	if root.Tag != RootResponse && root.Tag != RootKeyManagementResponse {
		return nil, malformed("unexpected root element %s", root.Tag)
	}

	if root.Tag == RootResponse {
		if bank := p.ring.BankAuthentication(); bank != nil {
			pub, err := bank.PublicKey()
			if err != nil {
				return nil, returncode.Wrap(returncode.KindAuthentication, err, "bank authentication key unusable")
			}
			if err := VerifyDocument(doc, pub); err != nil {
				return nil, returncode.Wrap(returncode.KindAuthentication, err, "response signature invalid")
			}
		}
	}

	resp := &Response{
		Root:          root.Tag,
		TechnicalCode: text(root, "header/mutable/ReturnCode"),
		TechnicalText: text(root, "header/mutable/ReportText"),
		BusinessCode:  text(root, "body/ReturnCode"),
		Phase:         Phase(text(root, "header/mutable/TransactionPhase")),
		TransactionID: text(root, "header/static/TransactionID"),
		OrderID:       text(root, "header/mutable/OrderID"),

		TimestampBankParameter: text(root, "body/TimestampBankParameter"),
	}
	if resp.TechnicalCode == "" {
		return nil, malformed("missing technical return code")
	}

	if n := text(root, "header/static/NumSegments"); n != "" {
		if resp.NumSegments, err = strconv.Atoi(n); err != nil {
			return nil, malformed("NumSegments %q", n)
		}
	}
	if seg := root.FindElement("header/mutable/SegmentNumber"); seg != nil {
		if resp.SegmentNumber, err = strconv.Atoi(strings.TrimSpace(seg.Text())); err != nil {
			return nil, malformed("SegmentNumber %q", seg.Text())
		}
		resp.LastSegment = seg.SelectAttrValue("lastSegment", "false") == "true"
	}

	if key := text(root, "body/DataTransfer/DataEncryptionInfo/TransactionKey"); key != "" {
		if resp.TransactionKey, err = codec.DecodeBase64(key); err != nil {
			return nil, malformed("TransactionKey: %v", err)
		}
	}
	if od := text(root, "body/DataTransfer/OrderData"); od != "" {
		if resp.OrderData, err = codec.DecodeBase64(od); err != nil {
			return nil, malformed("OrderData: %v", err)
		}
	}
	return resp, nil
}

// Verify checks the AuthSignature of a raw response against the bank
// authentication key. It fails when the bank key is not yet known.
func (p *Parser) Verify(data []byte) error {
	bank := p.ring.BankAuthentication()
	if bank == nil {
		return returncode.New(returncode.KindKeyRingState, "bank authentication key not available")
	}
	pub, err := bank.PublicKey()
	if err != nil {
		return returncode.Wrap(returncode.KindAuthentication, err, "bank authentication key unusable")
	}
	doc, err := readDocument(data)
	if err != nil {
		return err
	}
	if err := VerifyDocument(doc, pub); err != nil {
		return returncode.Wrap(returncode.KindAuthentication, err, "response signature invalid")
	}
	return nil
}

func text(root *etree.Element, path string) string {
	el := root.FindElement(path)
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text())
}

// Err classifies the return codes of the response. The technical code takes
// precedence over the business code.
func (r *Response) Err() error {
	if err := returncode.Map(r.TechnicalCode, r.TechnicalText); err != nil {
		return err
	}
	if r.BusinessCode == "" {
		return nil
	}
	return returncode.Map(r.BusinessCode, r.TechnicalText)
}

// DecryptOrderData unwraps the transaction key with the subscriber's
// encryption key, joins the segments in order, decrypts and decompresses
// them.
func (p *Parser) DecryptOrderData(wrappedKey []byte, segments [][]byte) ([]byte, error) {
	key, err := p.ring.PrivateKey(keyring.KeyEncryption)
	if err != nil {
		return nil, err
	}
	transactionKey, err := security.UnwrapTransactionKey(key, wrappedKey)
	if err != nil {
		return nil, returncode.Wrap(returncode.KindAuthentication, err, "transaction key")
	}
	plain, err := security.DecryptOrderData(transactionKey, codec.Join(segments))
	if err != nil {
		return nil, returncode.Wrap(returncode.KindProtocol, err, "order data")
	}
	data, err := p.compressor.Decompress(plain)
	if err != nil {
		return nil, returncode.Wrap(returncode.KindProtocol, err, "order data")
	}
	return data, nil
}

// ParseHEV reads an ebicsHEVResponse
func ParseHEV(data []byte) (*HEVResponse, error) {
	doc, err := readDocument(data)
	if err != nil {
		return nil, err
	}
	root := doc.Root()
	if root.Tag != RootHEVResponse {
		return nil, malformed("unexpected root element %s", root.Tag)
	}

	resp := &HEVResponse{
		Code: text(root, "SystemReturnCode/ReturnCode"),
		Text: text(root, "SystemReturnCode/ReportText"),
	}
	for _, el := range root.SelectElements("VersionNumber") {
		resp.Versions = append(resp.Versions, VersionInfo{
			Schema: el.SelectAttrValue("ProtocolVersion", ""),
			Number: strings.TrimSpace(el.Text()),
		})
	}
	return resp, nil
}

// Supported returns the announced versions this engine implements
func (r *HEVResponse) Supported() []version.Version {
	var out []version.Version
	for _, info := range r.Versions {
		if v, err := version.Parse(info.Schema); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// Err classifies the HEV return code
func (r *HEVResponse) Err() error {
	return returncode.Map(r.Code, r.Text)
}
