// Package testbank is an in-process EBICS bank. It answers the requests of
// the client packages with signed and encrypted responses, so that the
// protocol can be tested end to end without a network.
package testbank

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-ebics/pkg/codec"
	"github.com/sirosfoundation/go-ebics/pkg/compression"
	"github.com/sirosfoundation/go-ebics/pkg/keyring"
	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/orderdata"
	"github.com/sirosfoundation/go-ebics/pkg/returncode"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/version"
)

// Exchange records one request received by the bank
type Exchange struct {
	Root          string
	OrderType     string
	OrderID       string
	Phase         message.Phase
	TransactionID string
	SegmentNumber int
	LastSegment   bool
	ReceiptCode   string
}

// Fault lets a test alter the bank's answer to one exchange. A non-empty
// TechnicalCode replaces the return code; TransactionID replaces the
// transaction ID of the response; SegmentNumber and OrderData replace the
// segment sent back; Err is returned as a transport failure.
type Fault struct {
	TechnicalCode string
	BusinessCode  string
	TransactionID string
	SegmentNumber int
	OrderData     []byte
	Err           error
}

// Bank is a single-host EBICS bank with one subscriber
type Bank struct {
	HostID         string
	Version        version.Version
	SegmentSize    int
	Authentication *rsa.PrivateKey
	Encryption     *rsa.PrivateKey

	// Intercept is consulted before each answer is rendered
	Intercept func(Exchange) *Fault

	mu          sync.Mutex
	compressor  *compression.Compressor
	user        orderdata.SubscriberKeys
	downloads   map[string][]byte
	uploads     map[string][]byte
	exchanges   []Exchange
	txCounter   int
	tx          map[string]*transaction
	certificate map[string][]byte
}

type transaction struct {
	orderType string
	upload    bool
	segments  [][]byte
	key       []byte
	wrapped   []byte
	signature []byte
	received  int
	total     int
}

// New creates a bank with fresh keys
func New(v version.Version, hostID string) (*Bank, error) {
	x, err := security.GenerateKeyPair(0)
	if err != nil {
		return nil, err
	}
	e, err := security.GenerateKeyPair(0)
	if err != nil {
		return nil, err
	}
	return NewWithKeys(v, hostID, x, e), nil
}

// NewWithKeys creates a bank using existing authentication and encryption keys
func NewWithKeys(v version.Version, hostID string, authentication, encryption *rsa.PrivateKey) *Bank {
	return &Bank{
		HostID:         hostID,
		Version:        v,
		SegmentSize:    codec.DefaultMaxSegmentSize,
		Authentication: authentication,
		Encryption:     encryption,
		compressor:     compression.NewCompressor(),
		downloads:      make(map[string][]byte),
		uploads:        make(map[string][]byte),
		tx:             make(map[string]*transaction),
		certificate:    make(map[string][]byte),
	}
}

// SetDownload makes payload available for downloads of the given order
// type. EBICS 3.0 BTD orders are keyed by their MsgName.
func (b *Bank) SetDownload(key string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.downloads[key] = payload
}

// Uploaded returns the verified payload of the last upload for key
func (b *Bank) Uploaded(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.uploads[key]
	return data, ok
}

// Exchanges returns every request received so far
func (b *Bank) Exchanges() []Exchange {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Exchange(nil), b.exchanges...)
}

// Keys returns the published bank keys
func (b *Bank) Keys() (authentication, encryption keyring.Signature, err error) {
	x, err := b.publish("X", b.Authentication, security.UsageAuthentication)
	if err != nil {
		return keyring.Signature{}, keyring.Signature{}, err
	}
	e, err := b.publish("E", b.Encryption, security.UsageEncryption)
	if err != nil {
		return keyring.Signature{}, keyring.Signature{}, err
	}
	return x, e, nil
}

// KeyDigests returns the digests printed on the bank's initialization letter
func (b *Bank) KeyDigests() (authentication, encryption []byte, err error) {
	x, e, err := b.Keys()
	if err != nil {
		return nil, nil, err
	}
	useCert := b.Version.Profile().UsesCertificates
	if authentication, err = x.Digest(useCert); err != nil {
		return nil, nil, err
	}
	if encryption, err = e.Digest(useCert); err != nil {
		return nil, nil, err
	}
	return authentication, encryption, nil
}

func (b *Bank) publish(name string, key *rsa.PrivateKey, usage security.KeyUsage) (keyring.Signature, error) {
	if !b.Version.Profile().UsesCertificates {
		return keyring.NewSignature(&key.PublicKey, nil), nil
	}
	b.mu.Lock()
	der, ok := b.certificate[name]
	b.mu.Unlock()
	if !ok {
		cert, err := security.SelfSignedCertificate(key, pkixName(b.HostID), usage)
		if err != nil {
			return keyring.Signature{}, err
		}
		der = cert.Raw
		b.mu.Lock()
		b.certificate[name] = der
		b.mu.Unlock()
	}
	return keyring.SignatureFromCertificate(der)
}

// Send implements transport.Transport
func (b *Bank) Send(ctx context.Context, request []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(request); err != nil {
		return nil, fmt.Errorf("testbank: %w", err)
	}
	root := doc.Root()
	switch root.Tag {
	case message.RootHEVRequest:
		return b.hev()
	case message.RootUnsecuredRequest:
		return b.unsecured(root)
	case message.RootNoPubKeyDigestsRequest:
		return b.hpb(doc)
	case message.RootRequest:
		return b.request(doc)
	default:
		return nil, fmt.Errorf("testbank: unexpected request %s", root.Tag)
	}
}

func (b *Bank) record(ex Exchange) *Fault {
	b.mu.Lock()
	b.exchanges = append(b.exchanges, ex)
	intercept := b.Intercept
	b.mu.Unlock()
	if intercept == nil {
		return nil
	}
	return intercept(ex)
}

func (b *Bank) hev() ([]byte, error) {
	b.record(Exchange{Root: message.RootHEVRequest})
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(message.RootHEVResponse)
	root.CreateAttr("xmlns", version.NamespaceHEV)
	rc := root.CreateElement("SystemReturnCode")
	rc.CreateElement("ReturnCode").SetText(returncode.OK)
	rc.CreateElement("ReportText").SetText("[EBICS_OK] OK")
	for _, v := range version.All() {
		p := v.Profile()
		el := root.CreateElement("VersionNumber")
		el.CreateAttr("ProtocolVersion", p.Name)
		el.SetText(hevNumber(p.Protocol))
	}
	return doc.WriteToBytes()
}

// hevNumber renders "2.5" as "02.50"
func hevNumber(protocol string) string {
	major, minor, _ := strings.Cut(protocol, ".")
	if len(major) < 2 {
		major = "0" + major
	}
	return major + "." + minor + "0"
}

func orderTypeOf(static *etree.Element) string {
	details := static.SelectElement("OrderDetails")
	if details == nil {
		return ""
	}
	if msg := details.FindElement(".//Service/MsgName"); msg != nil {
		return strings.TrimSpace(msg.Text())
	}
	for _, tag := range []string{"OrderType", "AdminOrderType"} {
		if el := details.SelectElement(tag); el != nil {
			return strings.TrimSpace(el.Text())
		}
	}
	return ""
}

func (b *Bank) unsecured(root *etree.Element) ([]byte, error) {
	static := root.FindElement("header/static")
	if static == nil {
		return nil, errors.New("testbank: missing static header")
	}
	orderType := orderTypeOf(static)
	fault := b.record(Exchange{Root: root.Tag, OrderType: orderType})

	code := returncode.OK
	if err := b.acceptKeys(root, orderType); err != nil {
		code = returncode.InvalidUserOrUserState
	}
	return b.keyManagementResponse(fault, code, nil, nil)
}

func (b *Bank) acceptKeys(root *etree.Element, orderType string) error {
	od := root.FindElement("body/DataTransfer/OrderData")
	if od == nil {
		return errors.New("missing order data")
	}
	raw, err := codec.DecodeBase64(od.Text())
	if err != nil {
		return err
	}
	data, err := b.compressor.Decompress(raw)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	switch orderType {
	case "INI":
		if !b.user.Signature.IsZero() {
			return errors.New("signature key already known")
		}
		keys, err := orderdata.ParseINI(b.Version, data)
		if err != nil {
			return err
		}
		b.user.PartnerID, b.user.UserID = keys.PartnerID, keys.UserID
		b.user.Signature = keys.Signature
	case "HIA":
		if !b.user.Authentication.IsZero() {
			return errors.New("authentication key already known")
		}
		keys, err := orderdata.ParseHIA(b.Version, data)
		if err != nil {
			return err
		}
		b.user.Authentication, b.user.Encryption = keys.Authentication, keys.Encryption
	default:
		return fmt.Errorf("unexpected unsecured order %s", orderType)
	}
	return nil
}

func (b *Bank) userKey(sig func(orderdata.SubscriberKeys) keyring.Signature) (*rsa.PublicKey, error) {
	b.mu.Lock()
	s := sig(b.user)
	b.mu.Unlock()
	if s.IsZero() {
		return nil, errors.New("testbank: subscriber key unknown")
	}
	return s.PublicKey()
}

func (b *Bank) verifyUser(doc *etree.Document) error {
	pub, err := b.userKey(func(k orderdata.SubscriberKeys) keyring.Signature { return k.Authentication })
	if err != nil {
		return err
	}
	return message.VerifyDocument(doc, pub)
}

func (b *Bank) hpb(doc *etree.Document) ([]byte, error) {
	fault := b.record(Exchange{Root: doc.Root().Tag, OrderType: "HPB"})
	if err := b.verifyUser(doc); err != nil {
		return b.keyManagementResponse(fault, "061001", nil, nil)
	}

	x, e, err := b.Keys()
	if err != nil {
		return nil, err
	}
	data, err := orderdata.BuildHPB(b.Version, b.HostID, x, e, now())
	if err != nil {
		return nil, err
	}
	wrapped, encrypted, err := b.encryptForUser(data)
	if err != nil {
		return nil, err
	}
	return b.keyManagementResponse(fault, returncode.OK, wrapped, encrypted)
}

// encryptForUser compresses and encrypts order data for the subscriber
func (b *Bank) encryptForUser(data []byte) (wrapped, encrypted []byte, err error) {
	pub, err := b.userKey(func(k orderdata.SubscriberKeys) keyring.Signature { return k.Encryption })
	if err != nil {
		return nil, nil, err
	}
	compressed, err := b.compressor.Compress(data)
	if err != nil {
		return nil, nil, err
	}
	key, err := security.NewTransactionKey()
	if err != nil {
		return nil, nil, err
	}
	if encrypted, err = security.EncryptOrderData(key, compressed); err != nil {
		return nil, nil, err
	}
	if wrapped, err = security.WrapTransactionKey(pub, key); err != nil {
		return nil, nil, err
	}
	return wrapped, encrypted, nil
}

func (b *Bank) keyManagementResponse(fault *Fault, code string, wrapped, orderData []byte) ([]byte, error) {
	technical, business := code, returncode.OK
	if fault != nil {
		if fault.Err != nil {
			return nil, fault.Err
		}
		if fault.TechnicalCode != "" {
			technical = fault.TechnicalCode
		}
		if fault.BusinessCode != "" {
			business = fault.BusinessCode
		}
	}
	doc, root := b.envelope(message.RootKeyManagementResponse)
	header := root.CreateElement("header")
	header.CreateAttr("authenticate", "true")
	header.CreateElement("static")
	mutable := header.CreateElement("mutable")
	mutable.CreateElement("ReturnCode").SetText(technical)
	mutable.CreateElement("ReportText").SetText(reportText(technical))

	body := root.CreateElement("body")
	if orderData != nil {
		dt := body.CreateElement("DataTransfer")
		info := dt.CreateElement("DataEncryptionInfo")
		info.CreateAttr("authenticate", "true")
		info.CreateElement("TransactionKey").SetText(codec.EncodeBase64(wrapped))
		dt.CreateElement("OrderData").SetText(codec.EncodeBase64(orderData))
	}
	body.CreateElement("ReturnCode").SetText(business)
	return doc.WriteToBytes()
}

func (b *Bank) envelope(rootTag string) (*etree.Document, *etree.Element) {
	profile := b.Version.Profile()
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(rootTag)
	root.CreateAttr("xmlns", profile.Namespace)
	root.CreateAttr("xmlns:ds", version.NamespaceDSig)
	root.CreateAttr("Version", profile.Name)
	root.CreateAttr("Revision", profile.Revision)
	return doc, root
}

func reportText(code string) string {
	if e, ok := returncode.Lookup(code); ok {
		return fmt.Sprintf("[%s] %s", e.Symbol, strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(e.Symbol, "EBICS_"), "_", " ")))
	}
	return "[EBICS_UNKNOWN] unknown"
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

// Enroll registers the ring's keys with the bank and stores the bank keys
// in the ring, as if INI, HIA and HPB had completed and the bank keys had
// been verified
func (b *Bank) Enroll(ring *keyring.KeyRing, partnerID, userID string) error {
	a, err := ring.UserSignature(keyring.KeySignature)
	if err != nil {
		return err
	}
	x, err := ring.UserSignature(keyring.KeyAuthentication)
	if err != nil {
		return err
	}
	e, err := ring.UserSignature(keyring.KeyEncryption)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.user = orderdata.SubscriberKeys{
		PartnerID:      partnerID,
		UserID:         userID,
		Signature:      a,
		Authentication: x,
		Encryption:     e,
	}
	b.mu.Unlock()

	bankX, bankE, err := b.Keys()
	if err != nil {
		return err
	}
	ring.MarkSignatureKeySent()
	ring.MarkAuthEncKeysSent()
	if err := ring.SetBankKeys(bankX, bankE); err != nil {
		return err
	}
	xHash, eHash, err := b.KeyDigests()
	if err != nil {
		return err
	}
	return ring.VerifyBankKeys(xHash, eHash)
}
