package message

import (
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-ebics/pkg/codec"
	"github.com/sirosfoundation/go-ebics/pkg/compression"
	"github.com/sirosfoundation/go-ebics/pkg/keyring"
	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/orderdata"
	"github.com/sirosfoundation/go-ebics/pkg/returncode"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/subscriber"
	"github.com/sirosfoundation/go-ebics/pkg/version"
)

// timestampLayout is the xs:dateTime form of request timestamps
const timestampLayout = "2006-01-02T15:04:05.000Z"

// dateLayout is the xs:date form of date ranges
const dateLayout = "2006-01-02"

// Builder constructs signed EBICS requests for one subscriber
type Builder struct {
	ring       *keyring.KeyRing
	subscriber subscriber.Subscriber
	compressor *compression.Compressor
	orderIDs   *security.OrderIDGenerator
	now        func() time.Time
	nonce      func() string
}

// Option represents a functional option for Builder
type Option func(*Builder)

// WithClock sets the time source of request timestamps
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// WithNonceSource sets the generator of request nonces
func WithNonceSource(nonce func() string) Option {
	return func(b *Builder) {
		b.nonce = nonce
	}
}

// WithOrderIDGenerator shares an order ID sequence between builders
func WithOrderIDGenerator(g *security.OrderIDGenerator) Option {
	return func(b *Builder) {
		b.orderIDs = g
	}
}

// NewBuilder creates a request builder
func NewBuilder(ring *keyring.KeyRing, sub subscriber.Subscriber, opts ...Option) *Builder {
	b := &Builder{
		ring:       ring,
		subscriber: sub,
		compressor: compression.NewCompressor(),
		orderIDs:   security.NewOrderIDGenerator(),
		now:        time.Now,
		nonce:      security.NewNonce,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) version() version.Version {
	return b.ring.Version()
}

// newEnvelope creates the root element of a request
func (b *Builder) newEnvelope(root string) (*etree.Document, *etree.Element) {
	profile := b.version().Profile()
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	el := doc.CreateElement(root)
	el.CreateAttr("xmlns", profile.Namespace)
	el.CreateAttr("xmlns:ds", version.NamespaceDSig)
	el.CreateAttr("Version", profile.Name)
	el.CreateAttr("Revision", profile.Revision)
	return doc, el
}

func (b *Builder) timestamp() string {
	return b.now().UTC().Format(timestampLayout)
}

// addSubscriber writes PartnerID, UserID, SystemID and Product
func (b *Builder) addSubscriber(static *etree.Element, withProduct bool) {
	static.CreateElement("PartnerID").SetText(b.subscriber.PartnerID)
	static.CreateElement("UserID").SetText(b.subscriber.UserID)
	if b.subscriber.SystemID != "" {
		static.CreateElement("SystemID").SetText(b.subscriber.SystemID)
	}
	if withProduct && b.subscriber.Product != "" {
		product := static.CreateElement("Product")
		product.CreateAttr("Language", b.subscriber.ProductLanguage())
		product.SetText(b.subscriber.Product)
	}
}

// addOrderDetails writes OrderDetails for the version in use
func (b *Builder) addOrderDetails(static *etree.Element, o order.Order, spec order.Spec) error {
	details := static.CreateElement("OrderDetails")
	v := b.version()

	if v.Profile().UsesBTF {
		b.addBTFParams(details, o, spec)
		return nil
	}

	details.CreateElement("OrderType").SetText(spec.Type)
	if v == version.V24 && spec.Direction != order.KeyManagement {
		id, err := b.orderIDs.Next(b.subscriber.PartnerID)
		if err != nil {
			return err
		}
		details.CreateElement("OrderID").SetText(id)
	}
	details.CreateElement("OrderAttribute").SetText(spec.Attribute(o.WithES))

	if spec.Direction == order.KeyManagement {
		return nil
	}
	switch spec.Type {
	case "FDL":
		params := details.CreateElement("FDLOrderParams")
		addDateRange(params, o.DateRange)
		format := params.CreateElement("FileFormat")
		if o.CountryCode != "" {
			format.CreateAttr("CountryCode", o.CountryCode)
		}
		format.SetText(o.FileFormat)
	case "FUL":
		params := details.CreateElement("FULOrderParams")
		format := params.CreateElement("FileFormat")
		if o.CountryCode != "" {
			format.CreateAttr("CountryCode", o.CountryCode)
		}
		format.SetText(o.FileFormat)
	default:
		params := details.CreateElement("StandardOrderParams")
		addDateRange(params, o.DateRange)
	}
	return nil
}

// serviceOf returns the BTF service addressing an order, nil when the
// order is sent under its own admin order type
func serviceOf(o order.Order, spec order.Spec) *order.Service {
	switch {
	case o.Service != nil:
		return o.Service
	case spec.Service != nil:
		return spec.Service
	case spec.Type == "FDL" || spec.Type == "FUL":
		return &order.Service{Name: "OTH", Scope: o.CountryCode, MsgName: o.FileFormat}
	}
	return nil
}

// addBTFParams writes the EBICS 3.0 admin order type and business
// transaction parameters
func (b *Builder) addBTFParams(details *etree.Element, o order.Order, spec order.Spec) {
	service := serviceOf(o, spec)
	if service == nil {
		details.CreateElement("AdminOrderType").SetText(spec.AdminOrderType())
		if spec.Direction == order.Download {
			addDateRange(details.CreateElement("StandardOrderParams"), o.DateRange)
		}
		return
	}

	if spec.Direction == order.Upload {
		details.CreateElement("AdminOrderType").SetText("BTU")
	} else {
		details.CreateElement("AdminOrderType").SetText("BTD")
	}

	var params *etree.Element
	if spec.Direction == order.Upload {
		params = details.CreateElement("BTUOrderParams")
		params.CreateAttr("fileName", fmt.Sprintf("%s.xml", spec.Type))
	} else {
		params = details.CreateElement("BTDOrderParams")
	}

	svc := params.CreateElement("Service")
	svc.CreateElement("ServiceName").SetText(service.Name)
	if service.Scope != "" {
		svc.CreateElement("Scope").SetText(service.Scope)
	}
	if service.Option != "" {
		svc.CreateElement("ServiceOption").SetText(service.Option)
	}
	if service.Container != "" {
		svc.CreateElement("Container").CreateAttr("containerType", service.Container)
	}
	msg := svc.CreateElement("MsgName")
	if service.MsgVersion != "" {
		msg.CreateAttr("version", service.MsgVersion)
	}
	msg.SetText(service.MsgName)

	if spec.Direction == order.Upload {
		params.CreateElement("SignatureFlag")
	} else {
		addDateRange(params, o.DateRange)
	}
}

func addDateRange(parent *etree.Element, r *order.DateRange) {
	if r == nil {
		return
	}
	dr := parent.CreateElement("DateRange")
	dr.CreateElement("Start").SetText(r.Start.Format(dateLayout))
	dr.CreateElement("End").SetText(r.End.Format(dateLayout))
}

// addBankPubKeyDigests references the bank keys the request is meant for
func (b *Builder) addBankPubKeyDigests(static *etree.Element) error {
	x, e, err := b.ring.BankKeyDigests()
	if err != nil {
		return err
	}
	profile := b.version().Profile()
	digests := static.CreateElement("BankPubKeyDigests")
	auth := digests.CreateElement("Authentication")
	auth.CreateAttr("Version", profile.AuthenticationVersion)
	auth.CreateAttr("Algorithm", security.AlgorithmSHA256)
	auth.SetText(codec.EncodeBase64(x))
	enc := digests.CreateElement("Encryption")
	enc.CreateAttr("Version", profile.EncryptionVersion)
	enc.CreateAttr("Algorithm", security.AlgorithmSHA256)
	enc.SetText(codec.EncodeBase64(e))
	return nil
}

func (b *Builder) sign(doc *etree.Document) ([]byte, error) {
	key, err := b.ring.PrivateKey(keyring.KeyAuthentication)
	if err != nil {
		return nil, err
	}
	if err := SignDocument(doc, key); err != nil {
		return nil, err
	}
	return serialize(doc)
}

func serialize(doc *etree.Document) ([]byte, error) {
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serializing request: %w", err)
	}
	return out, nil
}

// HEV builds the version discovery request
func (b *Builder) HEV() ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(RootHEVRequest)
	root.CreateAttr("xmlns", version.NamespaceHEV)
	root.CreateElement("HostID").SetText(b.subscriber.HostID)
	return serialize(doc)
}

// INI builds the request submitting the signature key
func (b *Builder) INI() ([]byte, error) {
	data, err := orderdata.BuildINI(b.ring, b.subscriber, b.now())
	if err != nil {
		return nil, err
	}
	return b.unsecured("INI", data)
}

// HIA builds the request submitting the authentication and encryption keys
func (b *Builder) HIA() ([]byte, error) {
	data, err := orderdata.BuildHIA(b.ring, b.subscriber, b.now())
	if err != nil {
		return nil, err
	}
	return b.unsecured("HIA", data)
}

// unsecured builds ebicsUnsecuredRequest; the order data is compressed but
// neither signed nor encrypted
func (b *Builder) unsecured(orderType string, data []byte) ([]byte, error) {
	spec, err := order.Lookup(b.version(), orderType)
	if err != nil {
		return nil, err
	}
	compressed, err := b.compressor.Compress(data)
	if err != nil {
		return nil, err
	}

	doc, root := b.newEnvelope(RootUnsecuredRequest)
	header := root.CreateElement("header")
	header.CreateAttr("authenticate", "true")
	static := header.CreateElement("static")
	static.CreateElement("HostID").SetText(b.subscriber.HostID)
	b.addSubscriber(static, true)
	if err := b.addOrderDetails(static, order.Order{Type: orderType}, spec); err != nil {
		return nil, err
	}
	static.CreateElement("SecurityMedium").SetText(securityMedium)
	header.CreateElement("mutable")

	body := root.CreateElement("body")
	body.CreateElement("DataTransfer").CreateElement("OrderData").SetText(codec.EncodeBase64(compressed))

	return serialize(doc)
}

// HPB builds the signed request retrieving the bank keys
func (b *Builder) HPB() ([]byte, error) {
	spec, err := order.Lookup(b.version(), "HPB")
	if err != nil {
		return nil, err
	}

	doc, root := b.newEnvelope(RootNoPubKeyDigestsRequest)
	header := root.CreateElement("header")
	header.CreateAttr("authenticate", "true")
	static := header.CreateElement("static")
	static.CreateElement("HostID").SetText(b.subscriber.HostID)
	static.CreateElement("Nonce").SetText(b.nonce())
	static.CreateElement("Timestamp").SetText(b.timestamp())
	b.addSubscriber(static, true)
	if err := b.addOrderDetails(static, order.Order{Type: "HPB"}, spec); err != nil {
		return nil, err
	}
	static.CreateElement("SecurityMedium").SetText(securityMedium)
	header.CreateElement("mutable")

	root.CreateElement("AuthSignature")
	root.CreateElement("body")

	return b.sign(doc)
}

// Build constructs a signed ebicsRequest for a transaction phase
func (b *Builder) Build(req Request) ([]byte, error) {
	spec, err := order.Lookup(b.version(), req.Order.Type)
	if err != nil {
		return nil, err
	}
	if spec.Direction == order.KeyManagement {
		return nil, returncode.New(returncode.KindProtocol, "order type %s is not a transaction order", spec.Type)
	}

	doc, root := b.newEnvelope(RootRequest)
	header := root.CreateElement("header")
	header.CreateAttr("authenticate", "true")
	static := header.CreateElement("static")
	static.CreateElement("HostID").SetText(b.subscriber.HostID)

	mutable := header.CreateElement("mutable")
	mutable.CreateElement("TransactionPhase").SetText(string(req.Phase))

	root.CreateElement("AuthSignature")
	body := root.CreateElement("body")

	switch req.Phase {
	case PhaseInitialisation:
		if err := b.buildInitialisation(static, mutable, body, req, spec); err != nil {
			return nil, err
		}
	case PhaseTransfer:
		if req.TransactionID == "" {
			return nil, fmt.Errorf("transfer request requires a transaction ID")
		}
		static.CreateElement("TransactionID").SetText(req.TransactionID)
		addSegmentNumber(mutable, req)
		if spec.Direction == order.Upload {
			body.CreateElement("DataTransfer").CreateElement("OrderData").SetText(codec.EncodeBase64(req.OrderData))
		}
	case PhaseReceipt:
		if req.TransactionID == "" {
			return nil, fmt.Errorf("receipt request requires a transaction ID")
		}
		static.CreateElement("TransactionID").SetText(req.TransactionID)
		receipt := body.CreateElement("TransferReceipt")
		receipt.CreateAttr("authenticate", "true")
		code := ReceiptNotAcknowledged
		if req.Acknowledged {
			code = ReceiptAcknowledged
		}
		receipt.CreateElement("ReceiptCode").SetText(code)
	default:
		return nil, fmt.Errorf("unknown transaction phase %q", req.Phase)
	}

	return b.sign(doc)
}

func (b *Builder) buildInitialisation(static, mutable, body *etree.Element, req Request, spec order.Spec) error {
	static.CreateElement("Nonce").SetText(b.nonce())
	static.CreateElement("Timestamp").SetText(b.timestamp())
	b.addSubscriber(static, true)
	if err := b.addOrderDetails(static, req.Order, spec); err != nil {
		return err
	}
	if err := b.addBankPubKeyDigests(static); err != nil {
		return err
	}
	static.CreateElement("SecurityMedium").SetText(securityMedium)

	if spec.Direction != order.Upload {
		return nil
	}
	if req.NumSegments < 1 {
		return fmt.Errorf("upload initialisation requires at least one segment")
	}
	static.CreateElement("NumSegments").SetText(strconv.Itoa(req.NumSegments))
	addSegmentNumber(mutable, req)

	_, encDigest, err := b.ring.BankKeyDigests()
	if err != nil {
		return err
	}
	profile := b.version().Profile()
	dt := body.CreateElement("DataTransfer")
	info := dt.CreateElement("DataEncryptionInfo")
	info.CreateAttr("authenticate", "true")
	digest := info.CreateElement("EncryptionPubKeyDigest")
	digest.CreateAttr("Version", profile.EncryptionVersion)
	digest.CreateAttr("Algorithm", security.AlgorithmSHA256)
	digest.SetText(codec.EncodeBase64(encDigest))
	info.CreateElement("TransactionKey").SetText(codec.EncodeBase64(req.TransactionKey))

	sig := dt.CreateElement("SignatureData")
	sig.CreateAttr("authenticate", "true")
	sig.SetText(codec.EncodeBase64(req.SignatureData))

	dt.CreateElement("OrderData").SetText(codec.EncodeBase64(req.OrderData))
	return nil
}

func addSegmentNumber(mutable *etree.Element, req Request) {
	if req.SegmentNumber < 1 {
		return
	}
	seg := mutable.CreateElement("SegmentNumber")
	seg.CreateAttr("lastSegment", strconv.FormatBool(req.LastSegment))
	seg.SetText(strconv.Itoa(req.SegmentNumber))
}
