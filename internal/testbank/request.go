package testbank

import (
	"crypto/x509/pkix"
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-ebics/pkg/codec"
	"github.com/sirosfoundation/go-ebics/pkg/keyring"
	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/orderdata"
	"github.com/sirosfoundation/go-ebics/pkg/returncode"
	"github.com/sirosfoundation/go-ebics/pkg/security"
)

var now = time.Now

func pkixName(hostID string) pkix.Name {
	return pkix.Name{CommonName: hostID, Organization: []string{"EBICS test bank"}}
}

// reply is the content of one ebicsResponse
type reply struct {
	phase         message.Phase
	transactionID string
	numSegments   int
	segment       int
	lastSegment   bool
	technical     string
	business      string
	wrapped       []byte
	orderData     []byte
}

func (b *Bank) request(doc *etree.Document) ([]byte, error) {
	root := doc.Root()
	static := root.FindElement("header/static")
	mutable := root.FindElement("header/mutable")
	if static == nil || mutable == nil {
		return nil, fmt.Errorf("testbank: incomplete header")
	}

	ex := Exchange{
		Root:          root.Tag,
		OrderType:     orderTypeOf(static),
		OrderID:       text(static, "OrderDetails/OrderID"),
		Phase:         message.Phase(text(mutable, "TransactionPhase")),
		TransactionID: text(static, "TransactionID"),
	}
	if seg := mutable.SelectElement("SegmentNumber"); seg != nil {
		ex.SegmentNumber = atoi(seg.Text())
		ex.LastSegment = seg.SelectAttrValue("lastSegment", "") == "true"
	}
	ex.ReceiptCode = text(root, "body/TransferReceipt/ReceiptCode")
	fault := b.record(ex)
	if fault != nil && fault.Err != nil {
		return nil, fault.Err
	}

	var r reply
	if err := b.verifyUser(doc); err != nil {
		r = reply{phase: ex.Phase, technical: "061001"}
	} else {
		switch ex.Phase {
		case message.PhaseInitialisation:
			r = b.initialise(root, ex)
		case message.PhaseTransfer:
			r = b.transfer(root, ex)
		case message.PhaseReceipt:
			r = b.receipt(ex)
		default:
			r = reply{phase: ex.Phase, technical: "061002"}
		}
	}

	if fault != nil {
		if fault.TechnicalCode != "" {
			r.technical = fault.TechnicalCode
		}
		if fault.BusinessCode != "" {
			r.business = fault.BusinessCode
		}
		if fault.TransactionID != "" {
			r.transactionID = fault.TransactionID
		}
		if fault.SegmentNumber > 0 {
			r.segment = fault.SegmentNumber
		}
		if fault.OrderData != nil {
			r.orderData = fault.OrderData
		}
	}
	return b.response(r)
}

func text(el *etree.Element, path string) string {
	if found := el.FindElement(path); found != nil {
		return found.Text()
	}
	return ""
}

func (b *Bank) newTransactionID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txCounter++
	return fmt.Sprintf("%032X", b.txCounter)
}

func (b *Bank) initialise(root *etree.Element, ex Exchange) reply {
	if dt := root.FindElement("body/DataTransfer"); dt != nil {
		return b.initialiseUpload(root, ex)
	}

	b.mu.Lock()
	payload, ok := b.downloads[ex.OrderType]
	b.mu.Unlock()
	if !ok {
		return reply{phase: ex.Phase, technical: returncode.OK, business: returncode.NoDownloadDataAvailable}
	}

	wrapped, encrypted, err := b.encryptForUser(payload)
	if err != nil {
		return reply{phase: ex.Phase, technical: "061099"}
	}
	segments := codec.Split(encrypted, b.SegmentSize)
	id := b.newTransactionID()

	b.mu.Lock()
	b.tx[id] = &transaction{orderType: ex.OrderType, segments: segments, wrapped: wrapped, total: len(segments)}
	b.mu.Unlock()

	return reply{
		phase:         ex.Phase,
		transactionID: id,
		numSegments:   len(segments),
		segment:       1,
		lastSegment:   len(segments) == 1,
		technical:     returncode.OK,
		business:      returncode.OK,
		wrapped:       wrapped,
		orderData:     segments[0],
	}
}

func (b *Bank) initialiseUpload(root *etree.Element, ex Exchange) reply {
	fail := reply{phase: ex.Phase, technical: "091113"}

	wrapped, err := codec.DecodeBase64(text(root, "body/DataTransfer/DataEncryptionInfo/TransactionKey"))
	if err != nil {
		return fail
	}
	key, err := security.UnwrapTransactionKey(b.Encryption, wrapped)
	if err != nil {
		return reply{phase: ex.Phase, technical: "061001"}
	}
	signature, err := codec.DecodeBase64(text(root, "body/DataTransfer/SignatureData"))
	if err != nil {
		return fail
	}
	segment, err := codec.DecodeBase64(text(root, "body/DataTransfer/OrderData"))
	if err != nil {
		return fail
	}
	total, err := strconv.Atoi(text(root, "header/static/NumSegments"))
	if err != nil || total < 1 || ex.SegmentNumber != 1 {
		return fail
	}

	id := b.newTransactionID()
	tx := &transaction{
		orderType: ex.OrderType,
		upload:    true,
		key:       key,
		signature: signature,
		segments:  [][]byte{segment},
		received:  1,
		total:     total,
	}
	b.mu.Lock()
	b.tx[id] = tx
	b.mu.Unlock()

	r := reply{phase: ex.Phase, transactionID: id, technical: returncode.OK, business: returncode.OK}
	if ex.LastSegment {
		r.business = b.completeUpload(id, tx)
	}
	return r
}

func (b *Bank) lookup(id string) (*transaction, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tx, ok := b.tx[id]
	return tx, ok
}

func (b *Bank) transfer(root *etree.Element, ex Exchange) reply {
	tx, ok := b.lookup(ex.TransactionID)
	if !ok {
		return reply{phase: ex.Phase, technical: returncode.TxUnknownTxID}
	}
	r := reply{phase: ex.Phase, transactionID: ex.TransactionID, technical: returncode.OK, business: returncode.OK}

	if tx.upload {
		if ex.SegmentNumber != tx.received+1 || ex.SegmentNumber > tx.total {
			return reply{phase: ex.Phase, transactionID: ex.TransactionID, technical: "091104"}
		}
		segment, err := codec.DecodeBase64(text(root, "body/DataTransfer/OrderData"))
		if err != nil {
			return reply{phase: ex.Phase, transactionID: ex.TransactionID, technical: "091113"}
		}
		b.mu.Lock()
		tx.segments = append(tx.segments, segment)
		tx.received++
		b.mu.Unlock()
		r.segment = ex.SegmentNumber
		if ex.LastSegment {
			r.business = b.completeUpload(ex.TransactionID, tx)
		}
		return r
	}

	if ex.SegmentNumber < 2 || ex.SegmentNumber > tx.total {
		return reply{phase: ex.Phase, transactionID: ex.TransactionID, technical: "091104"}
	}
	r.numSegments = tx.total
	r.segment = ex.SegmentNumber
	r.lastSegment = ex.SegmentNumber == tx.total
	r.orderData = tx.segments[ex.SegmentNumber-1]
	return r
}

// completeUpload decrypts the upload, checks the electronic signature and
// stores the payload. It returns the business return code.
func (b *Bank) completeUpload(id string, tx *transaction) string {
	b.mu.Lock()
	delete(b.tx, id)
	b.mu.Unlock()

	if tx.received != tx.total {
		return "091104"
	}
	compressed, err := security.DecryptOrderData(tx.key, codec.Join(tx.segments))
	if err != nil {
		return "091113"
	}
	payload, err := b.compressor.Decompress(compressed)
	if err != nil {
		return "091113"
	}

	sigCompressed, err := security.DecryptOrderData(tx.key, tx.signature)
	if err != nil {
		return "091301"
	}
	sigData, err := b.compressor.Decompress(sigCompressed)
	if err != nil {
		return "091301"
	}
	us, err := orderdata.ParseUserSignature(sigData)
	if err != nil {
		return "091301"
	}
	pub, err := b.userKey(func(k orderdata.SubscriberKeys) keyring.Signature { return k.Signature })
	if err != nil {
		return "091304"
	}
	if err := security.VerifyOrder(pub, us.Version, payload, us.Value); err != nil {
		return "091301"
	}

	b.mu.Lock()
	b.uploads[tx.orderType] = payload
	b.mu.Unlock()
	return returncode.OK
}

func (b *Bank) receipt(ex Exchange) reply {
	if _, ok := b.lookup(ex.TransactionID); !ok {
		return reply{phase: ex.Phase, technical: returncode.TxUnknownTxID}
	}
	b.mu.Lock()
	delete(b.tx, ex.TransactionID)
	b.mu.Unlock()

	code := returncode.DownloadPostprocessDone
	if ex.ReceiptCode != message.ReceiptAcknowledged {
		code = "011001"
	}
	return reply{phase: ex.Phase, transactionID: ex.TransactionID, technical: code, business: returncode.OK}
}

func (b *Bank) response(r reply) ([]byte, error) {
	doc, root := b.envelope(message.RootResponse)
	header := root.CreateElement("header")
	header.CreateAttr("authenticate", "true")
	static := header.CreateElement("static")
	if r.transactionID != "" {
		static.CreateElement("TransactionID").SetText(r.transactionID)
	}
	if r.numSegments > 0 {
		static.CreateElement("NumSegments").SetText(strconv.Itoa(r.numSegments))
	}
	mutable := header.CreateElement("mutable")
	mutable.CreateElement("TransactionPhase").SetText(string(r.phase))
	if r.segment > 0 {
		seg := mutable.CreateElement("SegmentNumber")
		seg.CreateAttr("lastSegment", strconv.FormatBool(r.lastSegment))
		seg.SetText(strconv.Itoa(r.segment))
	}
	mutable.CreateElement("ReturnCode").SetText(r.technical)
	mutable.CreateElement("ReportText").SetText(reportText(r.technical))

	root.CreateElement("AuthSignature")
	body := root.CreateElement("body")
	if r.orderData != nil {
		dt := body.CreateElement("DataTransfer")
		if r.wrapped != nil {
			info := dt.CreateElement("DataEncryptionInfo")
			info.CreateAttr("authenticate", "true")
			info.CreateElement("TransactionKey").SetText(codec.EncodeBase64(r.wrapped))
		}
		dt.CreateElement("OrderData").SetText(codec.EncodeBase64(r.orderData))
	}
	business := r.business
	if business == "" {
		business = returncode.OK
	}
	rc := body.CreateElement("ReturnCode")
	rc.CreateAttr("authenticate", "true")
	rc.SetText(business)
	body.CreateElement("TimestampBankParameter").SetText(now().UTC().Format(time.RFC3339))

	if err := message.SignDocument(doc, b.Authentication); err != nil {
		return nil, err
	}
	return doc.WriteToBytes()
}
