package transaction

import (
	"context"

	"github.com/sirosfoundation/go-ebics/pkg/codec"
	"github.com/sirosfoundation/go-ebics/pkg/keyring"
	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/orderdata"
	"github.com/sirosfoundation/go-ebics/pkg/returncode"
	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// UploadResult is the outcome of an upload transaction
type UploadResult struct {
	TransactionID string
	OrderID       string
	Segments      int
}

// sealedUpload is an upload payload ready for transmission
type sealedUpload struct {
	segments       [][]byte
	signatureData  []byte
	transactionKey []byte
}

// seal signs payload with the signature key, then compresses and encrypts
// payload and signature under a fresh transaction key
func (e *Engine) seal(payload []byte) (*sealedUpload, error) {
	v := e.ring.Version()

	signingKey, err := e.ring.PrivateKey(keyring.KeySignature)
	if err != nil {
		return nil, err
	}
	signature, err := security.SignOrder(signingKey, security.SignatureVersion(v.Profile().SignatureVersion), payload)
	if err != nil {
		return nil, err
	}
	userSignature, err := orderdata.BuildUserSignature(v, e.subscriber, signature)
	if err != nil {
		return nil, err
	}

	bank := e.ring.BankEncryption()
	if bank == nil {
		return nil, returncode.New(returncode.KindKeyRingState, "bank encryption key unknown")
	}
	bankKey, err := bank.PublicKey()
	if err != nil {
		return nil, returncode.Wrap(returncode.KindAuthentication, err, "bank encryption key unusable")
	}

	key, err := security.NewTransactionKey()
	if err != nil {
		return nil, err
	}
	wrapped, err := security.WrapTransactionKey(bankKey, key)
	if err != nil {
		return nil, err
	}

	encrypt := func(data []byte) ([]byte, error) {
		compressed, err := e.compressor.Compress(data)
		if err != nil {
			return nil, err
		}
		return security.EncryptOrderData(key, compressed)
	}
	orderData, err := encrypt(payload)
	if err != nil {
		return nil, err
	}
	signatureData, err := encrypt(userSignature)
	if err != nil {
		return nil, err
	}

	return &sealedUpload{
		segments:       codec.Split(orderData, e.maxSegmentSize),
		signatureData:  signatureData,
		transactionKey: wrapped,
	}, nil
}

// Upload runs Initialisation and Transfer for an upload order. The
// initialisation carries the first segment together with the signature
// data and the wrapped transaction key.
func (e *Engine) Upload(ctx context.Context, o order.Order, payload []byte) (result *UploadResult, err error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer func() { e.finish(err) }()

	if err := e.prepare(o, order.Upload); err != nil {
		return nil, err
	}
	logger := e.logger.With("order_type", o.Type, "version", e.ring.Version().String())

	sealed, err := e.seal(payload)
	if err != nil {
		return nil, err
	}
	total := len(sealed.segments)

	logger.Debug("upload initialisation", "segments", total, "bytes", len(payload))
	resp, err := e.exchange(ctx, message.Request{
		Order:          o,
		Phase:          message.PhaseInitialisation,
		NumSegments:    total,
		SegmentNumber:  1,
		LastSegment:    total == 1,
		OrderData:      sealed.segments[0],
		SignatureData:  sealed.signatureData,
		TransactionKey: sealed.transactionKey,
	})
	if err != nil {
		return nil, err
	}
	txID := resp.TransactionID
	if txID == "" {
		return nil, returncode.New(returncode.KindProtocol, "upload initialisation returned no transaction ID")
	}
	orderID := resp.OrderID
	logger = logger.With("transaction_id", txID)

	e.setState(StateTransferring)
	for n := 2; n <= total; n++ {
		resp, err := e.exchange(ctx, message.Request{
			Order:         o,
			Phase:         message.PhaseTransfer,
			TransactionID: txID,
			SegmentNumber: n,
			LastSegment:   n == total,
			OrderData:     sealed.segments[n-1],
		})
		if err != nil {
			return nil, err
		}
		if err := checkTransaction(resp, txID); err != nil {
			return nil, err
		}
		if resp.OrderID != "" {
			orderID = resp.OrderID
		}
		logger.Debug("segment sent", "segment", n)
	}

	logger.Info("upload complete", "segments", total, "order_id", orderID)
	return &UploadResult{TransactionID: txID, OrderID: orderID, Segments: total}, nil
}
