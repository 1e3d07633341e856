package transaction

import (
	"context"

	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/returncode"
)

// DownloadOptions controls the receipt phase of a download
type DownloadOptions struct {
	// Acknowledge decides the receipt code after the data was decrypted.
	// A nil function acknowledges every download.
	Acknowledge func(data []byte) bool
}

// DownloadResult is the outcome of a download transaction
type DownloadResult struct {
	Data          []byte
	TransactionID string
	OrderID       string
	Segments      int
	// Acknowledged reports the receipt code sent to the bank
	Acknowledged bool
}

// Download runs Initialisation, Transfer and Receipt for a download order.
// A bank reporting no data yields a KindNoDataAvailable error.
func (e *Engine) Download(ctx context.Context, o order.Order, opts DownloadOptions) (result *DownloadResult, err error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer func() { e.finish(err) }()

	if err := e.prepare(o, order.Download); err != nil {
		return nil, err
	}
	logger := e.logger.With("order_type", o.Type, "version", e.ring.Version().String())

	logger.Debug("download initialisation")
	resp, err := e.exchange(ctx, message.Request{Order: o, Phase: message.PhaseInitialisation})
	if err != nil {
		return nil, err
	}

	txID := resp.TransactionID
	if txID == "" {
		return nil, returncode.New(returncode.KindProtocol, "download initialisation returned no transaction ID")
	}
	total := resp.NumSegments
	if total < 1 || resp.OrderData == nil || resp.TransactionKey == nil {
		return nil, returncode.New(returncode.KindProtocol, "download initialisation returned no order data")
	}
	logger = logger.With("transaction_id", txID)
	logger.Info("download started", "segments", total)

	segments := make([][]byte, 0, total)
	segments = append(segments, resp.OrderData)
	wrappedKey := resp.TransactionKey
	orderID := resp.OrderID

	e.setState(StateTransferring)
	for n := 2; n <= total; n++ {
		resp, err := e.exchange(ctx, message.Request{
			Order:         o,
			Phase:         message.PhaseTransfer,
			TransactionID: txID,
			SegmentNumber: n,
			LastSegment:   n == total,
		})
		if err != nil {
			return nil, err
		}
		if err := checkTransaction(resp, txID); err != nil {
			return nil, err
		}
		if resp.SegmentNumber != n {
			return nil, returncode.New(returncode.KindProtocol,
				"requested segment %d, bank returned %d", n, resp.SegmentNumber)
		}
		if resp.OrderData == nil {
			return nil, returncode.New(returncode.KindProtocol, "segment %d carries no order data", n)
		}
		segments = append(segments, resp.OrderData)
		logger.Debug("segment received", "segment", n)
	}

	// An undecryptable download aborts without a receipt
	data, err := e.parser.DecryptOrderData(wrappedKey, segments)
	if err != nil {
		logger.Warn("download could not be decrypted", "error", err)
		return nil, err
	}
	ack := true
	if opts.Acknowledge != nil {
		ack = opts.Acknowledge(data)
	}

	e.setState(StateAcknowledging)
	resp, err = e.exchange(ctx, message.Request{
		Order:         o,
		Phase:         message.PhaseReceipt,
		TransactionID: txID,
		Acknowledged:  ack,
	})
	if err != nil {
		return nil, err
	}
	if err := checkTransaction(resp, txID); err != nil {
		return nil, err
	}

	logger.Info("download complete", "bytes", len(data), "acknowledged", ack)
	return &DownloadResult{
		Data:          data,
		TransactionID: txID,
		OrderID:       orderID,
		Segments:      total,
		Acknowledged:  ack,
	}, nil
}
