package client

import (
	"context"

	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/transaction"
)

func (c *Client) download(ctx context.Context, o order.Order) (*transaction.DownloadResult, error) {
	return c.Download(ctx, o, transaction.DownloadOptions{})
}

// HPD downloads the bank parameters
func (c *Client) HPD(ctx context.Context) (*transaction.DownloadResult, error) {
	return c.download(ctx, order.Order{Type: "HPD"})
}

// HKD downloads the customer and subscriber data of the partner
func (c *Client) HKD(ctx context.Context) (*transaction.DownloadResult, error) {
	return c.download(ctx, order.Order{Type: "HKD"})
}

// HTD downloads the customer and subscriber data of the user
func (c *Client) HTD(ctx context.Context) (*transaction.DownloadResult, error) {
	return c.download(ctx, order.Order{Type: "HTD"})
}

// HAA downloads the order types available for download
func (c *Client) HAA(ctx context.Context) (*transaction.DownloadResult, error) {
	return c.download(ctx, order.Order{Type: "HAA"})
}

// PTK downloads the customer protocol as text
func (c *Client) PTK(ctx context.Context, r *order.DateRange) (*transaction.DownloadResult, error) {
	return c.download(ctx, order.Order{Type: "PTK", DateRange: r})
}

// HAC downloads the customer acknowledgement (pain.002)
func (c *Client) HAC(ctx context.Context, r *order.DateRange) (*transaction.DownloadResult, error) {
	return c.download(ctx, order.Order{Type: "HAC", DateRange: r})
}

// STA downloads MT940 account statements
func (c *Client) STA(ctx context.Context, r *order.DateRange) (*transaction.DownloadResult, error) {
	return c.download(ctx, order.Order{Type: "STA", DateRange: r})
}

// VMK downloads MT942 interim transaction reports
func (c *Client) VMK(ctx context.Context, r *order.DateRange) (*transaction.DownloadResult, error) {
	return c.download(ctx, order.Order{Type: "VMK", DateRange: r})
}

// BKA downloads electronic account statements as PDF
func (c *Client) BKA(ctx context.Context, r *order.DateRange) (*transaction.DownloadResult, error) {
	return c.download(ctx, order.Order{Type: "BKA", DateRange: r})
}

// C52 downloads camt.052 account reports
func (c *Client) C52(ctx context.Context, r *order.DateRange) (*transaction.DownloadResult, error) {
	return c.download(ctx, order.Order{Type: "C52", DateRange: r})
}

// C53 downloads camt.053 statements
func (c *Client) C53(ctx context.Context, r *order.DateRange) (*transaction.DownloadResult, error) {
	return c.download(ctx, order.Order{Type: "C53", DateRange: r})
}

// C54 downloads camt.054 debit/credit notifications
func (c *Client) C54(ctx context.Context, r *order.DateRange) (*transaction.DownloadResult, error) {
	return c.download(ctx, order.Order{Type: "C54", DateRange: r})
}

// Z52 downloads Swiss camt.052 reports
func (c *Client) Z52(ctx context.Context, r *order.DateRange) (*transaction.DownloadResult, error) {
	return c.download(ctx, order.Order{Type: "Z52", DateRange: r})
}

// Z53 downloads Swiss camt.053 statements
func (c *Client) Z53(ctx context.Context, r *order.DateRange) (*transaction.DownloadResult, error) {
	return c.download(ctx, order.Order{Type: "Z53", DateRange: r})
}

// Z54 downloads Swiss camt.054 notifications
func (c *Client) Z54(ctx context.Context, r *order.DateRange) (*transaction.DownloadResult, error) {
	return c.download(ctx, order.Order{Type: "Z54", DateRange: r})
}

// ZSR downloads Swiss payment status reports
func (c *Client) ZSR(ctx context.Context, r *order.DateRange) (*transaction.DownloadResult, error) {
	return c.download(ctx, order.Order{Type: "ZSR", DateRange: r})
}

// XEK downloads Austrian account statements as PDF
func (c *Client) XEK(ctx context.Context, r *order.DateRange) (*transaction.DownloadResult, error) {
	return c.download(ctx, order.Order{Type: "XEK", DateRange: r})
}

// FDL downloads a file of the given format
func (c *Client) FDL(ctx context.Context, fileFormat, countryCode string, r *order.DateRange) (*transaction.DownloadResult, error) {
	return c.download(ctx, order.Order{Type: "FDL", FileFormat: fileFormat, CountryCode: countryCode, DateRange: r})
}

// CCT uploads a SEPA credit transfer (pain.001)
func (c *Client) CCT(ctx context.Context, data []byte) (*transaction.UploadResult, error) {
	return c.Upload(ctx, order.Order{Type: "CCT"}, data)
}

// CDD uploads a SEPA core direct debit (pain.008)
func (c *Client) CDD(ctx context.Context, data []byte) (*transaction.UploadResult, error) {
	return c.Upload(ctx, order.Order{Type: "CDD"}, data)
}

// CDB uploads a SEPA B2B direct debit (pain.008)
func (c *Client) CDB(ctx context.Context, data []byte) (*transaction.UploadResult, error) {
	return c.Upload(ctx, order.Order{Type: "CDB"}, data)
}

// CIP uploads a SEPA instant credit transfer (pain.001)
func (c *Client) CIP(ctx context.Context, data []byte) (*transaction.UploadResult, error) {
	return c.Upload(ctx, order.Order{Type: "CIP"}, data)
}

// XE2 uploads a Swiss credit transfer (pain.001)
func (c *Client) XE2(ctx context.Context, data []byte) (*transaction.UploadResult, error) {
	return c.Upload(ctx, order.Order{Type: "XE2"}, data)
}

// XE3 uploads a Swiss direct debit (pain.008)
func (c *Client) XE3(ctx context.Context, data []byte) (*transaction.UploadResult, error) {
	return c.Upload(ctx, order.Order{Type: "XE3"}, data)
}

// YCT uploads a cross-border credit transfer (pain.001)
func (c *Client) YCT(ctx context.Context, data []byte) (*transaction.UploadResult, error) {
	return c.Upload(ctx, order.Order{Type: "YCT"}, data)
}

// FUL uploads a file of the given format. withES requests electronic
// signature processing by the bank (order attribute OZHNN).
func (c *Client) FUL(ctx context.Context, fileFormat, countryCode string, withES bool, data []byte) (*transaction.UploadResult, error) {
	return c.Upload(ctx, order.Order{Type: "FUL", FileFormat: fileFormat, CountryCode: countryCode, WithES: withES}, data)
}
