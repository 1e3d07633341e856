package message

import (
	"crypto/rsa"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/pkg/codec"
	"github.com/sirosfoundation/go-ebics/pkg/compression"
	"github.com/sirosfoundation/go-ebics/pkg/keyring"
	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/returncode"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/subscriber"
	"github.com/sirosfoundation/go-ebics/pkg/version"
)

var (
	keysOnce sync.Once
	keys     []*rsa.PrivateKey
)

// testKeys returns A, X, E of the subscriber followed by X, E of the bank
func testKeys(t *testing.T) []*rsa.PrivateKey {
	t.Helper()
	keysOnce.Do(func() {
		for i := 0; i < 5; i++ {
			k, err := security.GenerateKeyPair(0)
			if err != nil {
				panic(err)
			}
			keys = append(keys, k)
		}
	})
	return keys
}

var testSubscriber = subscriber.Subscriber{
	HostID:    "EBIXHOST",
	PartnerID: "PARTNER1",
	UserID:    "USER1",
	Product:   "go-ebics",
}

var testTime = time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

func newRing(t *testing.T, v version.Version, withBank bool) *keyring.KeyRing {
	t.Helper()
	ring, err := keyring.New(v, "secret", keyring.WithKDFCost(16))
	require.NoError(t, err)
	ks := testKeys(t)
	require.NoError(t, ring.ImportKey(keyring.KeySignature, ks[0], nil))
	require.NoError(t, ring.ImportKey(keyring.KeyAuthentication, ks[1], nil))
	require.NoError(t, ring.ImportKey(keyring.KeyEncryption, ks[2], nil))
	if withBank {
		require.NoError(t, ring.SetBankKeys(
			keyring.NewSignature(&ks[3].PublicKey, nil),
			keyring.NewSignature(&ks[4].PublicKey, nil),
		))
	}
	return ring
}

func newBuilder(t *testing.T, v version.Version) *Builder {
	t.Helper()
	return NewBuilder(newRing(t, v, true), testSubscriber,
		WithClock(func() time.Time { return testTime }),
		WithNonceSource(func() string { return "0123456789ABCDEF0123456789ABCDEF" }),
	)
}

func parse(t *testing.T, data []byte) *etree.Document {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(data))
	return doc
}

func textAt(t *testing.T, doc *etree.Document, path string) string {
	t.Helper()
	el := doc.Root().FindElement(path)
	require.NotNil(t, el, "missing %s", path)
	return el.Text()
}

func TestBuilder_HEV(t *testing.T) {
	data, err := newBuilder(t, version.V25).HEV()
	require.NoError(t, err)

	doc := parse(t, data)
	assert.Equal(t, RootHEVRequest, doc.Root().Tag)
	assert.Equal(t, version.NamespaceHEV, doc.Root().SelectAttrValue("xmlns", ""))
	assert.Equal(t, "EBIXHOST", textAt(t, doc, "HostID"))
}

func TestBuilder_Unsecured(t *testing.T) {
	for _, v := range version.All() {
		t.Run(v.String(), func(t *testing.T) {
			b := newBuilder(t, v)
			data, err := b.INI()
			require.NoError(t, err)

			doc := parse(t, data)
			root := doc.Root()
			assert.Equal(t, RootUnsecuredRequest, root.Tag)
			assert.Equal(t, v.Profile().Namespace, root.SelectAttrValue("xmlns", ""))
			assert.Equal(t, v.Profile().Name, root.SelectAttrValue("Version", ""))
			assert.Nil(t, root.SelectElement("AuthSignature"))

			if v.Profile().UsesBTF {
				assert.Equal(t, "INI", textAt(t, doc, "header/static/OrderDetails/AdminOrderType"))
				assert.Nil(t, root.FindElement("header/static/OrderDetails/OrderAttribute"))
			} else {
				assert.Equal(t, "INI", textAt(t, doc, "header/static/OrderDetails/OrderType"))
				assert.Equal(t, order.AttributeDZNNN, textAt(t, doc, "header/static/OrderDetails/OrderAttribute"))
			}

			raw, err := codec.DecodeBase64(textAt(t, doc, "body/DataTransfer/OrderData"))
			require.NoError(t, err)
			orderData, err := compression.NewCompressor().Decompress(raw)
			require.NoError(t, err)
			assert.Contains(t, string(orderData), "SignaturePubKeyOrderData")

			data, err = b.HIA()
			require.NoError(t, err)
			doc = parse(t, data)
			assert.Equal(t, RootUnsecuredRequest, doc.Root().Tag)
		})
	}
}

func TestBuilder_HPB(t *testing.T) {
	data, err := newBuilder(t, version.V25).HPB()
	require.NoError(t, err)

	doc := parse(t, data)
	assert.Equal(t, RootNoPubKeyDigestsRequest, doc.Root().Tag)
	assert.Equal(t, "HPB", textAt(t, doc, "header/static/OrderDetails/OrderType"))
	assert.Equal(t, "2024-03-01T10:30:00.000Z", textAt(t, doc, "header/static/Timestamp"))
	assert.Nil(t, doc.Root().FindElement("header/static/BankPubKeyDigests"))
	require.NoError(t, VerifyDocument(doc, &testKeys(t)[1].PublicKey))
}

func TestBuilder_DownloadInitialisation(t *testing.T) {
	orderID := regexp.MustCompile(`^[A-Z][A-Z0-9]{3}$`)
	c53 := order.Order{
		Type:      "C53",
		DateRange: &order.DateRange{Start: testTime.AddDate(0, 0, -7), End: testTime},
	}

	t.Run("2.4 carries an order ID", func(t *testing.T) {
		data, err := newBuilder(t, version.V24).Build(Request{
			Order: order.Order{Type: "HAA"},
			Phase: PhaseInitialisation,
		})
		require.NoError(t, err)
		doc := parse(t, data)
		assert.Regexp(t, orderID, textAt(t, doc, "header/static/OrderDetails/OrderID"))
		assert.Equal(t, order.AttributeDZHNN, textAt(t, doc, "header/static/OrderDetails/OrderAttribute"))
	})

	t.Run("2.5 order type and date range", func(t *testing.T) {
		data, err := newBuilder(t, version.V25).Build(Request{Order: c53, Phase: PhaseInitialisation})
		require.NoError(t, err)
		doc := parse(t, data)
		assert.Equal(t, RootRequest, doc.Root().Tag)
		assert.Equal(t, "C53", textAt(t, doc, "header/static/OrderDetails/OrderType"))
		assert.Nil(t, doc.Root().FindElement("header/static/OrderDetails/OrderID"))
		assert.Equal(t, "2024-02-23", textAt(t, doc, "header/static/OrderDetails/StandardOrderParams/DateRange/Start"))
		assert.Equal(t, "Initialisation", textAt(t, doc, "header/mutable/TransactionPhase"))
		assert.Equal(t, "0000", textAt(t, doc, "header/static/SecurityMedium"))

		digest, err := security.PublicKeyDigest(&testKeys(t)[3].PublicKey)
		require.NoError(t, err)
		assert.Equal(t, codec.EncodeBase64(digest), textAt(t, doc, "header/static/BankPubKeyDigests/Authentication"))
		assert.Equal(t, "X002", doc.Root().FindElement("header/static/BankPubKeyDigests/Authentication").SelectAttrValue("Version", ""))
		assert.Equal(t, "go-ebics", textAt(t, doc, "header/static/Product"))

		require.NoError(t, VerifyDocument(doc, &testKeys(t)[1].PublicKey))
	})

	t.Run("3.0 BTD service", func(t *testing.T) {
		data, err := newBuilder(t, version.V30).Build(Request{Order: c53, Phase: PhaseInitialisation})
		require.NoError(t, err)
		doc := parse(t, data)
		details := "header/static/OrderDetails/"
		assert.Equal(t, "BTD", textAt(t, doc, details+"AdminOrderType"))
		assert.Equal(t, "EOP", textAt(t, doc, details+"BTDOrderParams/Service/ServiceName"))
		assert.Equal(t, "camt.053", textAt(t, doc, details+"BTDOrderParams/Service/MsgName"))
		assert.Equal(t, "2024-03-01", textAt(t, doc, details+"BTDOrderParams/DateRange/End"))
		require.NoError(t, VerifyDocument(doc, &testKeys(t)[1].PublicKey))
	})

	t.Run("3.0 admin order", func(t *testing.T) {
		data, err := newBuilder(t, version.V30).Build(Request{Order: order.Order{Type: "HAC"}, Phase: PhaseInitialisation})
		require.NoError(t, err)
		doc := parse(t, data)
		assert.Equal(t, "HAC", textAt(t, doc, "header/static/OrderDetails/AdminOrderType"))
	})
}

func TestBuilder_UploadInitialisation(t *testing.T) {
	data, err := newBuilder(t, version.V25).Build(Request{
		Order:          order.Order{Type: "FUL", FileFormat: "pain.001.001.03", CountryCode: "FR", WithES: true},
		Phase:          PhaseInitialisation,
		NumSegments:    3,
		SegmentNumber:  1,
		OrderData:      []byte("segment-1"),
		SignatureData:  []byte("signature"),
		TransactionKey: []byte("wrapped"),
	})
	require.NoError(t, err)

	doc := parse(t, data)
	details := "header/static/OrderDetails/"
	assert.Equal(t, order.AttributeOZHNN, textAt(t, doc, details+"OrderAttribute"))
	assert.Equal(t, "pain.001.001.03", textAt(t, doc, details+"FULOrderParams/FileFormat"))
	assert.Equal(t, "FR", doc.Root().FindElement(details+"FULOrderParams/FileFormat").SelectAttrValue("CountryCode", ""))
	assert.Equal(t, "3", textAt(t, doc, "header/static/NumSegments"))

	seg := doc.Root().FindElement("header/mutable/SegmentNumber")
	require.NotNil(t, seg)
	assert.Equal(t, "1", seg.Text())
	assert.Equal(t, "false", seg.SelectAttrValue("lastSegment", ""))

	assert.Equal(t, codec.EncodeBase64([]byte("wrapped")), textAt(t, doc, "body/DataTransfer/DataEncryptionInfo/TransactionKey"))
	assert.Equal(t, codec.EncodeBase64([]byte("signature")), textAt(t, doc, "body/DataTransfer/SignatureData"))
	assert.Equal(t, codec.EncodeBase64([]byte("segment-1")), textAt(t, doc, "body/DataTransfer/OrderData"))
	require.NoError(t, VerifyDocument(doc, &testKeys(t)[1].PublicKey))

	_, err = newBuilder(t, version.V25).Build(Request{
		Order: order.Order{Type: "FUL", FileFormat: "x"},
		Phase: PhaseInitialisation,
	})
	assert.Error(t, err, "upload without segments")
}

func TestBuilder_TransferAndReceipt(t *testing.T) {
	b := newBuilder(t, version.V25)

	data, err := b.Build(Request{
		Order:         order.Order{Type: "CCT"},
		Phase:         PhaseTransfer,
		TransactionID: "ABCDEF0123456789ABCDEF0123456789",
		SegmentNumber: 2,
		LastSegment:   true,
		OrderData:     []byte("segment-2"),
	})
	require.NoError(t, err)
	doc := parse(t, data)
	assert.Equal(t, "ABCDEF0123456789ABCDEF0123456789", textAt(t, doc, "header/static/TransactionID"))
	assert.Nil(t, doc.Root().FindElement("header/static/Nonce"))
	assert.Equal(t, "true", doc.Root().FindElement("header/mutable/SegmentNumber").SelectAttrValue("lastSegment", ""))
	assert.Equal(t, codec.EncodeBase64([]byte("segment-2")), textAt(t, doc, "body/DataTransfer/OrderData"))

	for _, tc := range []struct {
		ack  bool
		code string
	}{
		{true, ReceiptAcknowledged},
		{false, ReceiptNotAcknowledged},
	} {
		data, err := b.Build(Request{
			Order:         order.Order{Type: "HAC"},
			Phase:         PhaseReceipt,
			TransactionID: "ABCDEF0123456789ABCDEF0123456789",
			Acknowledged:  tc.ack,
		})
		require.NoError(t, err)
		doc := parse(t, data)
		assert.Equal(t, tc.code, textAt(t, doc, "body/TransferReceipt/ReceiptCode"))
		require.NoError(t, VerifyDocument(doc, &testKeys(t)[1].PublicKey))
	}

	_, err = b.Build(Request{Order: order.Order{Type: "HAC"}, Phase: PhaseReceipt})
	assert.Error(t, err)
}

func TestBuilder_Errors(t *testing.T) {
	t.Run("unsupported order type", func(t *testing.T) {
		_, err := newBuilder(t, version.V24).Build(Request{Order: order.Order{Type: "CCT"}, Phase: PhaseInitialisation})
		assert.True(t, returncode.IsKind(err, returncode.KindUnsupportedVersion))
	})

	t.Run("key management order", func(t *testing.T) {
		_, err := newBuilder(t, version.V25).Build(Request{Order: order.Order{Type: "INI"}, Phase: PhaseInitialisation})
		assert.True(t, returncode.IsKind(err, returncode.KindProtocol))
	})

	t.Run("bank keys unknown", func(t *testing.T) {
		b := NewBuilder(newRing(t, version.V25, false), testSubscriber)
		_, err := b.Build(Request{Order: order.Order{Type: "HAC"}, Phase: PhaseInitialisation})
		assert.True(t, returncode.IsKind(err, returncode.KindKeyRingState))
	})
}

// bankResponse renders an ebicsResponse signed with the bank X key
func bankResponse(t *testing.T, v version.Version, technical, business string, orderData []byte) []byte {
	t.Helper()
	doc := etree.NewDocument()
	root := doc.CreateElement(RootResponse)
	root.CreateAttr("xmlns", v.Profile().Namespace)
	root.CreateAttr("xmlns:ds", version.NamespaceDSig)
	header := root.CreateElement("header")
	header.CreateAttr("authenticate", "true")
	static := header.CreateElement("static")
	static.CreateElement("TransactionID").SetText("0123456789ABCDEF0123456789ABCDEF")
	static.CreateElement("NumSegments").SetText("2")
	mutable := header.CreateElement("mutable")
	mutable.CreateElement("TransactionPhase").SetText("Initialisation")
	seg := mutable.CreateElement("SegmentNumber")
	seg.CreateAttr("lastSegment", "false")
	seg.SetText("1")
	mutable.CreateElement("ReturnCode").SetText(technical)
	mutable.CreateElement("ReportText").SetText("[EBICS_OK] OK")
	root.CreateElement("AuthSignature")
	body := root.CreateElement("body")
	if orderData != nil {
		dt := body.CreateElement("DataTransfer")
		dt.CreateElement("DataEncryptionInfo").CreateElement("TransactionKey").SetText(codec.EncodeBase64([]byte("key")))
		dt.CreateElement("OrderData").SetText(codec.EncodeBase64(orderData))
	}
	rc := body.CreateElement("ReturnCode")
	rc.CreateAttr("authenticate", "true")
	rc.SetText(business)

	require.NoError(t, SignDocument(doc, testKeys(t)[3]))
	data, err := doc.WriteToBytes()
	require.NoError(t, err)
	return data
}

func TestParser_Parse(t *testing.T) {
	p := NewParser(newRing(t, version.V25, true))

	resp, err := p.Parse(bankResponse(t, version.V25, "000000", "000000", []byte("chunk")))
	require.NoError(t, err)
	assert.Equal(t, RootResponse, resp.Root)
	assert.Equal(t, PhaseInitialisation, resp.Phase)
	assert.Equal(t, "0123456789ABCDEF0123456789ABCDEF", resp.TransactionID)
	assert.Equal(t, 2, resp.NumSegments)
	assert.Equal(t, 1, resp.SegmentNumber)
	assert.False(t, resp.LastSegment)
	assert.Equal(t, []byte("key"), resp.TransactionKey)
	assert.Equal(t, []byte("chunk"), resp.OrderData)
	assert.NoError(t, resp.Err())
}

func TestParser_ReturnCodes(t *testing.T) {
	p := NewParser(newRing(t, version.V25, true))

	tests := []struct {
		name      string
		technical string
		business  string
		kind      returncode.Kind
	}{
		{"technical wins", "091002", "090005", returncode.KindKeyRingState},
		{"business no data", "000000", "090005", returncode.KindNoDataAvailable},
		{"unknown", "000000", "099999", returncode.KindProtocol},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := p.Parse(bankResponse(t, version.V25, tc.technical, tc.business, nil))
			require.NoError(t, err)
			assert.True(t, returncode.IsKind(resp.Err(), tc.kind), "got %v", resp.Err())
		})
	}
}

func TestParser_RejectsTamperedResponse(t *testing.T) {
	p := NewParser(newRing(t, version.V25, true))
	data := bankResponse(t, version.V25, "000000", "000000", nil)

	doc := parse(t, data)
	doc.Root().FindElement("header/static/TransactionID").SetText("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF")
	tampered, err := doc.WriteToBytes()
	require.NoError(t, err)

	_, err = p.Parse(tampered)
	assert.True(t, returncode.IsKind(err, returncode.KindAuthentication))
	assert.ErrorIs(t, err, security.ErrVerificationFailed)

	doc = parse(t, data)
	auth := doc.Root().SelectElement("AuthSignature")
	doc.Root().RemoveChild(auth)
	unsigned, err := doc.WriteToBytes()
	require.NoError(t, err)
	_, err = p.Parse(unsigned)
	assert.True(t, returncode.IsKind(err, returncode.KindAuthentication))

	assert.NoError(t, p.Verify(data))
}

func TestParser_Malformed(t *testing.T) {
	p := NewParser(newRing(t, version.V25, false))

	for _, data := range []string{
		"not xml <",
		"<other/>",
		"<ebicsKeyManagementResponse><header><mutable/></header></ebicsKeyManagementResponse>",
	} {
		_, err := p.Parse([]byte(data))
		assert.ErrorIs(t, err, ErrMalformedResponse, data)
	}
}

func TestParser_KeyManagementResponse(t *testing.T) {
	p := NewParser(newRing(t, version.V25, false))
	data := `<ebicsKeyManagementResponse xmlns="urn:org:ebics:H004">
<header authenticate="true"><static/><mutable><ReturnCode>000000</ReturnCode><ReportText>[EBICS_OK] OK</ReportText></mutable></header>
<body><ReturnCode authenticate="true">091002</ReturnCode></body>
</ebicsKeyManagementResponse>`

	resp, err := p.Parse([]byte(data))
	require.NoError(t, err)
	assert.ErrorIs(t, resp.Err(), returncode.ErrUserAlreadyActive)
}

func TestParseHEV(t *testing.T) {
	data := `<?xml version="1.0" encoding="UTF-8"?>
<ebicsHEVResponse xmlns="http://www.ebics.org/H000">
  <SystemReturnCode>
    <ReturnCode>000000</ReturnCode>
    <ReportText>[EBICS_OK] OK</ReportText>
  </SystemReturnCode>
  <VersionNumber ProtocolVersion="H003">02.40</VersionNumber>
  <VersionNumber ProtocolVersion="H004">02.50</VersionNumber>
  <VersionNumber ProtocolVersion="H009">09.00</VersionNumber>
</ebicsHEVResponse>`

	resp, err := ParseHEV([]byte(data))
	require.NoError(t, err)
	require.NoError(t, resp.Err())
	require.Len(t, resp.Versions, 3)
	assert.Equal(t, VersionInfo{Schema: "H004", Number: "02.50"}, resp.Versions[1])
	assert.Equal(t, []version.Version{version.V24, version.V25}, resp.Supported())

	_, err = ParseHEV([]byte(`<ebicsResponse/>`))
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestParser_DecryptOrderData(t *testing.T) {
	p := NewParser(newRing(t, version.V25, true))
	payload := []byte("<Document>statement</Document>")

	compressed, err := compression.NewCompressor().Compress(payload)
	require.NoError(t, err)
	key, err := security.NewTransactionKey()
	require.NoError(t, err)
	encrypted, err := security.EncryptOrderData(key, compressed)
	require.NoError(t, err)
	wrapped, err := security.WrapTransactionKey(&testKeys(t)[2].PublicKey, key)
	require.NoError(t, err)

	segments := codec.Split(encrypted, 7)
	got, err := p.DecryptOrderData(wrapped, segments)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	wrongKey, err := security.WrapTransactionKey(&testKeys(t)[4].PublicKey, key)
	require.NoError(t, err)
	_, err = p.DecryptOrderData(wrongKey, segments)
	assert.True(t, returncode.IsKind(err, returncode.KindAuthentication))
}

func TestParser_DecryptOrderDataMalformed(t *testing.T) {
	p := NewParser(newRing(t, version.V25, true))
	key, err := security.NewTransactionKey()
	require.NoError(t, err)
	wrapped, err := security.WrapTransactionKey(&testKeys(t)[2].PublicKey, key)
	require.NoError(t, err)

	t.Run("padding", func(t *testing.T) {
		// 16 bytes of plaintext are followed by a full block of padding
		// whose last byte is 16. Flipping bit 4 of the previous ciphertext
		// byte turns it into 0 under CBC.
		encrypted, err := security.EncryptOrderData(key, []byte("0123456789ABCDEF"))
		require.NoError(t, err)
		require.Len(t, encrypted, 32)
		encrypted[15] ^= 0x10

		_, err = p.DecryptOrderData(wrapped, [][]byte{encrypted})
		require.Error(t, err)
		assert.True(t, returncode.IsKind(err, returncode.KindProtocol))
		assert.ErrorIs(t, err, security.ErrInvalidCiphertext)
	})

	t.Run("compression", func(t *testing.T) {
		encrypted, err := security.EncryptOrderData(key, []byte("not a zlib stream"))
		require.NoError(t, err)

		_, err = p.DecryptOrderData(wrapped, [][]byte{encrypted})
		require.Error(t, err)
		assert.True(t, returncode.IsKind(err, returncode.KindProtocol))
	})
}
