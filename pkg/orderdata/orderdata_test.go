package orderdata

import (
	"crypto/rsa"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/pkg/keyring"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/subscriber"
	"github.com/sirosfoundation/go-ebics/pkg/version"
)

var (
	keysOnce sync.Once
	keys     []*rsa.PrivateKey
)

func testKeys(t *testing.T) []*rsa.PrivateKey {
	t.Helper()
	keysOnce.Do(func() {
		for i := 0; i < 3; i++ {
			k, err := security.GenerateKeyPair(0)
			if err != nil {
				panic(err)
			}
			keys = append(keys, k)
		}
	})
	return keys
}

var testSubscriber = subscriber.Subscriber{HostID: "EBIXHOST", PartnerID: "PARTNER1", UserID: "USER1"}

var testTime = time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

func newRing(t *testing.T, v version.Version) *keyring.KeyRing {
	t.Helper()
	ring, err := keyring.New(v, "secret", keyring.WithKDFCost(16))
	require.NoError(t, err)
	ks := testKeys(t)
	require.NoError(t, ring.ImportKey(keyring.KeySignature, ks[0], nil))
	require.NoError(t, ring.ImportKey(keyring.KeyAuthentication, ks[1], nil))
	require.NoError(t, ring.ImportKey(keyring.KeyEncryption, ks[2], nil))
	return ring
}

func parse(t *testing.T, data []byte) *etree.Document {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(data))
	return doc
}

func TestBuildINI_V25(t *testing.T) {
	ring := newRing(t, version.V25)
	data, err := BuildINI(ring, testSubscriber, testTime)
	require.NoError(t, err)

	doc := parse(t, data)
	root := doc.Root()
	assert.Equal(t, "SignaturePubKeyOrderData", root.Tag)
	assert.Equal(t, version.NamespaceS001, root.SelectAttrValue("xmlns", ""))

	assert.Equal(t, "A005", doc.FindElement("//SignaturePubKeyInfo/SignatureVersion").Text())
	assert.Equal(t, "2024-03-01T10:30:00Z", doc.FindElement("//PubKeyValue/TimeStamp").Text())
	assert.Equal(t, "PARTNER1", doc.FindElement("//PartnerID").Text())
	assert.Equal(t, "USER1", doc.FindElement("//UserID").Text())
	assert.Nil(t, doc.FindElement("//X509Data"))

	modulus := doc.FindElement("//PubKeyValue/RSAKeyValue/Modulus").Text()
	assert.Equal(t, base64.StdEncoding.EncodeToString(testKeys(t)[0].N.Bytes()), modulus)
	assert.Equal(t, "AQAB", doc.FindElement("//RSAKeyValue/Exponent").Text())
}

func TestBuildINI_V30(t *testing.T) {
	ring := newRing(t, version.V30)
	data, err := BuildINI(ring, testSubscriber, testTime)
	require.NoError(t, err)

	doc := parse(t, data)
	assert.Equal(t, version.NamespaceS002, doc.Root().SelectAttrValue("xmlns", ""))
	assert.Equal(t, "A006", doc.FindElement("//SignatureVersion").Text())
	assert.NotNil(t, doc.FindElement("//X509Data/X509Certificate"))
	assert.Nil(t, doc.FindElement("//PubKeyValue"))
}

func TestBuildHIA(t *testing.T) {
	for _, v := range version.All() {
		t.Run(v.String(), func(t *testing.T) {
			ring := newRing(t, v)
			data, err := BuildHIA(ring, testSubscriber, testTime)
			require.NoError(t, err)

			doc := parse(t, data)
			assert.Equal(t, "HIARequestOrderData", doc.Root().Tag)
			assert.Equal(t, v.Profile().Namespace, doc.Root().SelectAttrValue("xmlns", ""))
			assert.Equal(t, "X002", doc.FindElement("//AuthenticationPubKeyInfo/AuthenticationVersion").Text())
			assert.Equal(t, "E002", doc.FindElement("//EncryptionPubKeyInfo/EncryptionVersion").Text())
		})
	}
}

func TestBuildINI_MissingKey(t *testing.T) {
	ring, err := keyring.New(version.V25, "secret", keyring.WithKDFCost(16))
	require.NoError(t, err)

	_, err = BuildINI(ring, testSubscriber, testTime)
	assert.Error(t, err)
	_, err = BuildHIA(ring, testSubscriber, testTime)
	assert.Error(t, err)
}

func TestHPB_RoundTrip(t *testing.T) {
	ks := testKeys(t)

	t.Run("raw keys", func(t *testing.T) {
		x := keyring.NewSignature(&ks[1].PublicKey, nil)
		e := keyring.NewSignature(&ks[2].PublicKey, nil)
		data, err := BuildHPB(version.V25, "EBIXHOST", x, e, testTime)
		require.NoError(t, err)

		bank, err := ParseHPB(version.V25, data)
		require.NoError(t, err)
		assert.Equal(t, "EBIXHOST", bank.HostID)
		assert.Equal(t, x, bank.Authentication)
		assert.Equal(t, e, bank.Encryption)

		_, err = ParseHPB(version.V30, data)
		assert.ErrorIs(t, err, ErrCertificateRequired)
	})

	t.Run("certificates", func(t *testing.T) {
		ring := newRing(t, version.V30)
		x, err := ring.UserSignature(keyring.KeyAuthentication)
		require.NoError(t, err)
		e, err := ring.UserSignature(keyring.KeyEncryption)
		require.NoError(t, err)

		data, err := BuildHPB(version.V30, "EBIXHOST", x, e, testTime)
		require.NoError(t, err)

		for _, v := range []version.Version{version.V25, version.V30} {
			bank, err := ParseHPB(v, data)
			require.NoError(t, err)
			assert.Equal(t, x.Certificate, bank.Authentication.Certificate)
			assert.Equal(t, e.Modulus, bank.Encryption.Modulus)
		}
	})
}

func TestParseHPB_Fixture(t *testing.T) {
	modulus := base64.StdEncoding.EncodeToString(testKeys(t)[1].N.Bytes())
	fixture := `<?xml version="1.0" encoding="UTF-8"?>
<HPBResponseOrderData xmlns="urn:org:ebics:H004" xmlns:ds="http://www.w3.org/2000/09/xmldsig#">
  <AuthenticationPubKeyInfo>
    <PubKeyValue>
      <ds:RSAKeyValue>
        <ds:Modulus>` + modulus + `</ds:Modulus>
        <ds:Exponent>AQAB</ds:Exponent>
      </ds:RSAKeyValue>
    </PubKeyValue>
    <AuthenticationVersion>X002</AuthenticationVersion>
  </AuthenticationPubKeyInfo>
  <EncryptionPubKeyInfo>
    <PubKeyValue>
      <ds:RSAKeyValue>
        <ds:Modulus>` + modulus + `</ds:Modulus>
        <ds:Exponent>AQAB</ds:Exponent>
      </ds:RSAKeyValue>
    </PubKeyValue>
    <EncryptionVersion>E002</EncryptionVersion>
  </EncryptionPubKeyInfo>
  <HostID>EBIXHOST</HostID>
</HPBResponseOrderData>`

	bank, err := ParseHPB(version.V25, []byte(fixture))
	require.NoError(t, err)
	pub, err := bank.Authentication.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, 65537, pub.E)
	assert.Equal(t, 0, pub.N.Cmp(testKeys(t)[1].N))
}

func TestParseHPB_Malformed(t *testing.T) {
	_, err := ParseHPB(version.V25, []byte("<not-xml"))
	assert.Error(t, err)

	_, err = ParseHPB(version.V25, []byte(`<HPBResponseOrderData xmlns="urn:org:ebics:H004"/>`))
	assert.Error(t, err)

	_, err = ParseHPB(version.V25, []byte(`<HPBResponseOrderData xmlns="urn:org:ebics:H004">
<AuthenticationPubKeyInfo><PubKeyValue/></AuthenticationPubKeyInfo>
<EncryptionPubKeyInfo><PubKeyValue/></EncryptionPubKeyInfo></HPBResponseOrderData>`))
	assert.Error(t, err)
}

func TestUserSignature_RoundTrip(t *testing.T) {
	value := []byte{1, 2, 3, 4}
	data, err := BuildUserSignature(version.V25, testSubscriber, value)
	require.NoError(t, err)

	doc := parse(t, data)
	assert.Equal(t, version.NamespaceS001, doc.Root().SelectAttrValue("xmlns", ""))

	sig, err := ParseUserSignature(data)
	require.NoError(t, err)
	assert.Equal(t, security.A005, sig.Version)
	assert.Equal(t, value, sig.Value)
	assert.Equal(t, "PARTNER1", sig.PartnerID)
	assert.Equal(t, "USER1", sig.UserID)

	data, err = BuildUserSignature(version.V30, testSubscriber, value)
	require.NoError(t, err)
	sig, err = ParseUserSignature(data)
	require.NoError(t, err)
	assert.Equal(t, security.A006, sig.Version)

	_, err = ParseUserSignature([]byte("<UserSignatureData/>"))
	assert.Error(t, err)
}

func TestParseINIAndHIA(t *testing.T) {
	for _, v := range version.All() {
		t.Run(v.String(), func(t *testing.T) {
			ring := newRing(t, v)

			ini, err := BuildINI(ring, testSubscriber, testTime)
			require.NoError(t, err)
			keys, err := ParseINI(v, ini)
			require.NoError(t, err)
			assert.Equal(t, "PARTNER1", keys.PartnerID)
			assert.Equal(t, "USER1", keys.UserID)
			assert.Equal(t, testKeys(t)[0].N.Bytes(), keys.Signature.Modulus)

			hia, err := BuildHIA(ring, testSubscriber, testTime)
			require.NoError(t, err)
			keys, err = ParseHIA(v, hia)
			require.NoError(t, err)
			assert.Equal(t, testKeys(t)[1].N.Bytes(), keys.Authentication.Modulus)
			assert.Equal(t, testKeys(t)[2].N.Bytes(), keys.Encryption.Modulus)
		})
	}
}

func TestParseHIA_MissingInfo(t *testing.T) {
	_, err := ParseHIA(version.V25, []byte(`<HIARequestOrderData/>`))
	assert.Error(t, err)
	_, err = ParseINI(version.V25, []byte(`not xml`))
	assert.Error(t, err)
}
