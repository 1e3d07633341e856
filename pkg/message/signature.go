package message

import (
	"bytes"
	"crypto/rsa"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-ebics/pkg/codec"
	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// referenceURI selects every element marked for authentication
const referenceURI = "#xpointer(" + codec.AuthenticatePath + ")"

// SignDocument fills the AuthSignature element of doc with an X002
// signature over all elements marked authenticate="true". The
// AuthSignature element must already be present, empty, at its schema
// position.
func SignDocument(doc *etree.Document, key *rsa.PrivateKey) error {
	authSig := doc.Root().SelectElement("AuthSignature")
	if authSig == nil {
		return fmt.Errorf("sign: missing AuthSignature element")
	}
	for _, child := range authSig.ChildElements() {
		authSig.RemoveChild(child)
	}

	authenticated, err := codec.AuthenticatedBytes(doc, codec.AlgorithmC14N)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}

	signedInfo := authSig.CreateElement("ds:SignedInfo")
	signedInfo.CreateElement("ds:CanonicalizationMethod").CreateAttr("Algorithm", security.AlgorithmC14N)
	signedInfo.CreateElement("ds:SignatureMethod").CreateAttr("Algorithm", security.AlgorithmRSASHA256)
	ref := signedInfo.CreateElement("ds:Reference")
	ref.CreateAttr("URI", referenceURI)
	ref.CreateElement("ds:Transforms").CreateElement("ds:Transform").CreateAttr("Algorithm", security.AlgorithmC14N)
	ref.CreateElement("ds:DigestMethod").CreateAttr("Algorithm", security.AlgorithmSHA256)
	ref.CreateElement("ds:DigestValue").SetText(codec.EncodeBase64(security.Digest(authenticated)))

	c14n, err := codec.Canonicalize(signedInfo, codec.AlgorithmC14N)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	sig, err := security.SignAuth(key, c14n)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	authSig.CreateElement("ds:SignatureValue").SetText(codec.EncodeBase64(sig))
	return nil
}

// VerifyDocument checks the AuthSignature of doc against pub. It fails
// closed: a missing or malformed signature is an error.
func VerifyDocument(doc *etree.Document, pub *rsa.PublicKey) error {
	authSig := doc.Root().SelectElement("AuthSignature")
	if authSig == nil {
		return fmt.Errorf("%w: missing AuthSignature", security.ErrVerificationFailed)
	}
	signedInfo := authSig.SelectElement("SignedInfo")
	sigValue := authSig.SelectElement("SignatureValue")
	if signedInfo == nil || sigValue == nil {
		return fmt.Errorf("%w: incomplete AuthSignature", security.ErrVerificationFailed)
	}

	ref := signedInfo.SelectElement("Reference")
	if ref == nil || ref.SelectAttrValue("URI", "") != referenceURI {
		return fmt.Errorf("%w: unexpected reference", security.ErrVerificationFailed)
	}
	digestEl := ref.SelectElement("DigestValue")
	if digestEl == nil {
		return fmt.Errorf("%w: missing digest", security.ErrVerificationFailed)
	}
	expected, err := codec.DecodeBase64(digestEl.Text())
	if err != nil {
		return fmt.Errorf("%w: %v", security.ErrVerificationFailed, err)
	}

	authenticated, err := codec.AuthenticatedBytes(doc, codec.AlgorithmC14N)
	if err != nil {
		return fmt.Errorf("%w: %v", security.ErrVerificationFailed, err)
	}
	if !bytes.Equal(security.Digest(authenticated), expected) {
		return fmt.Errorf("%w: digest mismatch", security.ErrVerificationFailed)
	}

	c14n, err := codec.Canonicalize(signedInfo, codec.AlgorithmC14N)
	if err != nil {
		return fmt.Errorf("%w: %v", security.ErrVerificationFailed, err)
	}
	sig, err := codec.DecodeBase64(strings.TrimSpace(sigValue.Text()))
	if err != nil {
		return fmt.Errorf("%w: %v", security.ErrVerificationFailed, err)
	}
	return security.VerifyAuth(pub, c14n, sig)
}
