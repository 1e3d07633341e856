// Package codec converts between the byte forms EBICS moves over the wire:
// canonical XML, base64 framed order data and transfer segments.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/leifj/signedxml"
)

// AlgorithmC14N is inclusive canonical XML 1.0 without comments
const AlgorithmC14N = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"

// AuthenticatePath selects the elements covered by the authentication
// signature
const AuthenticatePath = "//*[@authenticate='true']"

// ErrNothingToAuthenticate is returned when a document carries no element
// marked for authentication
var ErrNothingToAuthenticate = errors.New("no element marked authenticate=\"true\"")

// Canonicalize returns the canonical form of el. Namespace declarations in
// scope on ancestors of el are carried into the output, so the result is
// the same whether el is canonicalized alone or as part of its document.
func Canonicalize(el *etree.Element, algorithm string) ([]byte, error) {
	if el == nil {
		return nil, errors.New("canonicalize: nil element")
	}
	alg, ok := signedxml.CanonicalizationAlgorithms[algorithm]
	if !ok {
		return nil, fmt.Errorf("canonicalize: unsupported algorithm %s", algorithm)
	}

	detached := el.Copy()
	declareInherited(detached, el)

	doc := etree.NewDocument()
	doc.SetRoot(detached)
	raw, err := doc.WriteToString()
	if err != nil {
		return nil, fmt.Errorf("canonicalize: serializing element: %w", err)
	}

	out, err := alg.Process(raw, "")
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return []byte(out), nil
}

// declareInherited copies the namespace declarations visible at src onto dst
func declareInherited(dst, src *etree.Element) {
	for p := src.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			isDecl := (a.Space == "" && a.Key == "xmlns") || a.Space == "xmlns"
			if !isDecl {
				continue
			}
			if dst.SelectAttr(a.FullKey()) != nil {
				continue
			}
			dst.CreateAttr(a.FullKey(), a.Value)
		}
	}
}

// AuthenticatedBytes concatenates the canonical forms of every element
// carrying authenticate="true", in document order
func AuthenticatedBytes(doc *etree.Document, algorithm string) ([]byte, error) {
	elements := doc.FindElements(AuthenticatePath)
	if len(elements) == 0 {
		return nil, ErrNothingToAuthenticate
	}

	var out []byte
	for _, el := range elements {
		c14n, err := Canonicalize(el, algorithm)
		if err != nil {
			return nil, err
		}
		out = append(out, c14n...)
	}
	return out, nil
}

// EncodeBase64 frames binary data for an XML text node
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 reverses EncodeBase64. Whitespace inserted by line wrapping
// is ignored.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding base64: %w", err)
	}
	return data, nil
}
