// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package message builds EBICS requests and reads bank responses.

# Requests

A Builder produces the four request envelopes of the protocol:

  - ebicsHEVRequest: version discovery, unsigned
  - ebicsUnsecuredRequest: INI and HIA, compressed order data only
  - ebicsNoPubKeyDigestsRequest: HPB, signed with the authentication key
  - ebicsRequest: every transaction phase of downloads and uploads

The envelope layout follows the version of the key ring: EBICS 2.4 and 2.5
address orders by OrderType and OrderAttribute, EBICS 3.0 by AdminOrderType
and a BTF service descriptor.

# Authentication

Every element carrying authenticate="true" is canonicalized (inclusive
C14N), concatenated in document order and digested with SHA-256. The
digest is referenced from ds:SignedInfo inside AuthSignature, and the
canonical SignedInfo is signed with the X002 key.

	b := message.NewBuilder(ring, sub)
	req, err := b.Build(message.Request{
	    Order: order.Order{Type: "HAC"},
	    Phase: message.PhaseInitialisation,
	})

# Responses

Parser.Parse reads ebicsResponse and ebicsKeyManagementResponse. Once the
bank keys are known, a response whose AuthSignature does not verify is
rejected. Response.Err classifies the technical and business return codes.
*/
package message
