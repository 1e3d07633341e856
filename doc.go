// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package goebics implements the client side of EBICS (Electronic Banking
Internet Communication Standard) for exchanging payment and statement files
with banks.

# Overview

go-ebics builds, signs, encrypts, transmits and parses EBICS protocol
messages for versions 2.4 (H003), 2.5 (H004) and 3.0 (H005). It covers the
subscriber initialisation handshake (INI, HIA, HPB), version discovery (HEV)
and the segmented upload and download transactions used for business orders.

# Package Structure

The library is organized into the following packages:

	github.com/sirosfoundation/go-ebics/pkg/client      - High level client API
	github.com/sirosfoundation/go-ebics/pkg/transaction - Upload/download state machine
	github.com/sirosfoundation/go-ebics/pkg/message     - Request builder and response parser
	github.com/sirosfoundation/go-ebics/pkg/keyring     - Subscriber and bank keys, handshake state
	github.com/sirosfoundation/go-ebics/pkg/orderdata   - INI/HIA/HPB and UserSignatureData documents
	github.com/sirosfoundation/go-ebics/pkg/order       - Order type catalogue and 3.0 service descriptors
	github.com/sirosfoundation/go-ebics/pkg/security    - A005/A006, X002 and E002 primitives
	github.com/sirosfoundation/go-ebics/pkg/codec       - Canonical XML, base64 and segmentation
	github.com/sirosfoundation/go-ebics/pkg/compression - zlib order data compression
	github.com/sirosfoundation/go-ebics/pkg/returncode  - Return codes and error kinds
	github.com/sirosfoundation/go-ebics/pkg/transport   - HTTPS transport
	github.com/sirosfoundation/go-ebics/pkg/version     - Protocol versions

The ebics command in cmd/ebics drives the client from a YAML configuration
and keeps the keyring in a file or MongoDB.

# Quick Start

To initialise a subscriber and download statements:

	import (
	    "github.com/sirosfoundation/go-ebics/pkg/client"
	    "github.com/sirosfoundation/go-ebics/pkg/keyring"
	    "github.com/sirosfoundation/go-ebics/pkg/order"
	    "github.com/sirosfoundation/go-ebics/pkg/subscriber"
	    "github.com/sirosfoundation/go-ebics/pkg/transport"
	    "github.com/sirosfoundation/go-ebics/pkg/version"
	)

	ring, _ := keyring.New(version.V25, password)
	c, _ := client.NewClient(&client.ClientConfig{
	    Subscriber: subscriber.Subscriber{HostID: "EBIXHOST", PartnerID: "PARTNER1", UserID: "USER1"},
	    KeyRing:    ring,
	    Transport:  transport.NewHTTPSClient("https://bank.example.com/ebicsweb", nil),
	})

	_ = c.INI(ctx)
	_ = c.HIA(ctx)
	// send the printed letter to the bank and wait for activation
	_, _ = c.HPB(ctx)
	_ = c.VerifyBankKeys(authHashFromBankLetter, encHashFromBankLetter)

	result, err := c.C53(ctx, &order.DateRange{Start: from, End: to})

# Security Features

  - A005 (RSASSA-PKCS1-v1_5) and A006 (RSASSA-PSS) electronic signatures
  - X002 authentication signatures over canonical XML (RSA-SHA256)
  - E002 order data encryption (AES-128-CBC, RSA-wrapped transaction key)
  - Private keys sealed with scrypt-derived AES-GCM keys at rest
  - Bank keys are only trusted after comparison with the bank letter

# References

  - EBICS specification: https://www.ebics.org/en/technical-information/ebics-specification
  - Implementation guide (DK): https://www.ebics.de/de/datenformate

# License

BSD-2-Clause License
*/
package goebics
