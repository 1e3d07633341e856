// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package transport carries EBICS requests to the bank.

The protocol engine only depends on the Transport interface: one request
in, one response out. HTTPSClient is the production implementation, an
HTTP POST of text/xml over TLS 1.2 or 1.3:

	client := transport.NewHTTPSClient("https://ebics.example.com/ebicsweb", &transport.HTTPSConfig{
	    MinTLSVersion: transport.TLS12,
	    RootCAs:       certPool,
	    Timeout:       30 * time.Second,
	})

	response, err := client.Send(ctx, request)

Func adapts a function, which is convenient for tests:

	var t transport.Transport = transport.Func(func(ctx context.Context, req []byte) ([]byte, error) {
	    return bank.Send(ctx, req)
	})

Failures to reach the bank and non-200 responses are reported as
returncode.KindTransport errors.

# TLS Configuration

For TLS 1.2, the following cipher suites are offered:
  - TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384
  - TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256
  - TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384
  - TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256
*/
package transport
