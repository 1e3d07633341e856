// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package compression provides order data compression for EBICS.

EBICS compresses order data before encryption and segmentation. The
compressed form is a zlib stream (RFC 1950), the format produced by the
reference implementations of the protocol.

# Compression

	compressor := compression.NewCompressor()
	compressed, err := compressor.Compress(orderData)

Decompress received order data:

	orderData, err := compressor.Decompress(compressed)

Malformed or truncated input is reported as an error. Output is bounded by
[DefaultMaxDecompressedSize]; use [Compressor.WithMaxSize] to change the
limit.

# References

  - ZLIB RFC 1950: https://datatracker.ietf.org/doc/html/rfc1950
*/
package compression
