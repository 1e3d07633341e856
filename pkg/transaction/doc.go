// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package transaction runs EBICS download and upload transactions.

An Engine drives one transaction through its phases and then refuses
further work; callers create a fresh engine per order.

# Downloads

	Initialisation -> Transfer 2..N -> Receipt

The bank announces the number of segments in its initialisation response
and returns the first segment with it. The engine requests every further
segment by number, checks that the bank echoes the transaction ID and the
segment number, decrypts the joined segments and answers with a receipt.
The receipt acknowledges the data unless DownloadOptions.Acknowledge
declines it; a declined download is reported in the result, not as an
error.

# Uploads

	Initialisation (segment 1) -> Transfer 2..N

The payload is signed with the subscriber's signature key, compressed,
encrypted under a fresh transaction key and split into segments of at most
1 MiB, or the size set with WithMaxSegmentSize. Uploads have no receipt
phase.

# Errors

Transport errors are returned exactly as the transport reported them.
Return codes are classified by package returncode. A transaction ID that
changes mid-transaction, or a bank that discards the transaction
(091101, 091102), ends it without retry.
*/
package transaction
