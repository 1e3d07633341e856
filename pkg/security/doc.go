// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package security implements the cryptographic primitives of the EBICS
protocol.

Every subscriber holds three RSA key pairs: the signature key (A005 or
A006) used for the electronic signature over order data, the
authentication key (X002) used to sign the request envelope, and the
encryption key (E002) used by the bank to wrap transaction keys.

# Order Signatures

	sig, err := security.SignOrder(key, security.A005, payload)
	err = security.VerifyOrder(&key.PublicKey, security.A005, payload, sig)

A005 is RSASSA-PKCS1-v1_5 with SHA-256, A006 is RSASSA-PSS with SHA-256.
Verification fails closed: every malformed input yields an error.

# Authentication Signatures

The envelope signature is computed over the canonical form of
ds:SignedInfo:

	sig, err := security.SignAuth(key, signedInfoC14N)

# Order Data Encryption

Order data is encrypted with a fresh 128-bit AES transaction key in CBC
mode with a zero IV. The transaction key itself is wrapped with the
recipient's encryption key using RSAES-PKCS1-v1_5:

	key, _ := security.NewTransactionKey()
	ciphertext, err := security.EncryptOrderData(key, plain)
	wrapped, err := security.WrapTransactionKey(bankEncryptionKey, key)

# Public Key Digests

Requests reference the bank keys by digest. [PublicKeyDigest] computes the
digest over the hex encoded exponent and modulus; [CertificateDigest] is
used for EBICS 3.0 where keys are exchanged as certificates.

# References

  - EBICS specification: https://www.ebics.org/en/technical-information/ebics-specification
  - RFC 8017 (PKCS #1 v2.2): https://datatracker.ietf.org/doc/html/rfc8017
*/
package security
