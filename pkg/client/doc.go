// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package client provides the main interface of an EBICS subscriber.

# Client Creation

	ring, err := keyring.New(version.V30, password)
	client, err := client.NewClient(&client.ClientConfig{
	    Subscriber: subscriber.Subscriber{HostID: "EBIXHOST", PartnerID: "PARTNER1", UserID: "USER1"},
	    KeyRing:    ring,
	    Transport:  transport.NewHTTPSClient(bankURL, nil),
	})

# Key Exchange

A new subscriber goes through INI, HIA and HPB once. Keys are generated on
demand, and the key ring should be persisted after every step:

	err = client.INI(ctx)
	err = client.HIA(ctx)
	letter, err := client.InitializationLetter() // send to the bank on paper
	keys, err := client.HPB(ctx)
	err = client.VerifyBankKeys(authHash, encHash) // hashes from the bank's letter

# Orders

Every order type has a named method; Download and Upload accept any order
of the catalogue in package order:

	statements, err := client.C53(ctx, &order.DateRange{Start: from, End: to})
	result, err := client.CCT(ctx, painDocument)

Order types the negotiated version does not support fail before any
request is sent.
*/
package client
