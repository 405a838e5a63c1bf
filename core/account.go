package core

import "github.com/stellar/go/xdr"

// BaseAccount returns the G-address behind a plain or muxed account.
func BaseAccount(address string) (string, error) {
	muxed, err := xdr.AddressToMuxedAccount(address)
	if err != nil {
		return "", err
	}
	id := muxed.ToAccountId()
	return id.Address(), nil
}
