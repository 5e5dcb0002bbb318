package state

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"otcpool/native/otc"
)

// Keys keep a readable prefix so the store can be scanned per record type;
// the suffix is either an existing hash or keccak of the identifying data.
var (
	poolKey       = []byte("otc/pool")
	offerPrefix   = []byte("otc/offer/")
	balancePrefix = []byte("otc/balance/")
	escrowPrefix  = []byte("otc/escrow/")
)

func prefixed(prefix, suffix []byte) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return buf
}

func offerKey(id [32]byte) []byte {
	return prefixed(offerPrefix, id[:])
}

func balanceKey(acct otc.Account) []byte {
	return prefixed(balancePrefix, ethcrypto.Keccak256(acct.Owner[:], acct.Mint[:]))
}

func escrowKey(owner otc.Address) []byte {
	return prefixed(escrowPrefix, owner[:])
}
