package otc

import ethcrypto "github.com/ethereum/go-ethereum/crypto"

var (
	offerSeed  = []byte("offer")
	escrowSeed = []byte("otc/escrow")
)

// OfferID derives the offer slot identity for a maker.
func OfferID(maker Address) [32]byte {
	var id [32]byte
	copy(id[:], ethcrypto.Keccak256(offerSeed, maker[:]))
	return id
}

// EscrowAddress derives the deterministic escrow owner for an offer slot.
func EscrowAddress(offerID [32]byte) Address {
	var out Address
	copy(out[:], ethcrypto.Keccak256(escrowSeed, offerID[:])[12:])
	return out
}
