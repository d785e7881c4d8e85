package escrow

import (
	"encoding/binary"
	"errors"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Deterministic addressing: both the escrow record and its vault live at
// addresses that are pure functions of stable identifiers, so buyer, seller
// and any auditor can locate them without a directory service. The bump byte
// is searched downward from 255 until the candidate digest is provably not a
// secp256k1 point, guaranteeing the address is custody-capable: no private
// key can ever sign for it, only the ledger program moves its funds.

const (
	recordSeed = "escrow"
	vaultSeed  = "vault"
)

// ModuleAddress is the program identity mixed into every derivation.
var ModuleAddress = func() [20]byte {
	var addr [20]byte
	digest := ethcrypto.Keccak256([]byte("listchain/escrow/v1"))
	copy(addr[:], digest[12:])
	return addr
}()

var errBumpExhausted = errors.New("escrow: unable to derive custody address")

// DeriveRecordAddress computes the unique escrow record address and bump for
// the given (seller, id) pair. The derivation is pure and reproducible by any
// external observer.
func DeriveRecordAddress(seller [20]byte, id uint64) ([20]byte, uint8, error) {
	var idBytes [8]byte
	binary.LittleEndian.PutUint64(idBytes[:], id)
	return deriveAddress([]byte(recordSeed), seller[:], idBytes[:])
}

// VerifyRecordAddress reports whether addr/bump is the canonical derivation
// for (seller, id).
func VerifyRecordAddress(addr [20]byte, bump uint8, seller [20]byte, id uint64) bool {
	derived, derivedBump, err := DeriveRecordAddress(seller, id)
	if err != nil {
		return false
	}
	return derived == addr && derivedBump == bump
}

// DeriveVaultAddress computes the unique vault address for an escrow record
// and token mint.
func DeriveVaultAddress(record [20]byte, mint [20]byte) ([20]byte, uint8, error) {
	return deriveAddress([]byte(vaultSeed), record[:], mint[:])
}

func deriveAddress(seeds ...[]byte) ([20]byte, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		input := make([]byte, 0, 64)
		for _, seed := range seeds {
			input = append(input, seed...)
		}
		input = append(input, byte(bump))
		input = append(input, ModuleAddress[:]...)
		digest := ethcrypto.Keccak256(input)
		if liesOnCurve(digest) {
			continue
		}
		var addr [20]byte
		copy(addr[:], digest[12:])
		return addr, uint8(bump), nil
	}
	return [20]byte{}, 0, errBumpExhausted
}

// liesOnCurve reports whether the 32-byte digest is a valid secp256k1 X
// coordinate. Addresses are only custody-capable when derived from a digest
// that is NOT on the curve.
func liesOnCurve(digest []byte) bool {
	candidate := make([]byte, 33)
	candidate[0] = 0x02
	copy(candidate[1:], digest)
	_, err := ethcrypto.DecompressPubkey(candidate)
	return err == nil
}
