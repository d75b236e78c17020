package contract

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Validate checks that parsed exposes every call and event kind depends on.
// Methods are matched by selector, so overloads and renamed Go identifiers
// do not matter.
func Validate(kind BuiltinKind, parsed abi.ABI) error {
	var missingCalls, missingEvents []string

	for _, sig := range kind.RequiredCalls {
		sel, err := hex.DecodeString(strings.TrimPrefix(Selector(sig), "0x"))
		if err != nil {
			return err
		}
		if _, err := parsed.MethodById(sel); err != nil {
			missingCalls = append(missingCalls, sig)
		}
	}
	for _, sig := range kind.RequiredEvents {
		if _, err := parsed.EventByID(common.BytesToHash(keccak(sig))); err != nil {
			missingEvents = append(missingEvents, sig)
		}
	}

	if len(missingCalls) > 0 || len(missingEvents) > 0 {
		return &IncompatibleContractError{
			Contract:       kind.ID,
			MissingMethods: missingCalls,
			MissingEvents:  missingEvents,
		}
	}
	return nil
}

// Selector returns the 4-byte function selector of a canonical signature.
func Selector(sig string) string {
	return "0x" + hex.EncodeToString(keccak(sig)[:4])
}

// RoleID returns the AccessControl role identifier keccak256(name).
func RoleID(name string) common.Hash {
	return common.BytesToHash(keccak(name))
}

func keccak(s string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(s))
	return h.Sum(nil)
}
