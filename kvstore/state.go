package kvstore

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/cyberinferno/go-abci/abci"
)

// ValidatorTxPrefix marks a transaction that changes a validator's power:
// "val:<hex ed25519 public key>!<power>".
const ValidatorTxPrefix = "val:"

var errEmptyTx = errors.New("empty transaction")

// tx is a parsed transaction: either a key/value write or a validator update.
type tx struct {
	key       string
	value     []byte
	validator *abci.ValidatorUpdate
}

// parseTx splits "key=value" into its parts. A transaction without "=" stores
// its own bytes under itself.
func parseTx(raw []byte) (tx, error) {
	if len(raw) == 0 {
		return tx{}, errEmptyTx
	}

	if rest, ok := bytes.CutPrefix(raw, []byte(ValidatorTxPrefix)); ok {
		return parseValidatorTx(rest)
	}

	key, value, ok := bytes.Cut(raw, []byte("="))
	if !ok {
		return tx{key: string(raw), value: bytes.Clone(raw)}, nil
	}
	if len(key) == 0 {
		return tx{}, errors.New("empty key")
	}

	return tx{key: string(key), value: bytes.Clone(value)}, nil
}

func parseValidatorTx(rest []byte) (tx, error) {
	keyHex, powerStr, ok := bytes.Cut(rest, []byte("!"))
	if !ok {
		return tx{}, errors.New("validator tx must be val:<pubkey>!<power>")
	}

	pubKey, err := hex.DecodeString(string(keyHex))
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		return tx{}, fmt.Errorf("invalid ed25519 public key %q", keyHex)
	}

	power, err := strconv.ParseInt(string(powerStr), 10, 64)
	if err != nil || power < 0 {
		return tx{}, fmt.Errorf("invalid validator power %q", powerStr)
	}

	update := abci.Ed25519ValidatorUpdate(pubKey, power)
	return tx{key: validatorKey(pubKey), validator: &update}, nil
}

// validatorKey is the state key holding a validator's power.
func validatorKey(pubKey []byte) string {
	return ValidatorTxPrefix + hex.EncodeToString(pubKey)
}

// hashState returns sha256 over the length-prefixed pairs in key order.
func hashState(state map[string][]byte) []byte {
	h := sha256.New()
	var n [binary.MaxVarintLen64]byte
	for _, k := range sortedKeys(state) {
		h.Write(n[:binary.PutUvarint(n[:], uint64(len(k)))])
		h.Write([]byte(k))
		v := state[k]
		h.Write(n[:binary.PutUvarint(n[:], uint64(len(v)))])
		h.Write(v)
	}

	return h.Sum(nil)
}

func sortedKeys(state map[string][]byte) []string {
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
