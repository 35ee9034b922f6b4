package cache

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/muninndb/muninn/pkg/functions"
	"github.com/muninndb/muninn/pkg/record"
)

var json = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// Key identifies one cached function result. Two invocations share a key
// exactly when they invoke the same function version with equal arguments.
type Key struct {
	Signature   functions.Signature
	Fingerprint uint64
}

// String returns a short printable form of the key, suitable for log lines.
func (k Key) String() string {
	return fmt.Sprintf("%s/%016x", k.Signature, k.Fingerprint)
}

// KeyFor derives the cache key for invoking sig with args. Arguments are
// serialized deterministically before hashing, so equal argument lists always
// map to the same key.
func KeyFor(sig functions.Signature, args []record.Value) (Key, error) {
	buf, err := json.Marshal(args)
	if err != nil {
		return Key{}, fmt.Errorf("fingerprinting arguments: %w", err)
	}
	return Key{Signature: sig, Fingerprint: xxhash.Sum64(buf)}, nil
}

// encode renders the key in its persistent-store form: the signature string,
// a zero byte, then the big-endian fingerprint. All keys of one signature
// share a common prefix, which bulk deletion relies on.
func (k Key) encode() []byte {
	sig := k.Signature.String()
	buf := make([]byte, 0, len(sig)+9)
	buf = append(buf, sig...)
	buf = append(buf, 0)
	return binary.BigEndian.AppendUint64(buf, k.Fingerprint)
}

// signaturePrefix returns the store-key prefix shared by every key derived
// from sig.
func signaturePrefix(sig functions.Signature) []byte {
	s := sig.String()
	buf := make([]byte, 0, len(s)+1)
	buf = append(buf, s...)
	return append(buf, 0)
}

// size estimates the memory held by one cached entry, key included.
func (k Key) size() uint64 {
	return uint64(len(k.Signature.Name)+len(k.Signature.Version)) + 8
}
