// Package crypto turns a shared secret into the key hosts encrypt their
// sessions with.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// KeySize is the length of derived keys, selecting AES-256.
const KeySize = 32

// keyIterations makes every guess at a secret cost a PBKDF2 run.
const keyIterations = 100_000

// Both ends must derive the same key without exchanging anything, so the
// salt is fixed per protocol version.
var keySalt = []byte("goenet session key v1")

// DeriveKey stretches secret into a KeySize key. Equal secrets give equal
// keys, so both ends only need to agree on the secret.
func DeriveKey(secret string) []byte {
	return pbkdf2.Key([]byte(secret), keySalt, keyIterations, KeySize, sha256.New)
}

// Fingerprint names a key in log output. It is expanded from the key with
// HKDF and reveals nothing the key could be recovered from.
func Fingerprint(key []byte) string {
	fp := make([]byte, 4)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, []byte("fingerprint")), fp); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(fp)
}
