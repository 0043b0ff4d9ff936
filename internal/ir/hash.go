package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainState  = "planstate/state/v1"
	DomainObject = "planstate/object/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest canonicalizes data and hashes it under domain.
func Digest(domain string, data []byte) (string, error) {
	canonical, err := Canonicalize(data)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	return hashWithDomain(domain, canonical), nil
}

// StateDigest identifies a serialized state. Two wire forms that differ
// only in key order or whitespace share a digest.
func StateDigest(wire []byte) (string, error) {
	return Digest(DomainState, wire)
}

// ObjectDigest identifies a serialized value payload.
func ObjectDigest(payload []byte) (string, error) {
	return Digest(DomainObject, payload)
}
