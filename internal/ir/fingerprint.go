package ir

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// Fingerprint returns a hex-encoded SHA-256 over the module's canonical
// textual rendering.
//
// Two modules have equal fingerprints exactly when they are structurally
// identical: same computations, instructions, names, shapes, layouts, and
// attributes. The rendering is NFC-normalized before hashing so that
// visually identical names arriving in different Unicode compositions
// (override files are operator-written text) cannot produce distinct
// fingerprints.
//
// Fingerprints key trace-store rows and back the canonicalization
// idempotence checks; they are not a semantic-equivalence oracle.
func Fingerprint(m *Module) string {
	normalized := norm.NFC.String(Print(m))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
