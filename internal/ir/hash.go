package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainTrace prefixes trace digests. The version suffix allows the
// digest algorithm to change without colliding with old values.
const DomainTrace = "thinker/trace/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TraceDigest hashes an event log. Two logs with the same events in the
// same order produce the same digest, whatever their run IDs.
func TraceDigest(events []Event) (string, error) {
	list := make([]any, len(events))
	for i, e := range events {
		list[i] = e.CanonicalMap()
	}

	canonical, err := MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("trace digest: %w", err)
	}

	return hashWithDomain(DomainTrace, canonical), nil
}
