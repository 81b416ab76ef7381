package changeset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
)

// Domain prefixes for content-addressed identity. The version suffix
// enables future algorithm migration without ID collisions.
const (
	DomainChangeset = "strata/changeset/v1"
	DomainTree      = "strata/tree/v1"
)

// hashWithDomain computes SHA-256 with domain separation. The null byte
// separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ComputeID derives the content-addressed ID of a draft. Two drafts
// with identical parents, metadata, and file changes hash to the same
// ID regardless of map iteration order.
func ComputeID(d Draft) (ID, error) {
	parents := make([]any, len(d.Parents))
	for i, p := range d.Parents {
		parents[i] = string(p)
	}

	paths := make([]string, 0, len(d.Files))
	for p := range d.Files {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	files := make([]any, 0, len(paths))
	for _, p := range paths {
		fc := d.Files[p]
		entry := map[string]any{
			"path":    p,
			"deleted": fc.Deleted,
			"flags":   fc.Flags,
			// Hex keeps arbitrary bytes representable in canonical JSON.
			"content": hex.EncodeToString(fc.Content),
		}
		if fc.CopyFrom != "" {
			entry["copy_from"] = fc.CopyFrom
		}
		files = append(files, entry)
	}

	extra := make(map[string]any, len(d.Extra))
	for k, v := range d.Extra {
		extra[k] = v
	}

	obj := map[string]any{
		"parents": parents,
		"message": d.Message,
		"user":    d.User,
		"date":    d.Date,
		"extra":   extra,
		"files":   files,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ComputeID: failed to marshal: %w", err)
	}
	return ID(hashWithDomain(DomainChangeset, canonical)), nil
}

// MustComputeID is like ComputeID but panics on error. Use only in
// tests or when inputs are known to be valid.
func MustComputeID(d Draft) ID {
	id, err := ComputeID(d)
	if err != nil {
		panic(err)
	}
	return id
}
