package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Key prefixes. InvalidateByPattern walks these, so every cached read uses
// one of the generators below rather than ad-hoc strings.
const (
	PrefixDatabaseQuery = "db:query:"
	PrefixNoteMetadata  = "note:metadata:"
	PrefixNoteStatus    = "note:status:"
	PrefixIngredient    = "ingredient:parse:"
)

// DatabaseQueryKey names a cached repository query, e.g. db:query:get_notes
func DatabaseQueryKey(name string) string {
	return PrefixDatabaseQuery + name
}

// NoteMetadataKey caches one note's metadata lookup
func NoteMetadataKey(noteID string) string {
	return PrefixNoteMetadata + noteID
}

// NoteStatusKey caches one note's completion status lookup
func NoteStatusKey(noteID string) string {
	return PrefixNoteStatus + noteID
}

// IngredientKey caches one ingredient reference's parse result. The
// reference is hashed so arbitrary text yields a stable, bounded key.
func IngredientKey(reference string) string {
	sum := sha256.Sum256([]byte(reference))
	return PrefixIngredient + hex.EncodeToString(sum[:])
}

// HashParams derives a stable 64-hex digest for parameterized queries.
// Params are JSON-marshaled first so equal values always hash equally.
func HashParams(params interface{}) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cache params: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// DatabaseQueryKeyWithParams names a parameterized query cache entry:
// db:query:<name>:<sha256-hex>
func DatabaseQueryKeyWithParams(name string, params interface{}) (string, error) {
	digest, err := HashParams(params)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s:%s", PrefixDatabaseQuery, name, digest), nil
}
