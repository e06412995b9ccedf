package domain

import "dario.cat/mergo"

// CloneMetadata copies a metadata map, returning nil for empty input.
func CloneMetadata(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	cloned := make(map[string]string, len(metadata))
	for k, v := range metadata {
		cloned[k] = v
	}
	return cloned
}

// MergeMetadata lays updates over base without mutating either map. Renewals
// carry fresh annotations; keys the update does not mention keep their stored
// values.
func MergeMetadata(base, updates map[string]string) map[string]string {
	if len(base) == 0 {
		return CloneMetadata(updates)
	}
	merged := CloneMetadata(base)
	if len(updates) == 0 {
		return merged
	}
	if err := mergo.Merge(&merged, updates, mergo.WithOverride); err != nil {
		// mergo only fails on type mismatches, impossible for two
		// map[string]string values; fall back to manual override.
		for k, v := range updates {
			merged[k] = v
		}
	}
	return merged
}
