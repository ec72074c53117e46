package larder

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Serialization helpers for converting between Go structs and Redis hashes.
//
// Timestamps are stored as Unix milliseconds. The subject, artifact and
// snapshot are JSON-encoded into single hash fields.

// EntryToHash converts an Entry to Redis hash format.
func EntryToHash(e *Entry) (map[string]interface{}, error) {
	subjectJSON, err := json.Marshal(e.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal subject: %w", err)
	}

	artifactJSON, err := json.Marshal(e.Artifact)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal artifact: %w", err)
	}

	snapshotJSON := ""
	if e.Snapshot != nil {
		encoded, err := json.Marshal(snapshotToMillis(e.Snapshot))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
		}
		snapshotJSON = string(encoded)
	}

	return map[string]interface{}{
		"id":             e.ID,
		"kind":           string(e.Kind),
		"subject":        string(subjectJSON),
		"artifact":       string(artifactJSON),
		"schema_version": e.Artifact.SchemaVersion,
		"created_at_ms":  e.CreatedAt.UnixMilli(),
		"expires_at_ms":  e.ExpiresAt.UnixMilli(),
		"snapshot":       snapshotJSON,
	}, nil
}

// HashToEntry converts a Redis hash to an Entry.
// An empty snapshot field decodes to a nil Snapshot.
func HashToEntry(hash map[string]string) (*Entry, error) {
	createdAt, err := strconv.ParseInt(hash["created_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at_ms field: %w", err)
	}

	expiresAt, err := strconv.ParseInt(hash["expires_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid expires_at_ms field: %w", err)
	}

	var subject Subject
	if err := json.Unmarshal([]byte(hash["subject"]), &subject); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subject: %w", err)
	}

	var artifact Artifact
	if err := json.Unmarshal([]byte(hash["artifact"]), &artifact); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifact: %w", err)
	}

	// Artifacts written before versioning carry no kind or schema_version
	if artifact.Kind == "" {
		artifact.Kind = Kind(hash["kind"])
	}
	if artifact.SchemaVersion == 0 {
		artifact.SchemaVersion = SchemaVersionLegacy
		if v, err := strconv.Atoi(hash["schema_version"]); err == nil && v > 0 {
			artifact.SchemaVersion = v
		}
	}

	var snapshot Snapshot
	if raw := hash["snapshot"]; raw != "" {
		var millis map[Source]int64
		if err := json.Unmarshal([]byte(raw), &millis); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		snapshot = snapshotFromMillis(millis)
	}

	return &Entry{
		ID:        hash["id"],
		Kind:      Kind(hash["kind"]),
		Subject:   subject,
		Artifact:  &artifact,
		CreatedAt: time.UnixMilli(createdAt).UTC(),
		ExpiresAt: time.UnixMilli(expiresAt).UTC(),
		Snapshot:  snapshot,
	}, nil
}

// QuotaCounterToHash converts a QuotaCounter to Redis hash format.
func QuotaCounterToHash(q *QuotaCounter) map[string]interface{} {
	return map[string]interface{}{
		"count":         q.Count,
		"last_reset_ms": q.LastReset.UnixMilli(),
	}
}

// HashToQuotaCounter converts a Redis hash to a QuotaCounter.
func HashToQuotaCounter(hash map[string]string) (*QuotaCounter, error) {
	count, err := strconv.Atoi(hash["count"])
	if err != nil {
		return nil, fmt.Errorf("invalid count field: %w", err)
	}

	lastReset, err := strconv.ParseInt(hash["last_reset_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid last_reset_ms field: %w", err)
	}

	return &QuotaCounter{
		Count:     count,
		LastReset: time.UnixMilli(lastReset).UTC(),
	}, nil
}

func snapshotToMillis(s Snapshot) map[Source]int64 {
	out := make(map[Source]int64, len(s))
	for src, t := range s {
		out[src] = t.UnixMilli()
	}
	return out
}

// snapshotFromMillis fills every known source, so a snapshot recorded before
// a source existed reads that source as Epoch.
func snapshotFromMillis(m map[Source]int64) Snapshot {
	s := NewSnapshot()
	for src, ms := range m {
		s[src] = time.UnixMilli(ms).UTC()
	}
	return s
}
