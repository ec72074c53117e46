package larder

import "fmt"

// Redis key pattern helpers
//
// All keys and Pub/Sub channels are namespaced so several larder deployments
// can share one Redis server.
//
// Key pattern: larder:{namespace}:{entity}:...
// Channel pattern: larder:{namespace}:{event_type}_events

// EntryKey returns the Redis key for a cached entry.
// Pattern: larder:{namespace}:entry:{kind}:{subject_key}
func EntryKey(namespace string, kind Kind, subject Subject) string {
	return fmt.Sprintf("larder:%s:entry:%s:%s", namespace, kind, subject.Key())
}

// EntryScanPattern returns the SCAN pattern matching every entry key.
// Pattern: larder:{namespace}:entry:*
func EntryScanPattern(namespace string) string {
	return fmt.Sprintf("larder:%s:entry:*", namespace)
}

// UserEntryPattern returns the SCAN pattern matching a user's entries of one
// kind. An empty scope matches all roles and scopes; otherwise only entries
// scoped to scope match.
func UserEntryPattern(namespace string, kind Kind, userID, scope string) string {
	if scope == "" {
		return fmt.Sprintf("larder:%s:entry:%s:user:%s:*", namespace, kind, userID)
	}
	return fmt.Sprintf("larder:%s:entry:%s:user:%s:*:%s", namespace, kind, userID, scope)
}

// QuotaKey returns the Redis key for a quota counter hash.
// Pattern: larder:{namespace}:quota:{user_id}:{kind}
func QuotaKey(namespace, userID string, kind Kind) string {
	return fmt.Sprintf("larder:%s:quota:%s:%s", namespace, userID, kind)
}

// EntryEventsChannel returns the Pub/Sub channel for entry events.
// Pattern: larder:{namespace}:entry_events
func EntryEventsChannel(namespace string) string {
	return fmt.Sprintf("larder:%s:entry_events", namespace)
}
