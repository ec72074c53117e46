// Package larder provides type-safe Go definitions and Redis schema patterns
// for the larder result cache.
//
// # Overview
//
// Generated artifacts (compatibility scores, belief analyses, recommendation
// sets, dashboard insights and task verdicts) are slow and expensive to
// produce. larder keeps the last computed artifact per (kind, subject) in
// Redis together with the upstream freshness snapshot it was computed from,
// and keeps per-user daily quota counters alongside.
//
// # Core Concepts
//
// A Subject is either a single user or an ordered startup/investor pair
// viewed from one party's perspective. The pair seen from the other
// perspective is a different subject.
//
// An Entry wraps an Artifact with its creation time, an absolute logical
// expiry and, for kinds whose validity depends on upstream data, a Snapshot
// of source modification times. Sources without data are recorded as Epoch.
//
// A QuotaCounter counts generations per (user, kind) and resets on the first
// access of a new calendar day.
//
// # Usage Example
//
//	client, err := larder.NewClient(&redis.Options{Addr: "localhost:6379"}, "prod")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	subject := larder.Subject{StartupID: "s1", InvestorID: "i1", Perspective: larder.PerspectiveStartup}
//	entry, err := client.GetEntry(ctx, larder.KindBeliefAnalysis, subject)
//	if larder.IsNotFound(err) {
//		// compute and PutEntry
//	}
//
// # Redis Schema
//
// All Redis keys follow the pattern: larder:{namespace}:{entity}:...
//
// Entries: larder:{namespace}:entry:{kind}:{subject_key}
// Quota counters: larder:{namespace}:quota:{user_id}:{kind}
//
// Entry keys carry a Redis expiry of expires_at plus a retention window so
// expired entries can still be served as degraded responses.
//
// Pub/Sub channel: larder:{namespace}:entry_events
package larder
