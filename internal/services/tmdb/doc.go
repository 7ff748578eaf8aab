// Package tmdb is the metadata provider client.
//
// All requests go through apiclient, so they share its throttle, quota and
// error classification. Detail records are fetched with their credits,
// keywords, external IDs and videos appended in one round trip; those nested
// blocks are decoded lazily so a malformed block surfaces as
// services.ErrDataQuality without losing the rest of the record.
package tmdb
