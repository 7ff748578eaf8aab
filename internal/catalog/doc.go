// Package catalog persists catalog items and everything the pipeline derives
// from them in SQLite.
//
// Items carry four completeness flags (credits, keywords, scores, embeddings)
// owned by individual stages. Flags only ever move from false to true; the
// Store exposes no way to clear one. The lifecycle status column is derived
// from the flags, the metadata timestamp and the error kind on every write
// (see statusExpr), so "complete" can only be observed when all four flags
// are set. CompletenessViolations exists to catch rows written by anything
// other than this package.
//
// Link tables (genres, keywords, credits, mood scores) are written with
// upserts keyed on their natural primary keys, so every stage can be re-run
// without duplicating rows.
//
// Schema changes are new files under migrations/; applied versions are
// tracked in schema_migrations.
package catalog
