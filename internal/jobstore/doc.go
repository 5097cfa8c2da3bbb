// Package jobstore owns the persistent representation of scheduled jobs.
//
// The store keeps an in-memory index over the full job set and writes it
// back as one versioned container ({"version":1,"jobs":[...]}), gated by a
// dirty flag. Two drivers exist: a JSON file with atomic tmp+rename writes
// plus a best-effort .bak sibling (the default), and a SQLite database
// holding the container in a kv table.
//
// The store has no write lock of its own beyond index consistency; the
// scheduler service is the single writer and serializes every Persist call.
package jobstore
