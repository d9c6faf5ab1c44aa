// Package store defines the persistence interfaces for documents, task
// records and API keys, together with the shared error values and the
// transaction helper used by the Postgres implementations.
//
// Every tenant-facing read takes the tenant ID explicitly; there is no
// ambient tenant in the context.
package store
