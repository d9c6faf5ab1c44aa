// Package service holds the document use cases: upload, listing, retrieval,
// metadata edits, deletion, bulk operations, statistics and task status.
//
// Every operation takes the authenticated *domain.Principal and scopes all
// reads and writes to its tenant. Documents of another tenant behave exactly
// like documents that do not exist.
//
// Mutations invalidate the tenant's cached listings and statistics after the
// store write has committed. Permission checks for routes live in the HTTP
// middleware; the service only re-checks the permission that depends on a
// request parameter (hard delete).
package service
