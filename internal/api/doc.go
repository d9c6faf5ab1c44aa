// Package api adapts HTTP requests to the document service: multipart
// uploads, cursor listings, bulk operations and task status. Handlers read
// the authenticated principal from the request context, map service errors
// to status codes through MapErrorToStatusCode and never return internal
// error text to clients.
package api
