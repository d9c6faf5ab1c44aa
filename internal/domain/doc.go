// Package domain contains the core business entities of the document
// platform: documents and their processing status machine, task records that
// track background processing attempts, API keys and the authenticated
// principal. It has no knowledge of storage or transport.
package domain
