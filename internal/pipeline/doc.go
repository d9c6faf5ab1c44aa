// Package pipeline turns uploaded documents into processed ones.
//
// A processing job moves a document from pending through processing to
// completed or failed, extracting text with the format's extractor and
// recording each attempt in a task record. Failed attempts are retried with
// exponential backoff up to a fixed cap. A periodic sweep fails documents
// that have been processing too long and re-enqueues documents whose job was
// never queued.
package pipeline
