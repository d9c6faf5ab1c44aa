// Package mocks provides centralized test doubles for the store, queue and
// auth interfaces.
//
// The stores are in-memory implementations that behave like the PostgreSQL
// ones (tenant scoping, keyset ordering, not-found errors) so service and
// pipeline tests can exercise real flows. Each method can be overridden with
// a function field when a test needs to inject a failure:
//
//	docs := mocks.NewDocumentStore()
//	docs.UpdateProcessingFn = func(ctx context.Context, d *domain.Document) error {
//	    return errors.New("connection reset")
//	}
package mocks
