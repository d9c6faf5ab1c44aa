package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/docintel-api/internal/domain"
	"github.com/phrazzld/docintel-api/internal/platform/logger"
	"github.com/phrazzld/docintel-api/internal/store"
)

// MaxBulkDocuments caps the IDs of one bulk request.
const MaxBulkDocuments = 100

// NotFoundOrDenied is reported for IDs that do not exist or belong to
// another tenant.
const NotFoundOrDenied = "Document not found or access denied"

// BulkAction names an operation applied to every document of a request.
type BulkAction string

// Supported bulk actions.
const (
	BulkDelete    BulkAction = "delete"
	BulkArchive   BulkAction = "archive"
	BulkRestore   BulkAction = "restore"
	BulkReprocess BulkAction = "reprocess"
)

// bulkUpdatableFields are the only fields BulkUpdate may change.
var bulkUpdatableFields = map[string]bool{"is_public": true, "title": true, "description": true}

// BulkError describes why one document was skipped or failed.
type BulkError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BulkResult reports a bulk request item by item. Partial success is normal
// and not an error of the request.
type BulkResult struct {
	TotalRequested int         `json:"total_requested"`
	Succeeded      int         `json:"succeeded"`
	Failed         int         `json:"failed"`
	Skipped        int         `json:"skipped"`
	Errors         []BulkError `json:"errors"`
}

func (r *BulkResult) skip(id, reason string) {
	r.Skipped++
	r.Errors = append(r.Errors, BulkError{ID: id, Error: reason})
}

func (r *BulkResult) fail(id string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, BulkError{ID: id, Error: err.Error()})
}

func checkBulkSize(ids []string) error {
	if len(ids) == 0 || len(ids) > MaxBulkDocuments {
		return ErrTooManyDocuments
	}
	return nil
}

// lookup resolves a raw ID to a document of the tenant. A nil document
// with a nil error means not found or not owned.
func (s *DocumentService) lookup(ctx context.Context, tenantID uuid.UUID, raw string) (*domain.Document, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, nil
	}
	doc, err := s.docs.GetForTenant(ctx, tenantID, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return doc, err
}

// BulkAction applies action to every listed document. Each document is
// updated on its own; one failure never undoes another document's change.
func (s *DocumentService) BulkAction(
	ctx context.Context,
	p *domain.Principal,
	ids []string,
	action BulkAction,
) (*BulkResult, error) {
	switch action {
	case BulkDelete, BulkArchive, BulkRestore, BulkReprocess:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBulkAction, action)
	}
	if err := checkBulkSize(ids); err != nil {
		return nil, err
	}

	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("tenant_id", p.TenantID.String()),
		slog.String("action", string(action)))

	result := &BulkResult{TotalRequested: len(ids), Errors: []BulkError{}}
	var requeue []*domain.Document

	for _, raw := range ids {
		doc, err := s.lookup(ctx, p.TenantID, raw)
		if err != nil {
			result.fail(raw, err)
			continue
		}
		if doc == nil {
			result.skip(raw, NotFoundOrDenied)
			continue
		}

		if action == BulkDelete && doc.IsDeleted {
			result.Succeeded++
			continue
		}

		reason, err := s.applyAction(doc, action)
		if err != nil {
			result.fail(raw, err)
			continue
		}
		if reason != "" {
			result.skip(raw, reason)
			continue
		}
		if err := s.docs.UpdateMetadata(ctx, doc); err != nil {
			log.Warn("bulk item update failed",
				slog.String("document_id", doc.ID.String()),
				slog.String("error", err.Error()))
			result.fail(raw, errors.New("failed to update document"))
			continue
		}
		result.Succeeded++
		if action == BulkReprocess {
			requeue = append(requeue, doc)
		}
	}

	for _, doc := range requeue {
		if _, err := s.pipeline.Enqueue(ctx, doc); err != nil {
			log.Error("failed to enqueue reprocessing",
				slog.String("document_id", doc.ID.String()),
				slog.String("error", err.Error()))
		}
	}

	if result.Succeeded > 0 {
		s.InvalidateTenant(ctx, p.TenantID)
	}

	log.Info("bulk action finished",
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
		slog.Int("skipped", result.Skipped))
	return result, nil
}

// applyAction mutates doc in memory. A non-empty reason means the document
// is skipped because the action does not apply to it.
func (s *DocumentService) applyAction(doc *domain.Document, action BulkAction) (string, error) {
	now := s.now()
	switch action {
	case BulkDelete:
		doc.SoftDelete(now)
	case BulkRestore:
		if !doc.IsDeleted {
			return "Document is not deleted", nil
		}
		doc.Restore(now)
	case BulkArchive:
		if doc.Status == domain.DocumentStatusArchived {
			return "Document already archived", nil
		}
		if !domain.CanTransition(doc.Status, domain.DocumentStatusArchived) {
			return fmt.Sprintf("Cannot archive document in status %s", doc.Status), nil
		}
		if err := doc.Archive(now); err != nil {
			return "", err
		}
	case BulkReprocess:
		if doc.IsDeleted {
			return "Document is deleted", nil
		}
		if doc.Status != domain.DocumentStatusFailed && doc.Status != domain.DocumentStatusCompleted {
			return fmt.Sprintf("Cannot reprocess document in status %s", doc.Status), nil
		}
		if err := doc.ResetForReprocess(now); err != nil {
			return "", err
		}
	}
	return "", nil
}

// BulkUpdate sets whitelisted metadata fields on every listed non-deleted
// document. Unknown fields or values of the wrong type reject the whole
// request.
func (s *DocumentService) BulkUpdate(
	ctx context.Context,
	p *domain.Principal,
	ids []string,
	updates map[string]any,
) (*BulkResult, error) {
	if err := checkBulkSize(ids); err != nil {
		return nil, err
	}
	in, err := parseBulkUpdates(updates)
	if err != nil {
		return nil, err
	}

	result := &BulkResult{TotalRequested: len(ids), Errors: []BulkError{}}
	now := s.now()
	for _, raw := range ids {
		doc, err := s.lookup(ctx, p.TenantID, raw)
		if err != nil {
			result.fail(raw, err)
			continue
		}
		if doc == nil || doc.IsDeleted {
			result.skip(raw, NotFoundOrDenied)
			continue
		}
		if err := applyUpdate(doc, in, now); err != nil {
			result.fail(raw, err)
			continue
		}
		if err := s.docs.UpdateMetadata(ctx, doc); err != nil {
			result.fail(raw, errors.New("failed to update document"))
			continue
		}
		result.Succeeded++
	}

	if result.Succeeded > 0 {
		s.InvalidateTenant(ctx, p.TenantID)
	}
	return result, nil
}

func parseBulkUpdates(updates map[string]any) (UpdateInput, error) {
	var in UpdateInput
	if len(updates) == 0 {
		return in, fmt.Errorf("%w: no fields to update", domain.ErrValidation)
	}

	var invalid []string
	for field := range updates {
		if !bulkUpdatableFields[field] {
			invalid = append(invalid, field)
		}
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return in, fmt.Errorf("%w: cannot bulk update fields: %s", domain.ErrValidation, strings.Join(invalid, ", "))
	}

	for field, value := range updates {
		switch field {
		case "is_public":
			b, ok := value.(bool)
			if !ok {
				return in, fmt.Errorf("%w: is_public must be a boolean", domain.ErrValidation)
			}
			in.IsPublic = &b
		case "title":
			t, ok := value.(string)
			if !ok || strings.TrimSpace(t) == "" {
				return in, fmt.Errorf("%w: title must be a non-empty string", domain.ErrValidation)
			}
			in.Title = &t
		case "description":
			var d string
			if value != nil {
				str, ok := value.(string)
				if !ok {
					return in, fmt.Errorf("%w: description must be a string", domain.ErrValidation)
				}
				d = str
			}
			in.Description = &d
		}
	}
	return in, nil
}
