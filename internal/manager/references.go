package manager

import (
	"context"

	"github.com/nerrad567/entity-manager/internal/yamlref"
)

// ReferenceRewriter rewrites entity id references in configuration files.
// *yamlref.Rewriter satisfies it.
type ReferenceRewriter interface {
	Rewrite(ctx context.Context, oldID, newID string) (*yamlref.Result, error)
}

// SetReferenceRewriter sets the rewriter used by UpdateYAMLReferences.
func (m *Manager) SetReferenceRewriter(rw ReferenceRewriter) {
	m.refs = rw
}

// UpdateYAMLReferences replaces references to oldID with newID in the
// configuration files. Per-file failures are reported inside the result;
// an error is returned only when no rewriter is configured or the scan
// is cancelled.
func (m *Manager) UpdateYAMLReferences(ctx context.Context, oldID, newID string) (*yamlref.Result, error) {
	if m.refs == nil {
		return nil, validationf("No configuration directory is configured")
	}

	res, err := m.refs.Rewrite(ctx, oldID, newID)
	if err != nil {
		m.record(ctx, OpUpdateReferences, oldID, err, map[string]any{"new_entity_id": newID})
		return res, err
	}

	outcome := OutcomeSuccess
	if len(res.Errors) > 0 {
		outcome = OutcomePartial
	}
	m.notify(ctx, Mutation{
		Operation: OpUpdateReferences,
		Outcome:   outcome,
		EntityID:  oldID,
		Count:     res.TotalReplacements,
		Details: map[string]any{
			"new_entity_id": newID,
			"files_updated": len(res.FilesUpdated),
			"files_failed":  len(res.Errors),
		},
	})
	return res, nil
}
