package manager

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nerrad567/entity-manager/internal/registry"
	"github.com/nerrad567/entity-manager/internal/state"
)

const automationDomain = "automation"

// AutomationInfo is one row of the automation listing.
type AutomationInfo struct {
	EntityID        string        `json:"entity_id"`
	Name            string        `json:"name"`
	State           string        `json:"state"`
	LastTriggered   any           `json:"last_triggered"`
	LastChanged     *string       `json:"last_changed"`
	TriggeredBy     TriggerSource `json:"triggered_by"`
	TriggeredByName *string       `json:"triggered_by_name"`
}

// TemplateSensorInfo is one row of the template sensor listing.
type TemplateSensorInfo struct {
	EntityID          string        `json:"entity_id"`
	Name              string        `json:"name"`
	Platform          string        `json:"platform"`
	Disabled          bool          `json:"disabled"`
	State             *string       `json:"state"`
	LastChanged       *string       `json:"last_changed"`
	LastUpdated       *string       `json:"last_updated"`
	ConnectedEntities []string      `json:"connected_entities"`
	UnitOfMeasurement any           `json:"unit_of_measurement"`
	DeviceClass       any           `json:"device_class"`
	TriggeredBy       TriggerSource `json:"triggered_by"`
	TriggeredByName   *string       `json:"triggered_by_name"`
}

// ExportStates returns a summary of every registered entity, sorted by entity_id.
func (m *Manager) ExportStates(ctx context.Context) ([]EntitySummary, error) {
	entities, err := m.registry.ListEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}

	out := make([]EntitySummary, 0, len(entities))
	for i := range entities {
		out = append(out, Summarize(&entities[i]))
	}
	slices.SortFunc(out, func(a, b EntitySummary) int {
		return strings.Compare(a.EntityID, b.EntityID)
	})
	return out, nil
}

// Automations lists every automation state with its trigger context,
// sorted by entity_id.
func (m *Manager) Automations(ctx context.Context) ([]AutomationInfo, error) {
	if m.states == nil {
		return []AutomationInfo{}, nil
	}

	states, err := m.states.ListDomain(ctx, automationDomain)
	if err != nil {
		return nil, fmt.Errorf("listing automation states: %w", err)
	}

	out := make([]AutomationInfo, 0, len(states))
	for i := range states {
		st := &states[i]
		by, name := m.ResolveTriggerContext(ctx, st)
		out = append(out, AutomationInfo{
			EntityID:        st.EntityID,
			Name:            firstNonEmpty(st.AttrString("friendly_name"), st.EntityID),
			State:           st.State,
			LastTriggered:   st.Attr("last_triggered"),
			LastChanged:     isoTime(st.LastChanged),
			TriggeredBy:     by,
			TriggeredByName: name,
		})
	}
	sortByEntityID(out, func(a AutomationInfo) string { return a.EntityID })
	return out, nil
}

// TemplateSensors lists template entities from the registry together
// with template.* states that have no registry entry, sorted by entity_id.
func (m *Manager) TemplateSensors(ctx context.Context) ([]TemplateSensorInfo, error) {
	entities, err := m.registry.ListEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}

	out := []TemplateSensorInfo{}
	seen := make(map[string]bool)

	for i := range entities {
		e := &entities[i]
		if e.Platform != templateDomain && !strings.HasPrefix(e.EntityID, templateDomain+".") {
			continue
		}
		seen[e.EntityID] = true

		st, err := m.stateOf(ctx, e.EntityID)
		if err != nil {
			return nil, err
		}

		name := ""
		if e.OriginalName != nil {
			name = *e.OriginalName
		}
		row := m.templateRow(ctx, e.EntityID, st)
		row.Name = firstNonEmpty(name, st.AttrString("friendly_name"), e.EntityID)
		row.Platform = firstNonEmpty(e.Platform, templateDomain)
		row.Disabled = e.IsDisabled()
		out = append(out, row)
	}

	if m.states != nil {
		states, err := m.states.ListDomain(ctx, templateDomain)
		if err != nil {
			return nil, fmt.Errorf("listing template states: %w", err)
		}
		for i := range states {
			st := &states[i]
			if seen[st.EntityID] {
				continue
			}
			seen[st.EntityID] = true

			row := m.templateRow(ctx, st.EntityID, st)
			row.Name = firstNonEmpty(st.AttrString("friendly_name"), st.EntityID)
			row.Platform = templateDomain
			out = append(out, row)
		}
	}

	sortByEntityID(out, func(r TemplateSensorInfo) string { return r.EntityID })
	return out, nil
}

// templateRow fills the state-derived columns of a template sensor row.
// st may be nil.
func (m *Manager) templateRow(ctx context.Context, entityID string, st *state.State) TemplateSensorInfo {
	by, name := m.ResolveTriggerContext(ctx, st)
	row := TemplateSensorInfo{
		EntityID:          entityID,
		ConnectedEntities: connectedEntities(st.Attr("entity_id")),
		UnitOfMeasurement: st.Attr("unit_of_measurement"),
		DeviceClass:       st.Attr("device_class"),
		TriggeredBy:       by,
		TriggeredByName:   name,
	}
	if st != nil {
		s := st.State
		row.State = &s
		row.LastChanged = isoTime(st.LastChanged)
		row.LastUpdated = isoTime(st.LastUpdated)
	}
	return row
}

// stateOf returns the snapshot for entityID, or nil if there is none.
func (m *Manager) stateOf(ctx context.Context, entityID string) (*state.State, error) { //nolint:nilnil // no snapshot is not an error
	if m.states == nil {
		return nil, nil
	}
	st, err := m.states.Get(ctx, entityID)
	if err != nil {
		if errors.Is(err, state.ErrStateNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading state of %s: %w", entityID, err)
	}
	return st, nil
}

// connectedEntities normalises the entity_id attribute of a template
// state: a bare string becomes a one-element list.
func connectedEntities(v any) []string {
	switch ids := v.(type) {
	case string:
		return []string{ids}
	case []string:
		return slices.Clone(ids)
	case []any:
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			out = append(out, fmt.Sprint(id))
		}
		return out
	}
	return []string{}
}

func isoTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func sortByEntityID[T any](rows []T, key func(T) string) {
	slices.SortStableFunc(rows, func(a, b T) int {
		return strings.Compare(key(a), key(b))
	})
}

var _ Registry = (*registry.Registry)(nil)
