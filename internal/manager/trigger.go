package manager

import (
	"context"

	"github.com/nerrad567/entity-manager/internal/state"
)

// TriggerSource classifies what caused an entity's last state change.
type TriggerSource string

// Trigger sources.
const (
	TriggerHuman      TriggerSource = "human"
	TriggerAutomation TriggerSource = "automation"
	TriggerSystem     TriggerSource = "system"
)

// ResolveTriggerContext classifies the context of st.
//
// A nil snapshot is a system change. A context with a user ID is a human
// change, named through the user directory; a failed lookup or empty
// name yields a nil name rather than an error. A context with only a
// parent ID is an automation change. Anything else is a system change.
func (m *Manager) ResolveTriggerContext(ctx context.Context, st *state.State) (TriggerSource, *string) {
	if st == nil {
		return TriggerSystem, nil
	}
	if st.Context.UserID != "" {
		return TriggerHuman, m.userName(ctx, st.Context.UserID)
	}
	if st.Context.ParentID != "" {
		return TriggerAutomation, nil
	}
	return TriggerSystem, nil
}

func (m *Manager) userName(ctx context.Context, userID string) *string {
	if m.users == nil {
		return nil
	}
	name, err := m.users.DisplayName(ctx, userID)
	if err != nil {
		m.logger.Debug("user lookup failed", "user_id", userID, "error", err)
		return nil
	}
	if name == "" {
		return nil
	}
	return &name
}
