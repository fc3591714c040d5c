package manager

import (
	"context"
	"testing"

	"github.com/nerrad567/entity-manager/internal/state"
)

func TestResolveTriggerContext(t *testing.T) {
	users := &fakeUsers{
		names: map[string]string{"usr-ann": "Ann", "usr-blank": ""},
		fail:  map[string]bool{"usr-down": true},
	}
	m := New(newFakeRegistry(), newFakeStates(), users)

	withCtx := func(c state.Context) *state.State {
		return &state.State{EntityID: "automation.x", Context: c}
	}

	tests := []struct {
		name     string
		st       *state.State
		wantBy   TriggerSource
		wantName string // "" means nil
	}{
		{"no state", nil, TriggerSystem, ""},
		{"user", withCtx(state.Context{ID: "c1", UserID: "usr-ann"}), TriggerHuman, "Ann"},
		{"user wins over parent", withCtx(state.Context{UserID: "usr-ann", ParentID: "p1"}), TriggerHuman, "Ann"},
		{"unknown user", withCtx(state.Context{UserID: "usr-nobody"}), TriggerHuman, ""},
		{"directory failure", withCtx(state.Context{UserID: "usr-down"}), TriggerHuman, ""},
		{"empty name", withCtx(state.Context{UserID: "usr-blank"}), TriggerHuman, ""},
		{"parent only", withCtx(state.Context{ID: "c2", ParentID: "p1"}), TriggerAutomation, ""},
		{"bare context", withCtx(state.Context{ID: "c3"}), TriggerSystem, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			by, name := m.ResolveTriggerContext(context.Background(), tt.st)
			if by != tt.wantBy {
				t.Errorf("source = %q, want %q", by, tt.wantBy)
			}
			switch {
			case tt.wantName == "" && name != nil:
				t.Errorf("name = %q, want nil", *name)
			case tt.wantName != "" && (name == nil || *name != tt.wantName):
				t.Errorf("name = %v, want %q", name, tt.wantName)
			}
		})
	}
}

func TestResolveTriggerContext_NoDirectory(t *testing.T) {
	m := New(newFakeRegistry(), nil, nil)
	by, name := m.ResolveTriggerContext(context.Background(), &state.State{Context: state.Context{UserID: "usr-ann"}})
	if by != TriggerHuman || name != nil {
		t.Errorf("ResolveTriggerContext() = %q, %v; want human, nil", by, name)
	}
}
