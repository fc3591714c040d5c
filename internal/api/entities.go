package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/entity-manager/internal/manager"
)

// sourceAPI is the actor source of commands received over REST.
const sourceAPI = "api"

// restCommandID is the id given to commands built from REST requests.
const restCommandID = 0

// commandContext attaches the authenticated caller as the actor.
func commandContext(r *http.Request) context.Context {
	actor := manager.Actor{Source: sourceAPI}
	if claims := claimsFrom(r.Context()); claims != nil {
		actor.UserID = claims.Subject
	}
	return manager.WithActor(r.Context(), actor)
}

// run executes one command built from a REST request and writes the reply.
func (s *Server) run(w http.ResponseWriter, r *http.Request, cmdType string, fields map[string]any) {
	msg := map[string]any{"id": restCommandID, "type": cmdType}
	for k, v := range fields {
		msg[k] = v
	}
	writeCommandResponse(w, s.commands.Execute(commandContext(r), msg))
}

// decodeBody decodes a JSON object body. An empty body decodes to an
// empty map.
func decodeBody(r *http.Request) (map[string]any, error) {
	fields := map[string]any{}
	err := json.NewDecoder(r.Body).Decode(&fields)
	if err == io.EOF {
		return fields, nil
	}
	return fields, err
}

// handleCommand runs a command message posted as the request body. The
// reply is the same envelope the WebSocket returns, always with 200.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return
	}
	writeJSON(w, http.StatusOK, s.commands.Dispatch(commandContext(r), body))
}

// handleListEntities returns entities grouped by integration and device.
//
// Query parameters:
//   - state: disabled (default), enabled or all
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	fields := map[string]any{}
	if state := r.URL.Query().Get("state"); state != "" {
		fields["state"] = state
	}
	s.run(w, r, CmdGetDisabledEntities, fields)
}

func (s *Server) handleExportEntities(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, CmdExportStates, nil)
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, CmdGetEntityDetails, map[string]any{"entity_id": chi.URLParam(r, "entity_id")})
}

// handleUpdateEntity sets or clears the display name override.
// Body: {"name": "Kitchen" | null}
func (s *Server) handleUpdateEntity(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	s.run(w, r, CmdUpdateDisplayName, map[string]any{
		"entity_id": chi.URLParam(r, "entity_id"),
		"name":      body["name"],
	})
}

func (s *Server) handleRemoveEntity(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, CmdRemoveEntity, map[string]any{"entity_id": chi.URLParam(r, "entity_id")})
}

func (s *Server) handleSetEnabled(cmdType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.run(w, r, cmdType, map[string]any{"entity_id": chi.URLParam(r, "entity_id")})
	}
}

// handleRenameEntity renames the entity in the path.
// Body: {"new_entity_id": "light.new_name"}
func (s *Server) handleRenameEntity(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	body["old_entity_id"] = chi.URLParam(r, "entity_id")
	s.run(w, r, CmdRenameEntity, body)
}

// handleBulk runs a bulk command. Body: {"entity_ids": [...]}
func (s *Server) handleBulk(cmdType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeBody(r)
		if err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
		s.run(w, r, cmdType, body)
	}
}

// handleUpdateReferences rewrites YAML references.
// Body: {"old_entity_id": "...", "new_entity_id": "..."}
func (s *Server) handleUpdateReferences(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	s.run(w, r, CmdUpdateYAMLReferences, body)
}

func (s *Server) handleSimpleCommand(cmdType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.run(w, r, cmdType, nil)
	}
}
