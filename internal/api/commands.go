package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/nerrad567/entity-manager/internal/hacs"
	"github.com/nerrad567/entity-manager/internal/infrastructure/logging"
	"github.com/nerrad567/entity-manager/internal/manager"
	"github.com/nerrad567/entity-manager/internal/yamlref"
)

// Command types accepted by the dispatch table.
const (
	CmdGetDisabledEntities  = "entity_manager/get_disabled_entities"
	CmdEnableEntity         = "entity_manager/enable_entity"
	CmdDisableEntity        = "entity_manager/disable_entity"
	CmdBulkEnable           = "entity_manager/bulk_enable"
	CmdBulkDisable          = "entity_manager/bulk_disable"
	CmdRenameEntity         = "entity_manager/rename_entity"
	CmdRemoveEntity         = "entity_manager/remove_entity"
	CmdUpdateDisplayName    = "entity_manager/update_entity_display_name"
	CmdExportStates         = "entity_manager/export_states"
	CmdGetEntityDetails     = "entity_manager/get_entity_details"
	CmdGetAutomations       = "entity_manager/get_automations"
	CmdGetTemplateSensors   = "entity_manager/get_template_sensors"
	CmdUpdateYAMLReferences = "entity_manager/update_yaml_references"
	CmdListHACSItems        = "entity_manager/list_hacs_items"
)

// Command failure codes.
const (
	CodeGetFailed      = "get_failed"
	CodeEnableFailed   = "enable_failed"
	CodeDisableFailed  = "disable_failed"
	CodeRenameFailed   = "rename_failed"
	CodeNotFound       = "not_found"
	CodeExportFailed   = "export_failed"
	CodeHACSListFailed = "hacs_list_failed"
	CodeInvalidFormat  = "invalid_format"
	CodeUnknownCommand = "unknown_command"
	CodeUnknownError   = "unknown_error"
)

// ResultType is the type of every command reply.
const ResultType = "result"

// EntityManager is the command surface of the manager.
// *manager.Manager satisfies it.
type EntityManager interface {
	GroupedEntities(ctx context.Context, mode string) ([]manager.IntegrationGroup, error)
	EnableEntity(ctx context.Context, entityID string) error
	DisableEntity(ctx context.Context, entityID string) error
	BulkEnable(ctx context.Context, entityIDs []string) (*manager.BulkResult, error)
	BulkDisable(ctx context.Context, entityIDs []string) (*manager.BulkResult, error)
	RenameEntity(ctx context.Context, oldID, newID string) (*manager.RenameResult, error)
	RemoveEntity(ctx context.Context, entityID string) (*manager.RemoveResult, error)
	SetDisplayName(ctx context.Context, entityID string, name *string) error
	ExportStates(ctx context.Context) ([]manager.EntitySummary, error)
	EntityDetail(ctx context.Context, entityID string) (*manager.EntityDetail, error)
	Automations(ctx context.Context) ([]manager.AutomationInfo, error)
	TemplateSensors(ctx context.Context) ([]manager.TemplateSensorInfo, error)
	UpdateYAMLReferences(ctx context.Context, oldID, newID string) (*yamlref.Result, error)
}

// HACSScanner lists installed and available community add-ons.
// *hacs.Scanner satisfies it.
type HACSScanner interface {
	Scan(ctx context.Context) (*hacs.Listing, error)
}

// Response is the reply to one command message.
type Response struct {
	ID      json.RawMessage `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Result  any             `json:"result,omitempty"`
	Error   *CommandError   `json:"error,omitempty"`
}

// CommandError is the failure part of a Response.
type CommandError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// envelope holds the fields common to every command message.
type envelope struct {
	ID   json.RawMessage `json:"id"`
	Type string          `json:"type"`
}

type commandFunc func(ctx context.Context, raw json.RawMessage) (any, error)

type command struct {
	run commandFunc

	// failCode is the code reported for errors the command does not
	// classify itself.
	failCode string
}

// codedError overrides the failure code of a command.
type codedError struct {
	code string
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }

func (e *codedError) Unwrap() error { return e.err }

// CommandTable validates command messages and runs them against the
// manager. It holds no per-request state.
type CommandTable struct {
	manager  EntityManager
	hacs     HACSScanner
	schemas  map[string]*jsonschema.Schema
	commands map[string]command
	metrics  *Metrics
	logger   *logging.Logger
}

// NewCommandTable builds the dispatch table and compiles its schemas.
// hacs may be nil, in which case list_hacs_items fails.
func NewCommandTable(m EntityManager, scanner HACSScanner, logger *logging.Logger) (*CommandTable, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Default()
	}

	t := &CommandTable{
		manager: m,
		hacs:    scanner,
		schemas: schemas,
		logger:  logger,
	}
	t.commands = map[string]command{
		CmdGetDisabledEntities:  {t.getDisabledEntities, CodeGetFailed},
		CmdEnableEntity:         {t.enableEntity, CodeEnableFailed},
		CmdDisableEntity:        {t.disableEntity, CodeDisableFailed},
		CmdBulkEnable:           {t.bulkEnable, CodeInvalidFormat},
		CmdBulkDisable:          {t.bulkDisable, CodeInvalidFormat},
		CmdRenameEntity:         {t.renameEntity, CodeRenameFailed},
		CmdRemoveEntity:         {t.removeEntity, CodeUnknownError},
		CmdUpdateDisplayName:    {t.updateDisplayName, CodeUnknownError},
		CmdExportStates:         {t.exportStates, CodeExportFailed},
		CmdGetEntityDetails:     {t.getEntityDetails, CodeUnknownError},
		CmdGetAutomations:       {t.getAutomations, CodeGetFailed},
		CmdGetTemplateSensors:   {t.getTemplateSensors, CodeGetFailed},
		CmdUpdateYAMLReferences: {t.updateYAMLReferences, CodeUnknownError},
		CmdListHACSItems:        {t.listHACSItems, CodeHACSListFailed},
	}
	return t, nil
}

// SetMetrics attaches command metrics.
func (t *CommandTable) SetMetrics(m *Metrics) {
	t.metrics = m
}

// Dispatch decodes one raw message and runs it. It always returns a
// Response; failures are reported inside it.
func (t *CommandTable) Dispatch(ctx context.Context, raw []byte) Response {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return failure(nil, CodeInvalidFormat, "invalid JSON message")
	}
	if len(env.ID) == 0 {
		env.ID = json.RawMessage("null")
	}

	cmd, ok := t.commands[env.Type]
	if !ok {
		t.metrics.observeCommand("unknown", CodeUnknownCommand, 0)
		return failure(env.ID, CodeUnknownCommand, "Unknown command: "+env.Type)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return failure(env.ID, CodeInvalidFormat, "invalid JSON message")
	}
	if lowerEntityIDs(doc) {
		normalized, err := json.Marshal(doc)
		if err != nil {
			return failure(env.ID, CodeInvalidFormat, "invalid JSON message")
		}
		raw = normalized
	}
	if err := t.schemas[env.Type].Validate(doc); err != nil {
		t.metrics.observeCommand(env.Type, CodeInvalidFormat, 0)
		return failure(env.ID, CodeInvalidFormat, schemaMessage(err))
	}

	start := time.Now()
	result, err := cmd.run(ctx, raw)
	elapsed := time.Since(start)

	if err != nil {
		code := cmd.failCode
		var coded *codedError
		if errors.As(err, &coded) {
			code = coded.code
		}
		t.metrics.observeCommand(env.Type, code, elapsed)
		t.logger.Warn("command failed",
			"command", env.Type,
			"code", code,
			"error", err,
			"actor", manager.ActorFrom(ctx).Source,
		)
		return failure(env.ID, code, err.Error())
	}

	t.metrics.observeCommand(env.Type, "success", elapsed)
	t.logger.Debug("command handled", "command", env.Type, "duration_ms", elapsed.Milliseconds())
	return Response{ID: env.ID, Type: ResultType, Success: true, Result: result}
}

// Execute runs a command given as a decoded message. The REST endpoints
// use it so they share validation and metrics with the WebSocket path.
func (t *CommandTable) Execute(ctx context.Context, msg map[string]any) Response {
	raw, err := json.Marshal(msg)
	if err != nil {
		return failure(nil, CodeInvalidFormat, "invalid message")
	}
	return t.Dispatch(ctx, raw)
}

func failure(id json.RawMessage, code, message string) Response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return Response{
		ID:      id,
		Type:    ResultType,
		Success: false,
		Error:   &CommandError{Code: code, Message: message},
	}
}

func decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &codedError{code: CodeInvalidFormat, err: fmt.Errorf("invalid message: %w", err)}
	}
	return nil
}

// notFoundOr maps manager.ErrNotFound to not_found and leaves any other
// error with the command's default code.
func notFoundOr(err error) error {
	if errors.Is(err, manager.ErrNotFound) {
		return &codedError{code: CodeNotFound, err: err}
	}
	return err
}

type entityRequest struct {
	EntityID string `json:"entity_id"`
}

type bulkRequest struct {
	EntityIDs []string `json:"entity_ids"`
}

type renameRequest struct {
	OldEntityID string `json:"old_entity_id"`
	NewEntityID string `json:"new_entity_id"`
}

type displayNameRequest struct {
	EntityID string  `json:"entity_id"`
	Name     *string `json:"name"`
}

type successResult struct {
	Success bool `json:"success"`
}

func (t *CommandTable) getDisabledEntities(ctx context.Context, raw json.RawMessage) (any, error) {
	var req struct {
		State string `json:"state"`
	}
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	return t.manager.GroupedEntities(ctx, req.State)
}

func (t *CommandTable) enableEntity(ctx context.Context, raw json.RawMessage) (any, error) {
	var req entityRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	if err := t.manager.EnableEntity(ctx, req.EntityID); err != nil {
		return nil, err
	}
	return successResult{Success: true}, nil
}

func (t *CommandTable) disableEntity(ctx context.Context, raw json.RawMessage) (any, error) {
	var req entityRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	if err := t.manager.DisableEntity(ctx, req.EntityID); err != nil {
		return nil, err
	}
	return successResult{Success: true}, nil
}

func (t *CommandTable) bulkEnable(ctx context.Context, raw json.RawMessage) (any, error) {
	var req bulkRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	return t.manager.BulkEnable(ctx, req.EntityIDs)
}

func (t *CommandTable) bulkDisable(ctx context.Context, raw json.RawMessage) (any, error) {
	var req bulkRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	return t.manager.BulkDisable(ctx, req.EntityIDs)
}

func (t *CommandTable) renameEntity(ctx context.Context, raw json.RawMessage) (any, error) {
	var req renameRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	return t.manager.RenameEntity(ctx, req.OldEntityID, req.NewEntityID)
}

func (t *CommandTable) removeEntity(ctx context.Context, raw json.RawMessage) (any, error) {
	var req entityRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	res, err := t.manager.RemoveEntity(ctx, req.EntityID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return res, nil
}

func (t *CommandTable) updateDisplayName(ctx context.Context, raw json.RawMessage) (any, error) {
	var req displayNameRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	if err := t.manager.SetDisplayName(ctx, req.EntityID, req.Name); err != nil {
		return nil, notFoundOr(err)
	}
	return successResult{Success: true}, nil
}

func (t *CommandTable) exportStates(ctx context.Context, _ json.RawMessage) (any, error) {
	return t.manager.ExportStates(ctx)
}

func (t *CommandTable) getEntityDetails(ctx context.Context, raw json.RawMessage) (any, error) {
	var req entityRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	detail, err := t.manager.EntityDetail(ctx, req.EntityID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return detail, nil
}

func (t *CommandTable) getAutomations(ctx context.Context, _ json.RawMessage) (any, error) {
	return t.manager.Automations(ctx)
}

func (t *CommandTable) getTemplateSensors(ctx context.Context, _ json.RawMessage) (any, error) {
	return t.manager.TemplateSensors(ctx)
}

// updateYAMLReferences never fails at the envelope level. A missing
// configuration directory or a cancelled scan is reported in Errors.
func (t *CommandTable) updateYAMLReferences(ctx context.Context, raw json.RawMessage) (any, error) {
	var req renameRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}

	res, err := t.manager.UpdateYAMLReferences(ctx, req.OldEntityID, req.NewEntityID)
	if res == nil {
		res = &yamlref.Result{FilesUpdated: []yamlref.FileUpdate{}, Errors: []yamlref.FileError{}}
	}
	if err != nil {
		res.Success = false
		res.Errors = append(res.Errors, yamlref.FileError{File: ".", Error: err.Error()})
	}
	return res, nil
}

func (t *CommandTable) listHACSItems(ctx context.Context, _ json.RawMessage) (any, error) {
	if t.hacs == nil {
		return nil, errors.New("no configuration directory is configured")
	}
	return t.hacs.Scan(ctx)
}
