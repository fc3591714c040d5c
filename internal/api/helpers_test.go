package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nerrad567/entity-manager/internal/audit"
	"github.com/nerrad567/entity-manager/internal/auth"
	"github.com/nerrad567/entity-manager/internal/hacs"
	"github.com/nerrad567/entity-manager/internal/infrastructure/config"
	"github.com/nerrad567/entity-manager/internal/infrastructure/database"
	"github.com/nerrad567/entity-manager/internal/infrastructure/logging"
	"github.com/nerrad567/entity-manager/internal/manager"
	"github.com/nerrad567/entity-manager/internal/registry"
	"github.com/nerrad567/entity-manager/internal/state"
	"github.com/nerrad567/entity-manager/internal/yamlref"
	_ "github.com/nerrad567/entity-manager/migrations"
)

const testPassword = "test-password"

// testEnv is a full command stack over an in-memory database.
type testEnv struct {
	db        *sql.DB
	registry  *registry.Registry
	states    *state.SQLiteStore
	manager   *manager.Manager
	commands  *CommandTable
	metrics   *Metrics
	auditRepo *audit.SQLiteRepository
	server    *Server
	configDir string
	admin     *auth.User
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error", Format: "text"}, "test")
}

// testDB opens an in-memory database with the full schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testDB(t)
	env := &testEnv{
		db:        db,
		registry:  registry.New(registry.NewSQLiteEntityRepository(db), registry.NewSQLiteCatalogRepository(db)),
		states:    state.NewSQLiteStore(db),
		auditRepo: audit.NewSQLiteRepository(db),
		configDir: t.TempDir(),
	}
	if err := env.registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}

	users := auth.NewUserRepository(db)
	env.admin = createUser(t, users, "admin", auth.RoleAdmin)
	createUser(t, users, "viewer", auth.RoleUser)

	env.manager = manager.New(env.registry, env.states, auth.NewDirectory(users))
	env.manager.SetReferenceRewriter(yamlref.New(env.configDir))

	log := testLogger()
	commands, err := NewCommandTable(env.manager, hacs.NewScanner(env.configDir), log)
	if err != nil {
		t.Fatalf("NewCommandTable: %v", err)
	}
	env.commands = commands

	env.metrics, err = NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	env.commands.SetMetrics(env.metrics)

	env.server, err = New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 64 * 1024,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:    log,
		Commands:  env.commands,
		Auth:      auth.NewService(users, "test-secret-key-at-least-32-characters-long", 0),
		AuditRepo: env.auditRepo,
		Metrics:   env.metrics,
		Entities:  env.registry,
		DB:        db,
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	env.manager.AddObserver(env.server.Hub())
	env.manager.AddObserver(env.metrics)
	return env
}

func createUser(t *testing.T, users auth.UserRepository, username string, role auth.Role) *auth.User {
	t.Helper()

	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	u := &auth.User{
		Username:     username,
		DisplayName:  "Display " + username,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := users.Create(context.Background(), u); err != nil {
		t.Fatalf("creating user %s: %v", username, err)
	}
	return u
}

// addEntity saves an entity to the registry.
func (e *testEnv) addEntity(t *testing.T, ent *registry.Entity) {
	t.Helper()
	if err := e.registry.SaveEntity(context.Background(), ent); err != nil {
		t.Fatalf("SaveEntity %s: %v", ent.EntityID, err)
	}
}

func (e *testEnv) entity(t *testing.T, entityID string) *registry.Entity {
	t.Helper()
	ent, err := e.registry.GetEntity(context.Background(), entityID)
	if err != nil {
		t.Fatalf("GetEntity %s: %v", entityID, err)
	}
	return ent
}

// login returns an access token for username.
func (e *testEnv) login(t *testing.T, username string) string {
	t.Helper()

	body := `{"username":"` + username + `","password":"` + testPassword + `"}`
	w := e.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
	if w.Code != http.StatusOK {
		t.Fatalf("login %s status = %d; body: %s", username, w.Code, w.Body.String())
	}

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	return resp.AccessToken
}

// do sends a request through the router. An empty token sends no
// Authorization header.
func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.server.buildRouter().ServeHTTP(w, req)
	return w
}

// dispatch runs a raw command message and fails the test if the reply
// does not decode.
func (e *testEnv) dispatch(t *testing.T, msg string) Response {
	t.Helper()
	return e.commands.Dispatch(manager.WithActor(context.Background(), manager.Actor{Source: "test"}), []byte(msg))
}

// decodeResult re-encodes a successful result into v.
func decodeResult(t *testing.T, resp Response, v any) {
	t.Helper()
	if !resp.Success {
		t.Fatalf("command failed: %+v", resp.Error)
	}
	data, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
}

func errorCode(resp Response) string {
	if resp.Error == nil {
		return ""
	}
	return resp.Error.Code
}

func strPtr(s string) *string { return &s }
