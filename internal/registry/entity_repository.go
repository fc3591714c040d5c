package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntityRepository defines persistence for the entity registry.
type EntityRepository interface {
	// List returns every entity in registry insertion order.
	List(ctx context.Context) ([]Entity, error)

	// GetByEntityID returns ErrEntityNotFound if entityID is not registered.
	GetByEntityID(ctx context.Context, entityID string) (*Entity, error)

	// Save inserts or replaces an entity keyed by its registry ID.
	// New entities are appended to the end of the registry order.
	Save(ctx context.Context, entity *Entity) error

	// Update applies a partial change and returns the stored result.
	Update(ctx context.Context, entityID string, upd EntityUpdate) (*Entity, error)

	// Delete removes an entity and its label assignments.
	Delete(ctx context.Context, entityID string) error
}

// SQLiteEntityRepository implements EntityRepository using SQLite.
type SQLiteEntityRepository struct {
	db *sql.DB
}

// NewSQLiteEntityRepository creates a new SQLite-backed entity repository.
func NewSQLiteEntityRepository(db *sql.DB) *SQLiteEntityRepository {
	return &SQLiteEntityRepository{db: db}
}

const entityColumns = `id, entity_id, unique_id, platform, config_entry_id, device_id, area_id,
	name, original_name, disabled_by, hidden_by, entity_category, aliases,
	device_class, original_device_class, icon, original_icon, unit_of_measurement,
	supported_features, capabilities, created_at, updated_at`

// List returns all entities ordered by registry position.
func (r *SQLiteEntityRepository) List(ctx context.Context) ([]Entity, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+entityColumns+" FROM entities ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}

	labels, err := r.allLabels(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entities {
		entities[i].Labels = labels[entities[i].ID]
	}

	return entities, nil
}

// GetByEntityID retrieves an entity by its entity_id.
func (r *SQLiteEntityRepository) GetByEntityID(ctx context.Context, entityID string) (*Entity, error) {
	return r.get(ctx, r.db, entityID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *SQLiteEntityRepository) get(ctx context.Context, q queryer, entityID string) (*Entity, error) {
	row := q.QueryRowContext(ctx, "SELECT "+entityColumns+" FROM entities WHERE entity_id = ?", entityID)
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntityNotFound
		}
		return nil, fmt.Errorf("querying entity %s: %w", entityID, err)
	}

	e.Labels, err = labelsFor(ctx, q, "SELECT label_id FROM entity_labels WHERE entity_registry_id = ? ORDER BY position", e.ID)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Save inserts a new entity or replaces an existing one with the same registry ID.
func (r *SQLiteEntityRepository) Save(ctx context.Context, entity *Entity) error {
	if !ValidEntityID(entity.EntityID) {
		return fmt.Errorf("%w: %s", ErrInvalidEntityID, entity.EntityID)
	}
	if !entity.DisabledBy.Valid() || !entity.HiddenBy.Valid() || !entity.EntityCategory.Valid() {
		return fmt.Errorf("%w: entity %s", ErrInvalidValue, entity.EntityID)
	}
	if entity.ID == "" {
		entity.ID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	aliasesJSON, err := json.Marshal(nonNil(entity.Aliases))
	if err != nil {
		return fmt.Errorf("marshalling aliases: %w", err)
	}
	var capsJSON sql.NullString
	if entity.Capabilities != nil {
		b, err := json.Marshal(entity.Capabilities)
		if err != nil {
			return fmt.Errorf("marshalling capabilities: %w", err)
		}
		capsJSON = sql.NullString{String: string(b), Valid: true}
	}

	now := time.Now().UTC().Truncate(time.Second)
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = now
	}
	entity.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (
			id, entity_id, position, unique_id, platform, config_entry_id, device_id, area_id,
			name, original_name, disabled_by, hidden_by, entity_category, aliases,
			device_class, original_device_class, icon, original_icon, unit_of_measurement,
			supported_features, capabilities, created_at, updated_at
		) VALUES (
			?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM entities), ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?, ?
		)
		ON CONFLICT(id) DO UPDATE SET
			entity_id = excluded.entity_id, unique_id = excluded.unique_id,
			platform = excluded.platform, config_entry_id = excluded.config_entry_id,
			device_id = excluded.device_id, area_id = excluded.area_id,
			name = excluded.name, original_name = excluded.original_name,
			disabled_by = excluded.disabled_by, hidden_by = excluded.hidden_by,
			entity_category = excluded.entity_category, aliases = excluded.aliases,
			device_class = excluded.device_class, original_device_class = excluded.original_device_class,
			icon = excluded.icon, original_icon = excluded.original_icon,
			unit_of_measurement = excluded.unit_of_measurement,
			supported_features = excluded.supported_features, capabilities = excluded.capabilities,
			updated_at = excluded.updated_at`,
		entity.ID, entity.EntityID, entity.UniqueID, entity.Platform,
		nullableString(entity.ConfigEntryID), nullableString(entity.DeviceID), nullableString(entity.AreaID),
		nullableString(entity.Name), nullableString(entity.OriginalName),
		nullableEnum(string(entity.DisabledBy)), nullableEnum(string(entity.HiddenBy)),
		nullableEnum(string(entity.EntityCategory)), string(aliasesJSON),
		nullableString(entity.DeviceClass), nullableString(entity.OriginalDeviceClass),
		nullableString(entity.Icon), nullableString(entity.OriginalIcon),
		nullableString(entity.UnitOfMeasurement),
		entity.SupportedFeatures, capsJSON,
		entity.CreatedAt.Format(time.RFC3339), entity.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrEntityExists, entity.EntityID)
		}
		return fmt.Errorf("saving entity %s: %w", entity.EntityID, err)
	}

	if err := replaceLabels(ctx, tx, "entity_labels", "entity_registry_id", entity.ID, entity.Labels); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing entity: %w", err)
	}
	return nil
}

// Update applies upd to the entity inside a single transaction.
func (r *SQLiteEntityRepository) Update(ctx context.Context, entityID string, upd EntityUpdate) (*Entity, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	current, err := r.get(ctx, tx, entityID)
	if err != nil {
		return nil, err
	}

	target := current.EntityID
	if upd.NewEntityID != "" && upd.NewEntityID != current.EntityID {
		if !ValidEntityID(upd.NewEntityID) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidEntityID, upd.NewEntityID)
		}
		target = upd.NewEntityID
	}

	disabledBy := current.DisabledBy
	if upd.DisabledBy != nil {
		if !upd.DisabledBy.Valid() {
			return nil, fmt.Errorf("%w: disabled_by %q", ErrInvalidValue, *upd.DisabledBy)
		}
		disabledBy = *upd.DisabledBy
	}

	name := current.Name
	if upd.SetName {
		name = upd.Name
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE entities SET entity_id = ?, disabled_by = ?, name = ?, updated_at = ? WHERE id = ?`,
		target, nullableEnum(string(disabledBy)), nullableString(name),
		time.Now().UTC().Format(time.RFC3339), current.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: %s", ErrEntityExists, target)
		}
		return nil, fmt.Errorf("updating entity %s: %w", entityID, err)
	}

	updated, err := r.get(ctx, tx, target)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing entity update: %w", err)
	}
	return updated, nil
}

// Delete removes an entity by entity_id.
func (r *SQLiteEntityRepository) Delete(ctx context.Context, entityID string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM entities WHERE entity_id = ?", entityID)
	if err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrEntityNotFound
	}
	return nil
}

// allLabels loads every entity label assignment keyed by registry ID.
func (r *SQLiteEntityRepository) allLabels(ctx context.Context) (map[string][]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT entity_registry_id, label_id FROM entity_labels ORDER BY entity_registry_id, position")
	if err != nil {
		return nil, fmt.Errorf("listing entity labels: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var id, label string
		if err := rows.Scan(&id, &label); err != nil {
			return nil, fmt.Errorf("scanning entity label: %w", err)
		}
		out[id] = append(out[id], label)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entity labels: %w", err)
	}
	return out, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(scanner rowScanner) (*Entity, error) { //nolint:gocognit,gocyclo // scans many nullable columns into Entity struct
	var e Entity
	var configEntryID, deviceID, areaID, name, originalName sql.NullString
	var disabledBy, hiddenBy, category sql.NullString
	var deviceClass, originalDeviceClass, icon, originalIcon, unit sql.NullString
	var aliasesJSON string
	var capsJSON sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&e.ID, &e.EntityID, &e.UniqueID, &e.Platform,
		&configEntryID, &deviceID, &areaID,
		&name, &originalName, &disabledBy, &hiddenBy, &category, &aliasesJSON,
		&deviceClass, &originalDeviceClass, &icon, &originalIcon, &unit,
		&e.SupportedFeatures, &capsJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.ConfigEntryID = stringPtr(configEntryID)
	e.DeviceID = stringPtr(deviceID)
	e.AreaID = stringPtr(areaID)
	e.Name = stringPtr(name)
	e.OriginalName = stringPtr(originalName)
	e.DisabledBy = DisabledBy(disabledBy.String)
	e.HiddenBy = HiddenBy(hiddenBy.String)
	e.EntityCategory = EntityCategory(category.String)
	e.DeviceClass = stringPtr(deviceClass)
	e.OriginalDeviceClass = stringPtr(originalDeviceClass)
	e.Icon = stringPtr(icon)
	e.OriginalIcon = stringPtr(originalIcon)
	e.UnitOfMeasurement = stringPtr(unit)

	if err := json.Unmarshal([]byte(aliasesJSON), &e.Aliases); err != nil {
		return nil, fmt.Errorf("unmarshalling aliases: %w", err)
	}
	if capsJSON.Valid && capsJSON.String != "" {
		if err := json.Unmarshal([]byte(capsJSON.String), &e.Capabilities); err != nil {
			return nil, fmt.Errorf("unmarshalling capabilities: %w", err)
		}
	}

	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &e, nil
}
