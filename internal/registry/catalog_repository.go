package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// CatalogRepository defines persistence for the registries an entity
// refers to: devices, areas, labels and config entries.
type CatalogRepository interface {
	GetDevice(ctx context.Context, id string) (*Device, error)
	ListDevices(ctx context.Context) ([]Device, error)
	SaveDevice(ctx context.Context, device *Device) error

	GetArea(ctx context.Context, id string) (*Area, error)
	SaveArea(ctx context.Context, area *Area) error

	GetLabel(ctx context.Context, id string) (*Label, error)
	SaveLabel(ctx context.Context, label *Label) error

	GetConfigEntry(ctx context.Context, id string) (*ConfigEntry, error)
	SaveConfigEntry(ctx context.Context, entry *ConfigEntry) error

	// DeleteConfigEntry removes the entry and every entity it owns.
	DeleteConfigEntry(ctx context.Context, id string) error
}

// SQLiteCatalogRepository implements CatalogRepository using SQLite.
type SQLiteCatalogRepository struct {
	db *sql.DB
}

// NewSQLiteCatalogRepository creates a new SQLite-backed catalog repository.
func NewSQLiteCatalogRepository(db *sql.DB) *SQLiteCatalogRepository {
	return &SQLiteCatalogRepository{db: db}
}

const deviceColumns = `id, name, name_by_user, manufacturer, model, model_id, sw_version,
	hw_version, serial_number, configuration_url, area_id, connections, identifiers`

// GetDevice retrieves a device by ID.
func (r *SQLiteCatalogRepository) GetDevice(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE id = ?", id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device %s: %w", id, err)
	}

	d.Labels, err = labelsFor(ctx, r.db, "SELECT label_id FROM device_labels WHERE device_id = ? ORDER BY position", id)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListDevices returns all devices ordered by ID.
func (r *SQLiteCatalogRepository) ListDevices(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+deviceColumns+" FROM devices ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	for i := range devices {
		devices[i].Labels, err = labelsFor(ctx, r.db,
			"SELECT label_id FROM device_labels WHERE device_id = ? ORDER BY position", devices[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return devices, nil
}

// SaveDevice inserts or replaces a device and its label assignments.
func (r *SQLiteCatalogRepository) SaveDevice(ctx context.Context, d *Device) error {
	connJSON, err := json.Marshal(nonNil(d.Connections))
	if err != nil {
		return fmt.Errorf("marshalling connections: %w", err)
	}
	identJSON, err := json.Marshal(nonNil(d.Identifiers))
	if err != nil {
		return fmt.Errorf("marshalling identifiers: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, nullableString(d.NameByUser), nullableString(d.Manufacturer),
		nullableString(d.Model), nullableString(d.ModelID), nullableString(d.SWVersion),
		nullableString(d.HWVersion), nullableString(d.SerialNumber),
		nullableString(d.ConfigurationURL), nullableString(d.AreaID),
		string(connJSON), string(identJSON),
	)
	if err != nil {
		return fmt.Errorf("saving device %s: %w", d.ID, err)
	}

	if err := replaceLabels(ctx, tx, "device_labels", "device_id", d.ID, d.Labels); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing device: %w", err)
	}
	return nil
}

// GetArea retrieves an area by ID.
func (r *SQLiteCatalogRepository) GetArea(ctx context.Context, id string) (*Area, error) {
	var a Area
	var aliasesJSON string
	err := r.db.QueryRowContext(ctx, "SELECT id, name, aliases FROM areas WHERE id = ?", id).
		Scan(&a.ID, &a.Name, &aliasesJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAreaNotFound
		}
		return nil, fmt.Errorf("querying area %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(aliasesJSON), &a.Aliases); err != nil {
		return nil, fmt.Errorf("unmarshalling area aliases: %w", err)
	}
	return &a, nil
}

// SaveArea inserts or replaces an area.
func (r *SQLiteCatalogRepository) SaveArea(ctx context.Context, a *Area) error {
	aliasesJSON, err := json.Marshal(nonNil(a.Aliases))
	if err != nil {
		return fmt.Errorf("marshalling area aliases: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO areas (id, name, aliases) VALUES (?, ?, ?)",
		a.ID, a.Name, string(aliasesJSON),
	)
	if err != nil {
		return fmt.Errorf("saving area %s: %w", a.ID, err)
	}
	return nil
}

// GetLabel retrieves a label by ID.
func (r *SQLiteCatalogRepository) GetLabel(ctx context.Context, id string) (*Label, error) {
	var l Label
	var color sql.NullString
	err := r.db.QueryRowContext(ctx, "SELECT label_id, name, color FROM labels WHERE label_id = ?", id).
		Scan(&l.LabelID, &l.Name, &color)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLabelNotFound
		}
		return nil, fmt.Errorf("querying label %s: %w", id, err)
	}
	l.Color = stringPtr(color)
	return &l, nil
}

// SaveLabel inserts or replaces a label.
func (r *SQLiteCatalogRepository) SaveLabel(ctx context.Context, l *Label) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO labels (label_id, name, color) VALUES (?, ?, ?)",
		l.LabelID, l.Name, nullableString(l.Color),
	)
	if err != nil {
		return fmt.Errorf("saving label %s: %w", l.LabelID, err)
	}
	return nil
}

// GetConfigEntry retrieves a config entry by ID.
func (r *SQLiteCatalogRepository) GetConfigEntry(ctx context.Context, id string) (*ConfigEntry, error) {
	var c ConfigEntry
	var state string
	var disabledBy sql.NullString
	err := r.db.QueryRowContext(ctx,
		"SELECT entry_id, domain, title, source, version, state, disabled_by FROM config_entries WHERE entry_id = ?", id,
	).Scan(&c.EntryID, &c.Domain, &c.Title, &c.Source, &c.Version, &state, &disabledBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConfigEntryNotFound
		}
		return nil, fmt.Errorf("querying config entry %s: %w", id, err)
	}
	c.State = ConfigEntryState(state)
	c.DisabledBy = ConfigEntryDisabler(disabledBy.String)
	return &c, nil
}

// SaveConfigEntry inserts or updates a config entry. Updating in place keeps
// the entities that reference it.
func (r *SQLiteCatalogRepository) SaveConfigEntry(ctx context.Context, c *ConfigEntry) error {
	if c.State == "" {
		c.State = ConfigEntryNotLoaded
	}
	if !c.State.Valid() || !c.DisabledBy.Valid() {
		return fmt.Errorf("%w: config entry %s", ErrInvalidValue, c.EntryID)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config_entries (entry_id, domain, title, source, version, state, disabled_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entry_id) DO UPDATE SET
			domain = excluded.domain, title = excluded.title, source = excluded.source,
			version = excluded.version, state = excluded.state, disabled_by = excluded.disabled_by`,
		c.EntryID, c.Domain, c.Title, c.Source, c.Version, string(c.State), nullableEnum(string(c.DisabledBy)),
	)
	if err != nil {
		return fmt.Errorf("saving config entry %s: %w", c.EntryID, err)
	}
	return nil
}

// DeleteConfigEntry removes a config entry. Owned entities are removed by
// the foreign key cascade.
func (r *SQLiteCatalogRepository) DeleteConfigEntry(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM config_entries WHERE entry_id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting config entry: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrConfigEntryNotFound
	}
	return nil
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var nameByUser, manufacturer, model, modelID, sw, hw, serial, url, areaID sql.NullString
	var connJSON, identJSON string

	err := scanner.Scan(&d.ID, &d.Name, &nameByUser, &manufacturer, &model, &modelID,
		&sw, &hw, &serial, &url, &areaID, &connJSON, &identJSON)
	if err != nil {
		return nil, err
	}

	d.NameByUser = stringPtr(nameByUser)
	d.Manufacturer = stringPtr(manufacturer)
	d.Model = stringPtr(model)
	d.ModelID = stringPtr(modelID)
	d.SWVersion = stringPtr(sw)
	d.HWVersion = stringPtr(hw)
	d.SerialNumber = stringPtr(serial)
	d.ConfigurationURL = stringPtr(url)
	d.AreaID = stringPtr(areaID)

	if err := json.Unmarshal([]byte(connJSON), &d.Connections); err != nil {
		return nil, fmt.Errorf("unmarshalling connections: %w", err)
	}
	if err := json.Unmarshal([]byte(identJSON), &d.Identifiers); err != nil {
		return nil, fmt.Errorf("unmarshalling identifiers: %w", err)
	}
	return &d, nil
}
