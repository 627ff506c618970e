// Package gpkg is the geodatabase container the pipeline writes into: a
// GeoPackage (SQLite) file holding one table per layer, with the standard
// gpkg_* catalog tables so the result opens in any GIS.
package gpkg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dyluth/burrow/internal/layer"
	_ "modernc.org/sqlite"
)

var (
	// ErrLayerExists is returned when writing a layer whose name is already taken.
	ErrLayerExists = errors.New("layer already exists")

	// ErrLayerNotFound is returned when reading a layer that is not in the container.
	ErrLayerNotFound = errors.New("layer not found")

	// ErrContainerNotFound is returned by Open when the file does not exist.
	ErrContainerNotFound = errors.New("container not found")
)

// Container is an open GeoPackage file.
type Container struct {
	db   *sql.DB
	path string
}

// LayerInfo is one catalog entry.
type LayerInfo struct {
	Name         string             `json:"name"`
	DataType     string             `json:"data_type"`
	GeometryType layer.GeometryType `json:"geometry_type"`
	SRSName      string             `json:"srs_name,omitempty"`
	SRSID        int64              `json:"srs_id,omitempty"`
	Features     int                `json:"features"`
	Source       string             `json:"source,omitempty"`
	MinX         *float64           `json:"min_x,omitempty"`
	MinY         *float64           `json:"min_y,omitempty"`
	MaxX         *float64           `json:"max_x,omitempty"`
	MaxY         *float64           `json:"max_y,omitempty"`
}

// Run is the record of one pipeline execution kept inside the container.
type Run struct {
	ID         string            `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	TargetSRS  string            `json:"target_srs"`
	LayerCount int               `json:"layer_count"`
	Outputs    map[string]string `json:"outputs"`
}

// Recreate deletes the container at path if it exists and creates a fresh one.
func Recreate(ctx context.Context, path string) (*Container, error) {
	if err := Delete(path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create container directory: %w", err)
	}

	c, err := open(path)
	if err != nil {
		return nil, err
	}

	pragmas := fmt.Sprintf("PRAGMA application_id = %d; PRAGMA user_version = %d;", applicationID, userVersion)
	if _, err := c.db.ExecContext(ctx, pragmas); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to set container pragmas: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, coreSchema); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize container schema: %w", err)
	}

	return c, nil
}

// Delete removes a container file and its SQLite sidecars, verifying it is gone.
func Delete(path string) error {
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete container %s: %w", path+suffix, err)
		}
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("container %s was not deleted", path)
	}
	return nil
}

// Open opens an existing container.
func Open(path string) (*Container, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrContainerNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat container: %w", err)
	}
	return open(path)
}

func open(path string) (*Container, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open container: %w", err)
	}
	// SQLite has a single writer; one connection keeps pragmas and transactions simple.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &Container{db: db, path: path}, nil
}

// Close closes the underlying database.
func (c *Container) Close() error {
	return c.db.Close()
}

// Path returns the container file path.
func (c *Container) Path() string {
	return c.path
}

// CatalogPath returns the path a layer is addressed by inside the container.
func (c *Container) CatalogPath(name string) string {
	return filepath.Join(c.path, name)
}

// Exists reports whether a layer (or any table) with the name exists.
func (c *Container) Exists(ctx context.Context, name string) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND lower(name) = lower(?)", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check layer existence: %w", err)
	}
	return n > 0, nil
}

// WriteLayer creates a table for the layer and inserts all of its features.
// Layers without a geometry type (layer.None) are registered as attribute tables.
func (c *Container) WriteLayer(ctx context.Context, l *layer.Layer) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("invalid layer: %w", err)
	}
	exists, err := c.Exists(ctx, l.Name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrLayerExists, l.Name)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	spatial := l.GeometryType != layer.None
	var srsID int64 = -1
	if spatial && !l.SRS.IsZero() {
		srsID, err = registerSRS(ctx, tx, l.SRS)
		if err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, createTableSQL(l, spatial)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", l.Name, err)
	}

	if err := registerContents(ctx, tx, l, spatial, srsID); err != nil {
		return err
	}

	if err := insertFeatures(ctx, tx, l, spatial, srsID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit layer %s: %w", l.Name, err)
	}
	return nil
}

func createTableSQL(l *layer.Layer, spatial bool) string {
	cols := []string{"fid INTEGER PRIMARY KEY AUTOINCREMENT"}
	if spatial {
		cols = append(cols, "geom "+geometryTypeName(l.GeometryType))
	}
	for _, f := range l.Fields {
		cols = append(cols, quoteIdent(f.Name)+" "+columnType(f.Type))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(l.Name), strings.Join(cols, ", "))
}

func registerSRS(ctx context.Context, tx *sql.Tx, srs layer.SRS) (int64, error) {
	definition := srs.Definition
	if definition == "" || strings.HasPrefix(strings.ToUpper(definition), "EPSG:") {
		definition = "undefined"
	}
	name := srs.Name
	if name == "" {
		name = srs.String()
	}

	if srs.Code != 0 {
		_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO gpkg_spatial_ref_sys
			(srs_name, srs_id, organization, organization_coordsys_id, definition)
			VALUES (?, ?, 'EPSG', ?, ?)`, name, srs.Code, srs.Code, definition)
		if err != nil {
			return 0, fmt.Errorf("failed to register spatial reference %s: %w", name, err)
		}
		return int64(srs.Code), nil
	}

	var id int64
	err := tx.QueryRowContext(ctx,
		"SELECT srs_id FROM gpkg_spatial_ref_sys WHERE organization = 'NONE' AND definition = ?", definition).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up spatial reference: %w", err)
	}

	if err := tx.QueryRowContext(ctx,
		"SELECT MAX(?, COALESCE(MAX(srs_id) + 1, 0)) FROM gpkg_spatial_ref_sys", firstCustomSRSID).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to allocate spatial reference id: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO gpkg_spatial_ref_sys
		(srs_name, srs_id, organization, organization_coordsys_id, definition)
		VALUES (?, ?, 'NONE', ?, ?)`, name, id, id, definition)
	if err != nil {
		return 0, fmt.Errorf("failed to register spatial reference %s: %w", name, err)
	}
	return id, nil
}

func registerContents(ctx context.Context, tx *sql.Tx, l *layer.Layer, spatial bool, srsID int64) error {
	dataType := "attributes"
	var minX, minY, maxX, maxY, srs any
	if spatial {
		dataType = "features"
		srs = srsID
		if b, ok := l.Bound(); ok {
			minX, minY, maxX, maxY = b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()
		}
	}

	_, err := tx.ExecContext(ctx, `INSERT INTO gpkg_contents
		(table_name, data_type, identifier, description, min_x, min_y, max_x, max_y, srs_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.Name, dataType, l.Name, l.Source, minX, minY, maxX, maxY, srs)
	if err != nil {
		return fmt.Errorf("failed to register layer %s: %w", l.Name, err)
	}

	if spatial {
		_, err = tx.ExecContext(ctx, `INSERT INTO gpkg_geometry_columns
			(table_name, column_name, geometry_type_name, srs_id, z, m)
			VALUES (?, 'geom', ?, ?, 0, 0)`, l.Name, geometryTypeName(l.GeometryType), srsID)
		if err != nil {
			return fmt.Errorf("failed to register geometry column for %s: %w", l.Name, err)
		}
	}

	fieldsJSON, err := json.Marshal(l.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO burrow_layers
		(table_name, shape_type, source, srs_definition, fields_json)
		VALUES (?, ?, ?, ?, ?)`,
		l.Name, string(l.GeometryType), l.Source, l.SRS.Definition, string(fieldsJSON))
	if err != nil {
		return fmt.Errorf("failed to record layer metadata for %s: %w", l.Name, err)
	}
	return nil
}

func insertFeatures(ctx context.Context, tx *sql.Tx, l *layer.Layer, spatial bool, srsID int64) error {
	cols := []string{"fid"}
	if spatial {
		cols = append(cols, "geom")
	}
	for _, f := range l.Fields {
		cols = append(cols, quoteIdent(f.Name))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(l.Name), strings.Join(cols, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("failed to prepare insert for %s: %w", l.Name, err)
	}
	defer stmt.Close()

	args := make([]any, 0, len(cols))
	for _, f := range l.Features {
		args = append(args[:0], f.FID)
		if spatial {
			blob, err := EncodeGeometry(f.Geometry, int32(srsID))
			if err != nil {
				return fmt.Errorf("%s feature %d: %w", l.Name, f.FID, err)
			}
			if blob == nil {
				args = append(args, nil)
			} else {
				args = append(args, blob)
			}
		}
		args = append(args, f.Values...)

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert %s feature %d: %w", l.Name, f.FID, err)
		}
	}
	return nil
}

// ReadLayer loads a layer with all of its features, ordered by fid.
func (c *Container) ReadLayer(ctx context.Context, name string) (*layer.Layer, error) {
	var (
		tableName, shapeType, source, definition, fieldsJSON string
		srsName                                              sql.NullString
		organization                                         sql.NullString
		orgCode                                              sql.NullInt64
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT bl.table_name, bl.shape_type, bl.source, bl.srs_definition, bl.fields_json,
		       s.srs_name, s.organization, s.organization_coordsys_id
		FROM burrow_layers bl
		JOIN gpkg_contents gc ON gc.table_name = bl.table_name
		LEFT JOIN gpkg_spatial_ref_sys s ON s.srs_id = gc.srs_id
		WHERE lower(bl.table_name) = lower(?)`, name).Scan(
		&tableName, &shapeType, &source, &definition, &fieldsJSON, &srsName, &organization, &orgCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrLayerNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read layer metadata for %s: %w", name, err)
	}

	gt, err := layer.ParseGeometryType(shapeType)
	if err != nil {
		return nil, err
	}
	var fields []layer.Field
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return nil, fmt.Errorf("failed to parse fields of %s: %w", name, err)
	}

	l := &layer.Layer{
		Name:         tableName,
		GeometryType: gt,
		Fields:       fields,
		Source:       source,
	}
	if definition != "" {
		l.SRS.Definition = definition
		l.SRS.Name = srsName.String
		if organization.String == "EPSG" {
			l.SRS.Code = int(orgCode.Int64)
		}
	}

	spatial := gt != layer.None
	cols := []string{"fid"}
	if spatial {
		cols = append(cols, "geom")
	}
	for _, f := range fields {
		cols = append(cols, quoteIdent(f.Name))
	}

	rows, err := c.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY fid",
		strings.Join(cols, ", "), quoteIdent(tableName)))
	if err != nil {
		return nil, fmt.Errorf("failed to query layer %s: %w", name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var fid int64
		var blob []byte
		values := make([]any, len(fields))
		dest := []any{&fid}
		if spatial {
			dest = append(dest, &blob)
		}
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", name, err)
		}

		f := &layer.Feature{FID: fid, Values: values}
		if spatial {
			g, _, err := DecodeGeometry(blob)
			if err != nil {
				return nil, fmt.Errorf("%s feature %d: %w", name, fid, err)
			}
			f.Geometry = g
		}
		for i, field := range fields {
			values[i] = normalizeValue(values[i], field.Type)
		}
		l.Features = append(l.Features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read layer %s: %w", name, err)
	}

	return l, nil
}

// normalizeValue converts a scanned SQLite value to the field's Go type.
func normalizeValue(v any, t layer.FieldType) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		v = string(x)
	case int64:
		if t == layer.Real {
			return float64(x)
		}
	case float64:
		if t == layer.Integer {
			return int64(x)
		}
	}
	return v
}

// Layers lists the container catalog in creation order.
func (c *Container) Layers(ctx context.Context) ([]LayerInfo, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT gc.table_name, gc.data_type, bl.shape_type, COALESCE(s.srs_name, ''), COALESCE(gc.srs_id, 0),
		       bl.source, gc.min_x, gc.min_y, gc.max_x, gc.max_y
		FROM gpkg_contents gc
		JOIN burrow_layers bl ON bl.table_name = gc.table_name
		LEFT JOIN gpkg_spatial_ref_sys s ON s.srs_id = gc.srs_id
		ORDER BY gc.rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list layers: %w", err)
	}
	defer rows.Close()

	var infos []LayerInfo
	for rows.Next() {
		var info LayerInfo
		var shapeType string
		var minX, minY, maxX, maxY sql.NullFloat64
		if err := rows.Scan(&info.Name, &info.DataType, &shapeType, &info.SRSName, &info.SRSID,
			&info.Source, &minX, &minY, &maxX, &maxY); err != nil {
			return nil, fmt.Errorf("failed to scan layer entry: %w", err)
		}
		info.GeometryType = layer.GeometryType(shapeType)
		info.MinX, info.MinY = nullable(minX), nullable(minY)
		info.MaxX, info.MaxY = nullable(maxX), nullable(maxY)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list layers: %w", err)
	}

	for i := range infos {
		if err := c.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM "+quoteIdent(infos[i].Name)).Scan(&infos[i].Features); err != nil {
			return nil, fmt.Errorf("failed to count features of %s: %w", infos[i].Name, err)
		}
	}
	return infos, nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// RecordRun stores the summary of a pipeline execution.
func (c *Container) RecordRun(ctx context.Context, r Run) error {
	outputs, err := json.Marshal(r.Outputs)
	if err != nil {
		return fmt.Errorf("failed to marshal run outputs: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `INSERT INTO burrow_runs
		(run_id, started_at, finished_at, target_srs, layer_count, outputs_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UTC().Format(time.RFC3339Nano), r.FinishedAt.UTC().Format(time.RFC3339Nano),
		r.TargetSRS, r.LayerCount, string(outputs))
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.ID, err)
	}
	return nil
}

// Runs returns the recorded pipeline executions, oldest first.
func (c *Container) Runs(ctx context.Context) ([]Run, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT run_id, started_at, finished_at, target_srs, layer_count, outputs_json
		FROM burrow_runs ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished, outputs string
		if err := rows.Scan(&r.ID, &started, &finished, &r.TargetSRS, &r.LayerCount, &outputs); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		if err := json.Unmarshal([]byte(outputs), &r.Outputs); err != nil {
			return nil, fmt.Errorf("failed to parse outputs of run %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
