package gpkg

import (
	"strings"

	"github.com/dyluth/burrow/internal/layer"
)

// GeoPackage 1.3 identification, written as SQLite pragmas.
const (
	applicationID = 0x47504B47 // "GPKG"
	userVersion   = 10300
)

// firstCustomSRSID is where ids for WKT-only spatial references start.
const firstCustomSRSID = 100000

const coreSchema = `
CREATE TABLE gpkg_spatial_ref_sys (
	srs_name TEXT NOT NULL,
	srs_id INTEGER NOT NULL PRIMARY KEY,
	organization TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition TEXT NOT NULL,
	description TEXT
);

CREATE TABLE gpkg_contents (
	table_name TEXT NOT NULL PRIMARY KEY,
	data_type TEXT NOT NULL,
	identifier TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x DOUBLE,
	min_y DOUBLE,
	max_x DOUBLE,
	max_y DOUBLE,
	srs_id INTEGER,
	CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);

CREATE TABLE gpkg_geometry_columns (
	table_name TEXT NOT NULL,
	column_name TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id INTEGER NOT NULL,
	z TINYINT NOT NULL,
	m TINYINT NOT NULL,
	CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
	CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
	CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);

INSERT INTO gpkg_spatial_ref_sys VALUES
	('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
	('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system'),
	('WGS 84 geodetic', 4326, 'EPSG', 4326,
	 'GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]',
	 'longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid');

CREATE TABLE burrow_layers (
	table_name TEXT NOT NULL PRIMARY KEY,
	shape_type TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	srs_definition TEXT NOT NULL DEFAULT '',
	fields_json TEXT NOT NULL,
	CONSTRAINT fk_bl_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name)
);

CREATE TABLE burrow_runs (
	run_id TEXT NOT NULL PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	target_srs TEXT NOT NULL,
	layer_count INTEGER NOT NULL,
	outputs_json TEXT NOT NULL
);
`

// quoteIdent quotes an SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func columnType(t layer.FieldType) string {
	switch t {
	case layer.Integer:
		return "INTEGER"
	case layer.Real:
		return "REAL"
	}
	return "TEXT"
}

// geometryTypeName is the gpkg_geometry_columns type for a layer.
// Line and polygon layers mix single and multi parts, so they use GEOMETRY.
func geometryTypeName(t layer.GeometryType) string {
	switch t {
	case layer.Point:
		return "POINT"
	case layer.Multipoint:
		return "MULTIPOINT"
	}
	return "GEOMETRY"
}
