package store

// Schema is the PostgreSQL schema holding exported results.
const Schema = "food_access"

const (
	placesTable = Schema + ".places"
	nodesTable  = Schema + ".nodes"
	edgesTable  = Schema + ".edges"
)

var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS postgis`,
	`CREATE SCHEMA IF NOT EXISTS food_access`,
	`CREATE TABLE IF NOT EXISTS food_access.places (
		place       TEXT PRIMARY KEY,
		run_id      UUID NOT NULL,
		radius_m    DOUBLE PRECISION NOT NULL,
		buffer_m    DOUBLE PRECISION NOT NULL,
		center      geometry(Point, 4326),
		aoa         geometry(Polygon, 4326),
		node_count  INTEGER NOT NULL,
		edge_count  INTEGER NOT NULL,
		warnings    TEXT[] NOT NULL DEFAULT '{}',
		exported_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS food_access.nodes (
		place                TEXT NOT NULL,
		osmid                BIGINT NOT NULL,
		grocery              BOOLEAN NOT NULL,
		nearest_grocery_time DOUBLE PRECISION,
		pagerank             DOUBLE PRECISION,
		betweenness          DOUBLE PRECISION,
		aoa                  BOOLEAN NOT NULL,
		buffer               BOOLEAN NOT NULL,
		demographics         JSONB,
		highways             JSONB,
		geom                 geometry(Point, 4326) NOT NULL,
		PRIMARY KEY (place, osmid)
	)`,
	`CREATE TABLE IF NOT EXISTS food_access.edges (
		place                TEXT NOT NULL,
		u                    BIGINT NOT NULL,
		v                    BIGINT NOT NULL,
		key                  INTEGER NOT NULL,
		length               DOUBLE PRECISION NOT NULL,
		speed_kph            DOUBLE PRECISION NOT NULL,
		travel_time          DOUBLE PRECISION NOT NULL,
		nearest_grocery_time DOUBLE PRECISION,
		pagerank             DOUBLE PRECISION,
		aoa                  BOOLEAN NOT NULL,
		buffer               BOOLEAN NOT NULL,
		tags                 JSONB,
		highways             JSONB,
		geom                 geometry(LineString, 4326),
		PRIMARY KEY (place, u, v, key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_geom ON food_access.nodes USING GIST (geom)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_geom ON food_access.edges USING GIST (geom)`,
}

var nodeColumns = []string{
	"place", "osmid", "grocery", "nearest_grocery_time", "pagerank", "betweenness",
	"aoa", "buffer", "demographics", "highways", "geom",
}

var edgeColumns = []string{
	"place", "u", "v", "key", "length", "speed_kph", "travel_time",
	"nearest_grocery_time", "pagerank", "aoa", "buffer", "tags", "highways", "geom",
}
