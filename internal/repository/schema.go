package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaResources = `
CREATE TABLE IF NOT EXISTS resources (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    first_seen TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_resources_type ON resources(type);
`

// Edges are append-only: the upsert path only ever increments occurrences
// and never touches first_seen.
const schemaEdges = `
CREATE TABLE IF NOT EXISTS edges (
    user_id TEXT NOT NULL,
    resource_id TEXT NOT NULL,
    resource_type TEXT NOT NULL,
    first_seen TIMESTAMP NOT NULL,
    occurrences INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (user_id, resource_id)
);

CREATE INDEX IF NOT EXISTS idx_edges_resource ON edges(resource_id);
CREATE INDEX IF NOT EXISTS idx_edges_user ON edges(user_id);
`

const schemaGraphMeta = `
CREATE TABLE IF NOT EXISTS graph_meta (
    id INTEGER PRIMARY KEY,
    version INTEGER NOT NULL
);

INSERT INTO graph_meta (id, version) SELECT 1, 0
WHERE NOT EXISTS (SELECT 1 FROM graph_meta WHERE id = 1);
`

const schemaProfiles = `
CREATE TABLE IF NOT EXISTS profiles (
    user_id TEXT PRIMARY KEY,
    created_at TIMESTAMP NOT NULL,
    return_count REAL NOT NULL,
    return_frequency REAL NOT NULL,
    avg_return_value REAL NOT NULL,
    max_return_value REAL NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaEmbeddings = `
CREATE TABLE IF NOT EXISTS embeddings (
    user_id TEXT NOT NULL,
    model_version TEXT NOT NULL,
    vector TEXT NOT NULL,
    seed INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (user_id, model_version)
);
`

const schemaRings = `
CREATE TABLE IF NOT EXISTS rings (
    id TEXT PRIMARY KEY,
    epoch_id TEXT NOT NULL,
    center_user_id TEXT NOT NULL,
    risk_level TEXT NOT NULL,
    avg_similarity REAL NOT NULL,
    total_exposure REAL NOT NULL,
    shared_devices INTEGER NOT NULL DEFAULT 0,
    shared_ips INTEGER NOT NULL DEFAULT 0,
    shared_addresses INTEGER NOT NULL DEFAULT 0,
    members TEXT NOT NULL,
    detected_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rings_epoch ON rings(epoch_id);
CREATE INDEX IF NOT EXISTS idx_rings_risk ON rings(epoch_id, risk_level);
CREATE INDEX IF NOT EXISTS idx_rings_center ON rings(center_user_id);
`

// Trust records are append-only. Exactly one record per user carries
// is_current = 1; the flag is swapped for a whole epoch inside a single
// transaction so readers never observe a half-published epoch.
const schemaTrustRecords = `
CREATE TABLE IF NOT EXISTS trust_records (
    user_id TEXT NOT NULL,
    epoch_id TEXT NOT NULL,
    fraud_probability REAL NOT NULL,
    graph_signal REAL NOT NULL,
    trust_score REAL NOT NULL,
    tier TEXT NOT NULL,
    computed_at TIMESTAMP NOT NULL,
    is_current INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (user_id, epoch_id)
);

CREATE INDEX IF NOT EXISTS idx_trust_current ON trust_records(user_id, is_current);
CREATE INDEX IF NOT EXISTS idx_trust_epoch ON trust_records(epoch_id);
CREATE INDEX IF NOT EXISTS idx_trust_tier ON trust_records(is_current, tier);
`

const schemaEpochs = `
CREATE TABLE IF NOT EXISTS epochs (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    graph_version INTEGER NOT NULL,
    model_version TEXT NOT NULL,
    seed INTEGER NOT NULL,
    started_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP,
    users_scored INTEGER NOT NULL DEFAULT 0,
    rings_detected INTEGER NOT NULL DEFAULT 0,
    exceptions TEXT NOT NULL DEFAULT '{}',
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_epochs_status ON epochs(status, completed_at);
`

const schemaModelArtifacts = `
CREATE TABLE IF NOT EXISTS model_artifacts (
    version TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    feature_schema TEXT NOT NULL,
    schema_version TEXT NOT NULL,
    payload BLOB NOT NULL,
    active INTEGER NOT NULL DEFAULT 0,
    uploaded_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in creation order.
func AllSchemas() []string {
	return []string{
		schemaResources,
		schemaEdges,
		schemaGraphMeta,
		schemaProfiles,
		schemaEmbeddings,
		schemaRings,
		schemaTrustRecords,
		schemaEpochs,
		schemaModelArtifacts,
	}
}
