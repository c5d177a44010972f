// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/trustlab/kestrel/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// CommitEvents writes a batch of validated events and bumps the graph
// version inside one transaction, returning the new version. The occurrence
// increment happens inside the database so concurrent writers never lose a
// count, and first_seen is never overwritten. Snapshot loaders comparing the
// version before and after an edge scan therefore see either none or all of
// a batch.
func (r *SQLRepository) CommitEvents(ctx context.Context, events []*domain.BehaviorEvent) (int64, error) {
	if len(events) == 0 {
		return 0, fmt.Errorf("%w: empty event batch", domain.ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	resourceQuery := r.rebind(`
		INSERT INTO resources (id, type, first_seen)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	edgeQuery := r.rebind(`
		INSERT INTO edges (user_id, resource_id, resource_type, first_seen, occurrences)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(user_id, resource_id) DO UPDATE SET
			occurrences = edges.occurrences + 1
	`)

	for _, event := range events {
		if event.UserID == "" || event.ResourceID == "" {
			return 0, fmt.Errorf("%w: userId and resourceId are required", domain.ErrInvalidInput)
		}
		if _, err := tx.ExecContext(ctx, resourceQuery,
			event.ResourceID, string(event.ResourceType), event.Timestamp,
		); err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, edgeQuery,
			event.UserID, event.ResourceID, string(event.ResourceType), event.Timestamp,
		); err != nil {
			return 0, err
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE graph_meta SET version = version + 1 WHERE id = 1`); err != nil {
		return 0, err
	}
	var version int64
	if err := tx.QueryRowContext(ctx, `SELECT version FROM graph_meta WHERE id = 1`).Scan(&version); err != nil {
		return 0, err
	}

	return version, tx.Commit()
}

// ListEdges returns the full association-edge set.
func (r *SQLRepository) ListEdges(ctx context.Context) ([]*domain.AssociationEdge, error) {
	query := `
		SELECT user_id, resource_id, resource_type, first_seen, occurrences
		FROM edges
		ORDER BY user_id, resource_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []*domain.AssociationEdge
	for rows.Next() {
		var e domain.AssociationEdge
		var resType string
		if err := rows.Scan(&e.UserID, &e.ResourceID, &resType, &e.FirstSeen, &e.Occurrences); err != nil {
			return nil, err
		}
		e.ResourceType = domain.ResourceType(resType)
		edges = append(edges, &e)
	}

	return edges, rows.Err()
}

// GraphVersion returns the current graph version.
func (r *SQLRepository) GraphVersion(ctx context.Context) (int64, error) {
	var version int64
	err := r.db.QueryRowContext(ctx, `SELECT version FROM graph_meta WHERE id = 1`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// SaveProfile upserts a user's behavioral aggregates.
func (r *SQLRepository) SaveProfile(ctx context.Context, profile *domain.BehaviorProfile) error {
	if profile.UserID == "" {
		return fmt.Errorf("%w: userId is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO profiles (
			user_id, created_at, return_count, return_frequency,
			avg_return_value, max_return_value, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			return_count = excluded.return_count,
			return_frequency = excluded.return_frequency,
			avg_return_value = excluded.avg_return_value,
			max_return_value = excluded.max_return_value,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		profile.UserID, profile.CreatedAt,
		profile.ReturnCount, profile.ReturnFrequency,
		profile.AvgReturnValue, profile.MaxReturnValue,
		time.Now().UTC(),
	)
	return err
}

// GetProfile retrieves a user's behavioral profile.
func (r *SQLRepository) GetProfile(ctx context.Context, userID string) (*domain.BehaviorProfile, error) {
	query := `
		SELECT user_id, created_at, return_count, return_frequency,
		       avg_return_value, max_return_value, updated_at
		FROM profiles
		WHERE user_id = ?
	`

	var p domain.BehaviorProfile
	err := r.db.QueryRowContext(ctx, r.rebind(query), userID).Scan(
		&p.UserID, &p.CreatedAt, &p.ReturnCount, &p.ReturnFrequency,
		&p.AvgReturnValue, &p.MaxReturnValue, &p.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// ListProfiles returns all behavioral profiles.
func (r *SQLRepository) ListProfiles(ctx context.Context) ([]*domain.BehaviorProfile, error) {
	query := `
		SELECT user_id, created_at, return_count, return_frequency,
		       avg_return_value, max_return_value, updated_at
		FROM profiles
		ORDER BY user_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*domain.BehaviorProfile
	for rows.Next() {
		var p domain.BehaviorProfile
		if err := rows.Scan(
			&p.UserID, &p.CreatedAt, &p.ReturnCount, &p.ReturnFrequency,
			&p.AvgReturnValue, &p.MaxReturnValue, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		profiles = append(profiles, &p)
	}

	return profiles, rows.Err()
}

// SaveEmbeddings stores a batch of embeddings for one model version.
func (r *SQLRepository) SaveEmbeddings(ctx context.Context, embeddings []*domain.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := r.rebind(`
		INSERT INTO embeddings (user_id, model_version, vector, seed, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, model_version) DO UPDATE SET
			vector = excluded.vector,
			seed = excluded.seed,
			created_at = excluded.created_at
	`)

	for _, emb := range embeddings {
		vec, err := json.Marshal(emb.Vector)
		if err != nil {
			return fmt.Errorf("failed to encode vector for %s: %w", emb.UserID, err)
		}
		if _, err := tx.ExecContext(ctx, query,
			emb.UserID, emb.ModelVersion, string(vec), emb.Seed, emb.CreatedAt,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListEmbeddings returns all embeddings for a model version.
func (r *SQLRepository) ListEmbeddings(ctx context.Context, modelVersion string) ([]*domain.Embedding, error) {
	query := `
		SELECT user_id, model_version, vector, seed, created_at
		FROM embeddings
		WHERE model_version = ?
		ORDER BY user_id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), modelVersion)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var embeddings []*domain.Embedding
	for rows.Next() {
		var emb domain.Embedding
		var vec string
		if err := rows.Scan(&emb.UserID, &emb.ModelVersion, &vec, &emb.Seed, &emb.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(vec), &emb.Vector); err != nil {
			return nil, fmt.Errorf("failed to decode vector for %s: %w", emb.UserID, err)
		}
		embeddings = append(embeddings, &emb)
	}

	return embeddings, rows.Err()
}

// SaveRings stores an epoch's detected rings.
func (r *SQLRepository) SaveRings(ctx context.Context, epochID string, rings []*domain.Ring) error {
	if epochID == "" {
		return fmt.Errorf("%w: epochID is required", domain.ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := r.rebind(`
		INSERT INTO rings (
			id, epoch_id, center_user_id, risk_level, avg_similarity,
			total_exposure, shared_devices, shared_ips, shared_addresses,
			members, detected_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for _, ring := range rings {
		members, err := json.Marshal(ring.Members)
		if err != nil {
			return fmt.Errorf("failed to encode ring members: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query,
			ring.ID, epochID, ring.CenterUserID, string(ring.RiskLevel),
			ring.AvgSimilarity, ring.TotalExposure,
			ring.SharedDevices, ring.SharedIPs, ring.SharedAddresses,
			string(members), ring.DetectedAt,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetRing retrieves a ring by ID.
func (r *SQLRepository) GetRing(ctx context.Context, ringID string) (*domain.Ring, error) {
	query := `
		SELECT id, epoch_id, center_user_id, risk_level, avg_similarity,
		       total_exposure, shared_devices, shared_ips, shared_addresses,
		       members, detected_at
		FROM rings
		WHERE id = ?
	`

	ring, err := r.scanRing(r.db.QueryRowContext(ctx, r.rebind(query), ringID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return ring, err
}

// ListRings returns an epoch's rings, optionally filtered by risk level.
func (r *SQLRepository) ListRings(ctx context.Context, epochID string, riskLevel domain.RiskLevel) ([]*domain.Ring, error) {
	if epochID == "" {
		return nil, fmt.Errorf("%w: epochID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, epoch_id, center_user_id, risk_level, avg_similarity,
		       total_exposure, shared_devices, shared_ips, shared_addresses,
		       members, detected_at
		FROM rings
		WHERE epoch_id = ?
	`
	args := []any{epochID}

	if riskLevel != "" {
		query += ` AND risk_level = ?`
		args = append(args, string(riskLevel))
	}
	query += ` ORDER BY total_exposure DESC, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rings []*domain.Ring
	for rows.Next() {
		ring, err := r.scanRing(rows)
		if err != nil {
			return nil, err
		}
		rings = append(rings, ring)
	}

	return rings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanRing(row rowScanner) (*domain.Ring, error) {
	var ring domain.Ring
	var riskLevel, members string

	err := row.Scan(
		&ring.ID, &ring.EpochID, &ring.CenterUserID, &riskLevel,
		&ring.AvgSimilarity, &ring.TotalExposure,
		&ring.SharedDevices, &ring.SharedIPs, &ring.SharedAddresses,
		&members, &ring.DetectedAt,
	)
	if err != nil {
		return nil, err
	}

	ring.RiskLevel = domain.RiskLevel(riskLevel)
	if err := json.Unmarshal([]byte(members), &ring.Members); err != nil {
		return nil, fmt.Errorf("failed to decode ring members for %s: %w", ring.ID, err)
	}

	return &ring, nil
}

// SaveTrustRecords stages an epoch's trust records. Records are written with
// is_current = 0; PublishEpoch flips the flag for the whole epoch at once.
func (r *SQLRepository) SaveTrustRecords(ctx context.Context, records []*domain.TrustRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := r.rebind(`
		INSERT INTO trust_records (
			user_id, epoch_id, fraud_probability, graph_signal,
			trust_score, tier, computed_at, is_current
		) VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`)

	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, query,
			rec.UserID, rec.EpochID, rec.FraudProbability, rec.GraphSignal,
			rec.TrustScore, string(rec.Tier), rec.ComputedAt,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetCurrentTrustRecord retrieves the published trust record for a user.
func (r *SQLRepository) GetCurrentTrustRecord(ctx context.Context, userID string) (*domain.TrustRecord, error) {
	query := `
		SELECT user_id, epoch_id, fraud_probability, graph_signal,
		       trust_score, tier, computed_at
		FROM trust_records
		WHERE user_id = ? AND is_current = 1
	`

	var rec domain.TrustRecord
	var tier string
	err := r.db.QueryRowContext(ctx, r.rebind(query), userID).Scan(
		&rec.UserID, &rec.EpochID, &rec.FraudProbability, &rec.GraphSignal,
		&rec.TrustScore, &tier, &rec.ComputedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.Tier = domain.Tier(tier)
	return &rec, nil
}

// ListTrustHistory returns a user's trust records, newest first.
func (r *SQLRepository) ListTrustHistory(ctx context.Context, userID string, limit int) ([]*domain.TrustRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT user_id, epoch_id, fraud_probability, graph_signal,
		       trust_score, tier, computed_at
		FROM trust_records
		WHERE user_id = ?
		ORDER BY computed_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.TrustRecord
	for rows.Next() {
		var rec domain.TrustRecord
		var tier string
		if err := rows.Scan(
			&rec.UserID, &rec.EpochID, &rec.FraudProbability, &rec.GraphSignal,
			&rec.TrustScore, &tier, &rec.ComputedAt,
		); err != nil {
			return nil, err
		}
		rec.Tier = domain.Tier(tier)
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// TierDistribution reports current per-tier counts and percentages.
func (r *SQLRepository) TierDistribution(ctx context.Context) ([]domain.TierSummary, error) {
	query := `
		SELECT tier, COUNT(*)
		FROM trust_records
		WHERE is_current = 1
		GROUP BY tier
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []domain.TierSummary
	total := 0
	for rows.Next() {
		var s domain.TierSummary
		var tier string
		if err := rows.Scan(&tier, &s.Count); err != nil {
			return nil, err
		}
		s.Tier = domain.Tier(tier)
		total += s.Count
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if total > 0 {
		for i := range summaries {
			summaries[i].Percentage = 100 * float64(summaries[i].Count) / float64(total)
		}
	}

	return summaries, nil
}

// SaveEpoch stores or updates an epoch record.
func (r *SQLRepository) SaveEpoch(ctx context.Context, epoch *domain.Epoch) error {
	exceptions, err := json.Marshal(epoch.Exceptions)
	if err != nil {
		return fmt.Errorf("failed to encode exceptions: %w", err)
	}

	var completedAt any
	if epoch.CompletedAt != nil {
		completedAt = *epoch.CompletedAt
	}

	query := `
		INSERT INTO epochs (
			id, status, graph_version, model_version, seed, started_at,
			completed_at, users_scored, rings_detected, exceptions, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			users_scored = excluded.users_scored,
			rings_detected = excluded.rings_detected,
			exceptions = excluded.exceptions,
			error = excluded.error
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		epoch.ID, string(epoch.Status), epoch.GraphVersion, epoch.ModelVersion,
		epoch.Seed, epoch.StartedAt, completedAt,
		epoch.UsersScored, epoch.RingsDetected, string(exceptions), epoch.Error,
	)
	return err
}

// GetEpoch retrieves an epoch by ID.
func (r *SQLRepository) GetEpoch(ctx context.Context, epochID string) (*domain.Epoch, error) {
	query := `
		SELECT id, status, graph_version, model_version, seed, started_at,
		       completed_at, users_scored, rings_detected, exceptions, error
		FROM epochs
		WHERE id = ?
	`

	epoch, err := r.scanEpoch(r.db.QueryRowContext(ctx, r.rebind(query), epochID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return epoch, err
}

// CurrentEpoch returns the most recently published epoch.
func (r *SQLRepository) CurrentEpoch(ctx context.Context) (*domain.Epoch, error) {
	query := `
		SELECT id, status, graph_version, model_version, seed, started_at,
		       completed_at, users_scored, rings_detected, exceptions, error
		FROM epochs
		WHERE status = ?
		ORDER BY completed_at DESC
		LIMIT 1
	`

	epoch, err := r.scanEpoch(r.db.QueryRowContext(ctx, r.rebind(query), string(domain.EpochPublished)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return epoch, err
}

func (r *SQLRepository) scanEpoch(row rowScanner) (*domain.Epoch, error) {
	var epoch domain.Epoch
	var status, exceptions string
	var completedAt sql.NullTime
	var errMsg sql.NullString

	err := row.Scan(
		&epoch.ID, &status, &epoch.GraphVersion, &epoch.ModelVersion,
		&epoch.Seed, &epoch.StartedAt, &completedAt,
		&epoch.UsersScored, &epoch.RingsDetected, &exceptions, &errMsg,
	)
	if err != nil {
		return nil, err
	}

	epoch.Status = domain.EpochStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		epoch.CompletedAt = &t
	}
	if errMsg.Valid {
		epoch.Error = errMsg.String
	}
	if err := json.Unmarshal([]byte(exceptions), &epoch.Exceptions); err != nil {
		return nil, fmt.Errorf("failed to decode exceptions for epoch %s: %w", epoch.ID, err)
	}

	return &epoch, nil
}

// PublishEpoch atomically swaps the current trust-record set to the epoch's
// records and marks the epoch published. Consumers never observe a partially
// published epoch: the whole swap happens in one transaction.
func (r *SQLRepository) PublishEpoch(ctx context.Context, epoch *domain.Epoch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		r.rebind(`UPDATE trust_records SET is_current = 0 WHERE is_current = 1`),
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		r.rebind(`UPDATE trust_records SET is_current = 1 WHERE epoch_id = ?`), epoch.ID,
	); err != nil {
		return err
	}

	exceptions, err := json.Marshal(epoch.Exceptions)
	if err != nil {
		return fmt.Errorf("failed to encode exceptions: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, r.rebind(`
		UPDATE epochs SET
			status = ?, completed_at = ?, users_scored = ?,
			rings_detected = ?, exceptions = ?
		WHERE id = ?
	`),
		string(domain.EpochPublished), now, epoch.UsersScored,
		epoch.RingsDetected, string(exceptions), epoch.ID,
	); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	epoch.Status = domain.EpochPublished
	epoch.CompletedAt = &now
	return nil
}

// SaveModelArtifact stores a classifier artifact and makes it active,
// deactivating any previous artifact in the same transaction.
func (r *SQLRepository) SaveModelArtifact(ctx context.Context, artifact *domain.ModelArtifact) error {
	if artifact.Version == "" {
		return fmt.Errorf("%w: artifact version is required", domain.ErrInvalidInput)
	}

	schema, err := json.Marshal(artifact.FeatureSchema)
	if err != nil {
		return fmt.Errorf("failed to encode feature schema: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		r.rebind(`UPDATE model_artifacts SET active = 0 WHERE active = 1`),
	); err != nil {
		return err
	}

	query := r.rebind(`
		INSERT INTO model_artifacts (
			version, kind, feature_schema, schema_version, payload, active, uploaded_at
		) VALUES (?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(version) DO UPDATE SET
			kind = excluded.kind,
			feature_schema = excluded.feature_schema,
			schema_version = excluded.schema_version,
			payload = excluded.payload,
			active = 1,
			uploaded_at = excluded.uploaded_at
	`)

	if _, err := tx.ExecContext(ctx, query,
		artifact.Version, artifact.Kind, string(schema),
		artifact.SchemaVersion, artifact.Payload, time.Now().UTC(),
	); err != nil {
		return err
	}

	return tx.Commit()
}

// ActiveModelArtifact returns the currently active classifier artifact.
func (r *SQLRepository) ActiveModelArtifact(ctx context.Context) (*domain.ModelArtifact, error) {
	query := `
		SELECT version, kind, feature_schema, schema_version, payload, uploaded_at
		FROM model_artifacts
		WHERE active = 1
		ORDER BY uploaded_at DESC
		LIMIT 1
	`

	var artifact domain.ModelArtifact
	var schema string
	err := r.db.QueryRowContext(ctx, query).Scan(
		&artifact.Version, &artifact.Kind, &schema,
		&artifact.SchemaVersion, &artifact.Payload, &artifact.UploadedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	artifact.Active = true
	if err := json.Unmarshal([]byte(schema), &artifact.FeatureSchema); err != nil {
		return nil, fmt.Errorf("failed to decode feature schema: %w", err)
	}

	return &artifact, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			fmt.Fprintf(&b, "$%d", n)
			n++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
