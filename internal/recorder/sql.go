package recorder

import (
	"context"
	"database/sql"
	"fmt"

	"sdsim/database"
	"sdsim/internal/shared"
	"sdsim/pkg/models"
)

// SQLEpisodeStore appends snapshots to the episode_records table.
type SQLEpisodeStore struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewSQLEpisodeStore(db *database.DB) *SQLEpisodeStore {
	return &SQLEpisodeStore{db: db.SQL, dialect: db.Dialect}
}

const insertColumns = `session_id, lap, sector, max_sector, cte, done, has_path, speed,
	pos_x, pos_y, pos_z, hit, sim_time, recorded_at`

func (s *SQLEpisodeStore) insertQuery() string {
	if s.dialect == database.DialectPostgres {
		return `INSERT INTO episode_records (` + insertColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	}
	return `INSERT INTO episode_records (` + insertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
}

func (s *SQLEpisodeStore) recentQuery() string {
	q := `SELECT id, ` + insertColumns + ` FROM episode_records
		WHERE session_id = %s ORDER BY recorded_at DESC, id DESC LIMIT %s`
	if s.dialect == database.DialectPostgres {
		return fmt.Sprintf(q, "$1", "$2")
	}
	return fmt.Sprintf(q, "?", "?")
}

// BatchInsert writes the batch in a single transaction.
func (s *SQLEpisodeStore) BatchInsert(ctx context.Context, batch []shared.ProgressSnapshot) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.insertQuery())
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, snap := range batch {
		r := toRecord(snap)
		_, err = stmt.ExecContext(ctx,
			r.SessionID, r.Lap, r.Sector, r.MaxSector, r.CTE, r.Done, r.HasPath, r.Speed,
			r.PosX, r.PosY, r.PosZ, r.Hit, r.SimTime, r.RecordedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert episode record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecentBySession returns up to limit records for the session, newest first.
func (s *SQLEpisodeStore) RecentBySession(ctx context.Context, sessionID string, limit int) ([]models.EpisodeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, s.recentQuery(), sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query episode records: %w", err)
	}
	defer rows.Close()

	var out []models.EpisodeRecord
	for rows.Next() {
		var r models.EpisodeRecord
		var hit sql.NullString
		var posX, posY, posZ, simTime sql.NullFloat64
		if err := rows.Scan(
			&r.ID, &r.SessionID, &r.Lap, &r.Sector, &r.MaxSector, &r.CTE, &r.Done, &r.HasPath, &r.Speed,
			&posX, &posY, &posZ, &hit, &simTime, &r.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan episode record: %w", err)
		}
		r.PosX, r.PosY, r.PosZ = posX.Float64, posY.Float64, posZ.Float64
		r.Hit, r.SimTime = hit.String, simTime.Float64
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read episode records: %w", err)
	}
	return out, nil
}

func (s *SQLEpisodeStore) Close() error {
	return s.db.Close()
}

func toRecord(s shared.ProgressSnapshot) models.EpisodeRecord {
	return models.EpisodeRecord{
		SessionID:  s.SessionID,
		Lap:        s.Lap,
		Sector:     s.Sector,
		MaxSector:  s.MaxSector,
		CTE:        s.CTE,
		Done:       s.Done,
		HasPath:    s.HasPath,
		Speed:      s.Speed,
		PosX:       s.Position.X,
		PosY:       s.Position.Y,
		PosZ:       s.Position.Z,
		Hit:        s.Hit,
		SimTime:    s.SimTime,
		RecordedAt: s.RecordedAt.UTC(),
	}
}
