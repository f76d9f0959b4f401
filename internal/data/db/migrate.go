package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/groundwork-backend/internal/domain"
	"github.com/yungbote/groundwork-backend/internal/domain/coding"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		// Read-only collaborator table, migrated here so local and test databases are complete.
		&types.Fragment{},

		// Candidate ledger + audit trail
		&types.CandidateCode{},
		&types.CodeVersion{},
		&types.IdempotencyRecord{},

		// Definitive store (graph projection source)
		&types.DefinitiveCode{},

		// Jobs
		&types.JobRun{},
	); err != nil {
		return err
	}
	if err := backfillDefinitiveNormalized(db); err != nil {
		return err
	}
	return EnsureCodingIndexes(db)
}

// backfillDefinitiveNormalized fills normalized_text on rows written before the column existed.
func backfillDefinitiveNormalized(db *gorm.DB) error {
	var batch []*coding.DefinitiveCode
	res := db.Where("normalized_text = ?", "").FindInBatches(&batch, 500, func(tx *gorm.DB, _ int) error {
		for _, d := range batch {
			norm := coding.NormalizeCodeText(d.CodeText)
			if norm == "" {
				continue
			}
			if err := db.Model(&coding.DefinitiveCode{}).Where("id = ?", d.ID).Update("normalized_text", norm).Error; err != nil {
				return fmt.Errorf("backfill definitive_code %s: %w", d.ID, err)
			}
		}
		return nil
	})
	return res.Error
}

// EnsureCodingIndexes creates the partial indexes gorm tags cannot express.
// The statements are valid on both Postgres and SQLite.
func EnsureCodingIndexes(db *gorm.DB) error {
	stmts := []struct {
		name string
		sql  string
	}{
		{
			name: "idx_candidate_pending_age",
			sql: `CREATE INDEX IF NOT EXISTS idx_candidate_pending_age
				ON candidate_code(project_id, created_at)
				WHERE state = 'pending';`,
		},
		{
			name: "idx_candidate_validated_unpromoted",
			sql: `CREATE INDEX IF NOT EXISTS idx_candidate_validated_unpromoted
				ON candidate_code(project_id, created_at)
				WHERE state = 'validated' AND promoted_at IS NULL;`,
		},
		{
			name: "idx_definitive_unsynced",
			sql: `CREATE INDEX IF NOT EXISTS idx_definitive_unsynced
				ON definitive_code(project_id, created_at)
				WHERE synced = false;`,
		},
		{
			name: "idx_job_run_runnable_entity",
			sql: `CREATE INDEX IF NOT EXISTS idx_job_run_runnable_entity
				ON job_run(project_id, job_type, entity_type, entity_id)
				WHERE status IN ('queued', 'running');`,
		},
	}
	for _, s := range stmts {
		if err := db.Exec(s.sql).Error; err != nil {
			return fmt.Errorf("create %s: %w", s.name, err)
		}
	}
	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	return nil
}
