package storage

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/melodyscope/melodyscope/pkg/logger"
)

func newID() string {
	return uuid.NewString()
}

// RebuildMethodConstraint recreates the analyses table with the current
// method CHECK constraint. sqlite cannot alter a CHECK in place, so the
// migration rebuilds the table inside one transaction: create the replacement,
// copy every row, drop the original, rename, restore indexes. Existing rows
// must already satisfy the constraint or the copy fails and everything rolls
// back.
func (c *DBClient) RebuildMethodConstraint() error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	log := logger.GetLogger()

	statements := []string{
		`CREATE TABLE analyses_migrated (
			id varchar(36) PRIMARY KEY,
			method text,
			track_id varchar(36),
			other_track_id varchar(36),
			score real,
			summary text,
			created_at datetime,
			CONSTRAINT analyses_method_check CHECK (` + methodCheck + `)
		)`,
		`INSERT INTO analyses_migrated (id, method, track_id, other_track_id, score, summary, created_at)
			SELECT id, method, track_id, other_track_id, score, summary, created_at FROM analyses`,
		`DROP TABLE analyses`,
		`ALTER TABLE analyses_migrated RENAME TO analyses`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_method ON analyses(method)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_track ON analyses(track_id)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_other_track ON analyses(other_track_id)`,
	}

	err := c.DB.Transaction(func(tx *gorm.DB) error {
		for _, stmt := range statements {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("rebuilding analyses table: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Infof("Rebuilt analyses method constraint")
	return nil
}
