package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/melodyscope/melodyscope/pkg/melodyscope/analysis"
)

const DefaultDBFile = "melodyscope.sqlite3"
const errDBClientNil = "db client is nil"

// methodCheck mirrors analysis.Methods(); the database constraint is the
// defense-in-depth backstop behind the write-boundary validation.
const methodCheck = "method IN ('chromaprint','hpcp','dtw','lyrics','music_identification'," +
	"'similarity_detection','melody_similarity','cover_detection','similarity_comparison','other')"

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

// Track is an immutable audio source reference. The analysis core only ever
// reads its bytes; rows are created on upload and removed on explicit delete.
type Track struct {
	ID              string    `gorm:"primaryKey;type:varchar(36)"`
	Title           string    `gorm:"index:idx_track_title" json:"title"`
	Location        string    `json:"location"`
	ChecksumSHA256  string    `gorm:"uniqueIndex:idx_track_checksum" json:"checksum_sha256"`
	DurationSeconds float64   `json:"duration_seconds"`
	SampleRate      int       `json:"sample_rate"`
	UploadedAt      time.Time
}

// Analysis is the persisted form of an analysis record. Summary holds the
// structured payload as JSON text. Rows are append-only.
type Analysis struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)"`
	Method       string    `gorm:"index:idx_analyses_method;check:analyses_method_check,method IN ('chromaprint','hpcp','dtw','lyrics','music_identification','similarity_detection','melody_similarity','cover_detection','similarity_comparison','other')" json:"method"`
	TrackID      string    `gorm:"type:varchar(36);index:idx_analyses_track" json:"track_id"`
	OtherTrackID string    `gorm:"type:varchar(36);index:idx_analyses_other_track" json:"other_track_id"`
	Score        *float64  `json:"score"`
	Summary      string    `json:"summary"`
	CreatedAt    time.Time
}

func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("MELODYSCOPE_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_foreign_keys=on"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Track{}, &Analysis{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// RegisterTrack stores a track reference, deduplicating on checksum: a
// re-upload of identical bytes returns the existing row.
func (c *DBClient) RegisterTrack(title, location, checksum string, durationSeconds float64, sampleRate int) (*Track, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}

	var track Track
	if checksum != "" {
		err := c.DB.Where("checksum_sha256 = ?", checksum).First(&track).Error
		if err == nil {
			return &track, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("querying existing track: %w", err)
		}
	}

	track = Track{
		ID:              newID(),
		Title:           title,
		Location:        location,
		ChecksumSHA256:  checksum,
		DurationSeconds: durationSeconds,
		SampleRate:      sampleRate,
		UploadedAt:      time.Now().UTC(),
	}
	if err := c.DB.Create(&track).Error; err != nil {
		if checksum != "" {
			// Lost a race against a concurrent upload of the same bytes.
			var existing Track
			if fetchErr := c.DB.Where("checksum_sha256 = ?", checksum).First(&existing).Error; fetchErr == nil {
				return &existing, nil
			}
		}
		return nil, fmt.Errorf("creating track: %w", err)
	}

	return &track, nil
}

func (c *DBClient) GetTrackByID(trackID string) (*Track, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var track Track
	if err := c.DB.Where("id = ?", trackID).First(&track).Error; err != nil {
		return nil, fmt.Errorf("querying track %s: %w", trackID, err)
	}
	return &track, nil
}

func (c *DBClient) ListTracks() ([]Track, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var tracks []Track
	if err := c.DB.Order("uploaded_at DESC").Find(&tracks).Error; err != nil {
		return nil, fmt.Errorf("listing tracks: %w", err)
	}
	return tracks, nil
}

// DeleteTrackByID removes a track and every analysis referencing it, in one
// transaction. This is the only way analysis records are ever destroyed.
func (c *DBClient) DeleteTrackByID(trackID string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("track_id = ? OR other_track_id = ?", trackID, trackID).Delete(&Analysis{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", trackID).Delete(&Track{}).Error; err != nil {
			return err
		}
		return nil
	})
}

// AppendAnalysis persists one validated record as a single insert, so the
// row and all payload fields become visible together. Implements
// analysis.Store.
func (c *DBClient) AppendAnalysis(ctx context.Context, a *analysis.Analysis) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}

	row, err := toRow(a)
	if err != nil {
		return err
	}
	if err := c.DB.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("inserting analysis: %w", err)
	}
	return nil
}

func (c *DBClient) GetAnalysisByID(analysisID string) (*analysis.Analysis, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var row Analysis
	if err := c.DB.Where("id = ?", analysisID).First(&row).Error; err != nil {
		return nil, fmt.Errorf("querying analysis %s: %w", analysisID, err)
	}
	return fromRow(&row)
}

func (c *DBClient) ListAnalysesByTrack(trackID string) ([]analysis.Analysis, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var rows []Analysis
	err := c.DB.
		Where("track_id = ? OR other_track_id = ?", trackID, trackID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing analyses for track %s: %w", trackID, err)
	}

	out := make([]analysis.Analysis, 0, len(rows))
	for i := range rows {
		a, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}

func (c *DBClient) CountAnalyses() (int64, error) {
	if c == nil || c.DB == nil {
		return 0, errors.New(errDBClientNil)
	}
	var count int64
	if err := c.DB.Model(&Analysis{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting analyses: %w", err)
	}
	return count, nil
}

func toRow(a *analysis.Analysis) (*Analysis, error) {
	summary := ""
	if a.Summary != nil {
		raw, err := json.Marshal(a.Summary)
		if err != nil {
			return nil, fmt.Errorf("marshaling summary: %w", err)
		}
		summary = string(raw)
	}
	return &Analysis{
		ID:           a.ID,
		Method:       string(a.Method),
		TrackID:      a.TrackID,
		OtherTrackID: a.OtherTrackID,
		Score:        a.Score,
		Summary:      summary,
		CreatedAt:    a.CreatedAt,
	}, nil
}

func fromRow(row *Analysis) (*analysis.Analysis, error) {
	var summary map[string]any
	if row.Summary != "" {
		if err := json.Unmarshal([]byte(row.Summary), &summary); err != nil {
			return nil, fmt.Errorf("unmarshaling summary for %s: %w", row.ID, err)
		}
	}
	return &analysis.Analysis{
		ID:           row.ID,
		Method:       analysis.Method(row.Method),
		TrackID:      row.TrackID,
		OtherTrackID: row.OtherTrackID,
		Score:        row.Score,
		Summary:      summary,
		CreatedAt:    row.CreatedAt,
	}, nil
}
