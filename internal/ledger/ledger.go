package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"horse.fit/voicebridge/internal/pipeline"
)

// Run is one pipeline execution record. The ledger stores operational
// telemetry only; transcript and translation content is never persisted.
type Run struct {
	ID                 string `gorm:"primaryKey;size:36"`
	SourceLanguage     string `gorm:"size:64"`
	TargetLanguage     string `gorm:"size:64"`
	State              string `gorm:"size:16;index"`
	FailStage          string `gorm:"size:16"`
	FailKind           string `gorm:"size:32"`
	DetectedLanguage   string `gorm:"size:16"`
	DetectedConfidence float64
	TranscriptChars    int
	TranslationChars   int
	TranscribeMs       int64
	TranslateMs        int64
	SynthesizeMs       int64
	DeliverMs          int64
	CreatedAt          time.Time
}

// Store persists Run rows in Postgres. It satisfies pipeline.Ledger.
type Store struct {
	db *gorm.DB
}

// Open connects to the database and migrates the runs table. An empty URL is
// a caller error; use pipeline.NopLedger when no ledger is configured.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	url := strings.TrimSpace(databaseURL)
	if url == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access ledger connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping ledger database: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&Run{}); err != nil {
		return nil, fmt.Errorf("migrate ledger schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Record writes one session outcome. Callers treat failures as non-fatal.
func (s *Store) Record(ctx context.Context, session *pipeline.Session) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("ledger store is not initialized")
	}
	if session == nil {
		return fmt.Errorf("session is nil")
	}

	run := Run{
		ID:                 session.ID,
		SourceLanguage:     session.SourceLanguage,
		TargetLanguage:     session.TargetLanguage,
		State:              string(session.State),
		DetectedLanguage:   session.DetectedLanguage,
		DetectedConfidence: session.DetectedConfidence,
		TranscriptChars:    len([]rune(session.Transcript)),
		TranslationChars:   len([]rune(session.Translation)),
		TranscribeMs:       session.StageLatency[pipeline.StageTranscription].Milliseconds(),
		TranslateMs:        session.StageLatency[pipeline.StageTranslation].Milliseconds(),
		SynthesizeMs:       session.StageLatency[pipeline.StageSynthesis].Milliseconds(),
		DeliverMs:          session.StageLatency[pipeline.StageDelivery].Milliseconds(),
		CreatedAt:          session.StartedAt,
	}
	if session.Failure != nil {
		run.FailStage = string(session.Failure.Stage)
		run.FailKind = string(session.Failure.Kind)
	}

	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("insert ledger run: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("ledger store is not initialized")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
