package report

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DailyReport is the stored form of a Report, one row per day.
type DailyReport struct {
	ID                uint      `gorm:"primaryKey"`
	Day               time.Time `gorm:"uniqueIndex;not null"`
	ArticlesCreated   int64
	ArticlesPublished int64
	PostsPublished    int64
	JobsCompleted     int64
	GeneratedAt       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DBSink stores reports in the daily_reports table. Regenerating a day
// overwrites its row.
type DBSink struct {
	db *gorm.DB
}

func NewDBSink(db *gorm.DB) *DBSink {
	return &DBSink{db: db}
}

func (s *DBSink) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&DailyReport{})
}

func (s *DBSink) Name() string { return "db" }

func (s *DBSink) Emit(ctx context.Context, r *Report) error {
	row := DailyReport{
		Day:               r.Day,
		ArticlesCreated:   r.ArticlesCreated,
		ArticlesPublished: r.ArticlesPublished,
		PostsPublished:    r.PostsPublished,
		JobsCompleted:     r.JobsCompleted,
		GeneratedAt:       r.GeneratedAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "day"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"articles_created", "articles_published", "posts_published",
			"jobs_completed", "generated_at", "updated_at",
		}),
	}).Create(&row).Error
}

// Latest returns up to limit stored reports, newest first.
func (s *DBSink) Latest(ctx context.Context, limit int) ([]*DailyReport, error) {
	var out []*DailyReport
	err := s.db.WithContext(ctx).Order("day DESC").Limit(limit).Find(&out).Error
	return out, err
}
