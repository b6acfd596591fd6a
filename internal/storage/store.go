package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nextgoal/internal/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Store 封装 SQLite 数据库访问，负责职位的查询、按指纹写入与验证状态更新。
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// VerificationUpdate 描述一次验证后的状态变更。
type VerificationUpdate struct {
	LastVerified          time.Time
	VerificationAttempts  int
	LastVerificationError string
	IsActive              bool
}

// JobQueryOptions 提供职位查询过滤条件。
type JobQueryOptions struct {
	Limit            int
	Offset           int
	Search           string
	JobTypes         []string
	ExperienceLevels []string
	Location         string
	Company          string
	IncludeInactive  bool
}

// Stats 汇总当前活跃职位概况。
type Stats struct {
	TotalActive int64            `json:"total_active"`
	ByType      map[string]int64 `json:"by_type"`
	ByLevel     map[string]int64 `json:"by_level"`
	AddedLast24 int64            `json:"added_last_24h"`
}

// NewStore 创建 Store 并自动迁移数据表。
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.AutoMigrate(&model.Job{}); err != nil {
		return nil, fmt.Errorf("auto migrate models: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// FindByFingerprint 按内容指纹查找，不存在时返回 (nil, nil)。
func (s *Store) FindByFingerprint(ctx context.Context, hash string) (*model.Job, error) {
	var job model.Job
	err := s.db.WithContext(ctx).First(&job, "content_hash = ?", hash).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by fingerprint: %w", err)
	}
	return &job, nil
}

// UpsertByFingerprint 按指纹写入职位。已存在则刷新字段，否则创建。
// 每次成功写入都会重置 IsActive/VerificationAttempts/LastVerificationError
// 并刷新 LastVerified：重新抓到即视为存活信号。
// 返回值报告本次写入是创建还是更新，计数以此为准。
func (s *Store) UpsertByFingerprint(ctx context.Context, hash string, job model.Job) (*model.Job, bool, error) {
	job.ContentHash = hash
	job.IsActive = true
	job.VerificationAttempts = 0
	job.LastVerificationError = ""
	job.LastVerified = s.now()

	updated, err := s.refreshExisting(ctx, hash, job)
	if err != nil {
		return nil, false, err
	}
	if !updated {
		if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
			// 并发下另一次写入可能刚创建同一指纹，退回更新路径。
			retried, retryErr := s.refreshExisting(ctx, hash, job)
			if retryErr != nil || !retried {
				return nil, false, fmt.Errorf("create job: %w", err)
			}
		} else {
			return &job, true, nil
		}
	}

	var persisted model.Job
	if err := s.db.WithContext(ctx).First(&persisted, "content_hash = ?", hash).Error; err != nil {
		return nil, false, fmt.Errorf("reload job: %w", err)
	}
	return &persisted, false, nil
}

func (s *Store) refreshExisting(ctx context.Context, hash string, job model.Job) (bool, error) {
	values := map[string]any{
		"title":                   job.Title,
		"company":                 job.Company,
		"location":                job.Location,
		"job_type":                job.JobType,
		"experience_level":        job.ExperienceLevel,
		"degree_required":         job.DegreeRequired,
		"description":             job.Description,
		"apply_url":               job.ApplyURL,
		"source":                  job.Source,
		"source_id":               job.SourceID,
		"posted_date":             job.PostedDate,
		"salary_min":              job.SalaryMin,
		"salary_max":              job.SalaryMax,
		"salary_currency":         job.SalaryCurrency,
		"skills":                  job.Skills,
		"category":                job.Category,
		"ai_classified":           job.AIClassified,
		"is_active":               true,
		"last_verified":           job.LastVerified,
		"verification_attempts":   0,
		"last_verification_error": "",
	}
	tx := s.db.WithContext(ctx).Model(&model.Job{}).Where("content_hash = ?", hash).Updates(values)
	if tx.Error != nil {
		return false, fmt.Errorf("update job: %w", tx.Error)
	}
	return tx.RowsAffected > 0, nil
}

// FindByID 按主键查找，不存在时返回 (nil, nil)。
func (s *Store) FindByID(ctx context.Context, id uint) (*model.Job, error) {
	var job model.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by id: %w", err)
	}
	return &job, nil
}

// UpdateVerification 写入验证结果。
func (s *Store) UpdateVerification(ctx context.Context, id uint, update VerificationUpdate) error {
	values := map[string]any{
		"last_verified":           update.LastVerified,
		"verification_attempts":   update.VerificationAttempts,
		"last_verification_error": update.LastVerificationError,
		"is_active":               update.IsActive,
	}
	tx := s.db.WithContext(ctx).Model(&model.Job{}).Where("id = ?", id).Updates(values)
	if tx.Error != nil {
		return fmt.Errorf("update verification: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("update verification: id %d not found", id)
	}
	return nil
}

// ListActiveNotVerifiedSince 返回活跃且超过冷却窗口未验证的职位 ID。
func (s *Store) ListActiveNotVerifiedSince(ctx context.Context, cutoff time.Time) ([]uint, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&model.Job{}).
		Where("is_active = ? AND last_verified < ?", true, cutoff).
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list unverified jobs: %w", err)
	}
	return ids, nil
}

// MarkStaleInactive 把超过截止时间未验证、或连续失败达到上限的活跃职位置为下线。
func (s *Store) MarkStaleInactive(ctx context.Context, cutoff time.Time, maxAttempts int) (int64, error) {
	tx := s.db.WithContext(ctx).Model(&model.Job{}).
		Where("is_active = ? AND (last_verified < ? OR verification_attempts >= ?)", true, cutoff, maxAttempts).
		Update("is_active", false)
	if tx.Error != nil {
		return 0, fmt.Errorf("mark stale inactive: %w", tx.Error)
	}
	return tx.RowsAffected, nil
}

// ListUnclassified 返回尚未经过 AI 分类的活跃职位。
func (s *Store) ListUnclassified(ctx context.Context, limit int) ([]model.Job, error) {
	var jobs []model.Job
	query := s.db.WithContext(ctx).
		Where("is_active = ? AND ai_classified = ?", true, false).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list unclassified jobs: %w", err)
	}
	return jobs, nil
}

// UpdateAIFields 把分类结果写回职位并打上 ai_classified 标记。
func (s *Store) UpdateAIFields(ctx context.Context, id uint, c model.Classification) error {
	values := map[string]any{
		"job_type":         c.JobType,
		"experience_level": c.ExperienceLevel,
		"degree_required":  c.DegreeRequired,
		"salary_min":       c.SalaryMin,
		"salary_max":       c.SalaryMax,
		"salary_currency":  c.SalaryCurrency,
		"skills":           datatypes.NewJSONSlice(c.Skills),
		"category":         c.Category,
		"ai_classified":    true,
	}
	tx := s.db.WithContext(ctx).Model(&model.Job{}).Where("id = ?", id).Updates(values)
	if tx.Error != nil {
		return fmt.Errorf("update ai fields: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("update ai fields: id %d not found", id)
	}
	return nil
}

// ListJobs 返回按发布时间倒序的职位列表。
func (s *Store) ListJobs(ctx context.Context, opts JobQueryOptions) ([]model.Job, error) {
	var jobs []model.Job
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	query := applyJobFilters(s.db.WithContext(ctx).Model(&model.Job{}), opts).Order("posted_date DESC")
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	if err := query.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// CountJobs 返回满足过滤条件的职位数量。
func (s *Store) CountJobs(ctx context.Context, opts JobQueryOptions) (int64, error) {
	var total int64
	if err := applyJobFilters(s.db.WithContext(ctx).Model(&model.Job{}), opts).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return total, nil
}

// GetStats 汇总活跃职位统计。
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	stats := Stats{ByType: map[string]int64{}, ByLevel: map[string]int64{}}

	if err := s.db.WithContext(ctx).Model(&model.Job{}).
		Where("is_active = ?", true).Count(&stats.TotalActive).Error; err != nil {
		return stats, fmt.Errorf("count active: %w", err)
	}

	type bucket struct {
		Key   string
		Count int64
	}

	var byType []bucket
	if err := s.db.WithContext(ctx).Model(&model.Job{}).
		Select("job_type AS key, COUNT(*) AS count").
		Where("is_active = ?", true).Group("job_type").Scan(&byType).Error; err != nil {
		return stats, fmt.Errorf("group by type: %w", err)
	}
	for _, b := range byType {
		stats.ByType[b.Key] = b.Count
	}

	var byLevel []bucket
	if err := s.db.WithContext(ctx).Model(&model.Job{}).
		Select("experience_level AS key, COUNT(*) AS count").
		Where("is_active = ?", true).Group("experience_level").Scan(&byLevel).Error; err != nil {
		return stats, fmt.Errorf("group by level: %w", err)
	}
	for _, b := range byLevel {
		stats.ByLevel[b.Key] = b.Count
	}

	dayAgo := s.now().Add(-24 * time.Hour)
	if err := s.db.WithContext(ctx).Model(&model.Job{}).
		Where("is_active = ? AND created_at >= ?", true, dayAgo).
		Count(&stats.AddedLast24).Error; err != nil {
		return stats, fmt.Errorf("count recent: %w", err)
	}

	return stats, nil
}

func applyJobFilters(db *gorm.DB, opts JobQueryOptions) *gorm.DB {
	if !opts.IncludeInactive {
		db = db.Where("is_active = ?", true)
	}
	if opts.Search != "" {
		pattern := "%" + strings.ToLower(opts.Search) + "%"
		db = db.Where("LOWER(title) LIKE ? OR LOWER(company) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern, pattern)
	}
	if len(opts.JobTypes) > 0 {
		db = db.Where("job_type IN ?", opts.JobTypes)
	}
	if len(opts.ExperienceLevels) > 0 {
		db = db.Where("experience_level IN ?", opts.ExperienceLevels)
	}
	if opts.Location != "" {
		db = db.Where("LOWER(location) LIKE ?", "%"+strings.ToLower(opts.Location)+"%")
	}
	if opts.Company != "" {
		db = db.Where("LOWER(company) LIKE ?", "%"+strings.ToLower(opts.Company)+"%")
	}
	return db
}
