package pipeline

import (
	"context"
	"log"
	"os"
	"time"

	"nextgoal/internal/model"
	"nextgoal/internal/scraper"

	"gorm.io/datatypes"
)

// Config 描述入库管道配置。
type Config struct {
	StaleDays   int               `yaml:"stale_days" json:"stale_days"`
	MaxAttempts int               `yaml:"max_attempts" json:"max_attempts"`
	Companies   []scraper.Company `yaml:"companies" json:"companies"`
}

// Fetcher 抽象来源分发，未知来源返回错误，适配器失败返回空列表。
type Fetcher interface {
	Fetch(ctx context.Context, source, companyID string) ([]model.Posting, error)
}

// Store 抽象持久化接口，便于测试替换。
type Store interface {
	UpsertByFingerprint(ctx context.Context, hash string, job model.Job) (*model.Job, bool, error)
	MarkStaleInactive(ctx context.Context, cutoff time.Time, maxAttempts int) (int64, error)
	ListUnclassified(ctx context.Context, limit int) ([]model.Job, error)
	UpdateAIFields(ctx context.Context, id uint, c model.Classification) error
}

// Classifier 抽象 AI 分类器，禁用或失败时返回 nil。
type Classifier interface {
	Enabled() bool
	Classify(ctx context.Context, p model.Posting) *model.Classification
	ClassifyFields(ctx context.Context, title, company, location, description string) *model.Classification
}

// ProcessResult 汇总一批职位的入库结果。
type ProcessResult struct {
	Added        int `json:"added"`
	Updated      int `json:"updated"`
	AIClassified int `json:"ai_classified"`
	Errors       int `json:"errors"`
}

// CompanyResult 是单公司抓取入库的结果。
type CompanyResult struct {
	JobsFound int `json:"jobs_found"`
	ProcessResult
}

// FullScrapeResult 汇总一次全量抓取。
type FullScrapeResult struct {
	Total      int `json:"total"`
	Added      int `json:"added"`
	Updated    int `json:"updated"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// ReclassifyResult 汇总一次批量补分类。
type ReclassifyResult struct {
	Total      int `json:"total"`
	Classified int `json:"classified"`
	Failed     int `json:"failed"`
}

// Pipeline 驱动 抓取 -> 指纹 -> 分类 -> 入库 流程。
// 单条职位的失败只计数不扩散，保证批次内其它职位正常入库。
type Pipeline struct {
	fetcher     Fetcher
	store       Store
	classifier  Classifier
	companies   []scraper.Company
	staleDays   int
	maxAttempts int
	logger      *log.Logger
	now         func() time.Time
}

// New 创建 Pipeline。未配置公司列表时使用默认抓取目标。
func New(fetcher Fetcher, store Store, classifier Classifier, cfg Config, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(os.Stdout, "[pipeline] ", log.LstdFlags)
	}
	if cfg.StaleDays <= 0 {
		cfg.StaleDays = 7
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	companies := cfg.Companies
	if len(companies) == 0 {
		companies = scraper.DefaultCompanies()
	}
	return &Pipeline{
		fetcher:     fetcher,
		store:       store,
		classifier:  classifier,
		companies:   companies,
		staleDays:   cfg.StaleDays,
		maxAttempts: cfg.MaxAttempts,
		logger:      logger,
		now:         time.Now,
	}
}

// Companies 返回配置的抓取目标。
func (p *Pipeline) Companies() []scraper.Company {
	return p.companies
}

// Process 逐条处理归一化职位：计算指纹、尝试分类、合并字段后入库。
// 任意一条失败只累加 Errors 并继续下一条。
func (p *Pipeline) Process(ctx context.Context, postings []model.Posting) ProcessResult {
	res := ProcessResult{}
	for _, posting := range postings {
		hash := scraper.Fingerprint(posting)

		var classification *model.Classification
		if p.classifier != nil && p.classifier.Enabled() {
			classification = p.classifier.Classify(ctx, posting)
		}

		job := buildJob(posting, classification)
		_, created, err := p.store.UpsertByFingerprint(ctx, hash, job)
		if err != nil {
			p.logger.Printf("error processing job %q: %v", posting.Title, err)
			res.Errors++
			continue
		}

		if created {
			res.Added++
		} else {
			res.Updated++
		}
		if classification != nil {
			res.AIClassified++
		}
	}
	return res
}

// IngestCompany 抓取单个公司并入库。未知来源属于配置错误，原样返回。
func (p *Pipeline) IngestCompany(ctx context.Context, source, companyID string) (CompanyResult, error) {
	postings, err := p.fetcher.Fetch(ctx, source, companyID)
	if err != nil {
		return CompanyResult{}, err
	}
	res := CompanyResult{JobsFound: len(postings)}
	res.ProcessResult = p.Process(ctx, postings)
	return res, nil
}

// IngestAllConfigured 遍历全部配置公司执行抓取入库，单个公司的失败
// 只计入 Failed；收尾触发过期清扫，把超期未验证的职位下线。
func (p *Pipeline) IngestAllConfigured(ctx context.Context) FullScrapeResult {
	res := FullScrapeResult{}
	for _, company := range p.companies {
		companyRes, err := p.IngestCompany(ctx, company.Source, company.CompanyID)
		if err != nil {
			p.logger.Printf("failed to scrape %s/%s: %v", company.Source, company.CompanyID, err)
			res.Failed++
			continue
		}
		res.Successful++
		res.Total += companyRes.JobsFound
		res.Added += companyRes.Added
		res.Updated += companyRes.Updated
	}

	cutoff := p.now().AddDate(0, 0, -p.staleDays)
	expired, err := p.store.MarkStaleInactive(ctx, cutoff, p.maxAttempts)
	if err != nil {
		p.logger.Printf("stale sweep failed: %v", err)
	} else if expired > 0 {
		p.logger.Printf("stale sweep: %d jobs marked inactive", expired)
	}

	return res
}

// Reclassify 对尚未经过 AI 分类的存量职位批量补跑分类器。
func (p *Pipeline) Reclassify(ctx context.Context) ReclassifyResult {
	res := ReclassifyResult{}

	jobs, err := p.store.ListUnclassified(ctx, 0)
	if err != nil {
		p.logger.Printf("list unclassified failed: %v", err)
		return res
	}
	res.Total = len(jobs)

	for _, job := range jobs {
		classification := (*model.Classification)(nil)
		if p.classifier != nil {
			classification = p.classifier.ClassifyFields(ctx, job.Title, job.Company, job.Location, job.Description)
		}
		if classification == nil {
			res.Failed++
			continue
		}
		if err := p.store.UpdateAIFields(ctx, job.ID, *classification); err != nil {
			p.logger.Printf("update ai fields for job %d failed: %v", job.ID, err)
			res.Failed++
			continue
		}
		res.Classified++
	}
	return res
}

// buildJob 合并抓取值与分类结果，分类器给出的字段优先。
func buildJob(posting model.Posting, c *model.Classification) model.Job {
	job := model.Job{
		Title:           posting.Title,
		Company:         posting.Company,
		Location:        posting.Location,
		JobType:         defaultIfEmpty(posting.JobType, model.JobTypeFullTime),
		ExperienceLevel: defaultIfEmpty(posting.ExperienceLevel, model.ExperienceMid),
		DegreeRequired:  defaultIfEmpty(posting.DegreeRequired, model.DegreeAny),
		Description:     posting.Description,
		ApplyURL:        posting.ApplyURL,
		Source:          posting.Source,
		SourceID:        posting.SourceID,
		PostedDate:      posting.PostedDate,
	}
	if job.PostedDate.IsZero() {
		job.PostedDate = time.Now()
	}

	if c != nil {
		job.JobType = c.JobType
		job.ExperienceLevel = c.ExperienceLevel
		job.DegreeRequired = c.DegreeRequired
		job.SalaryMin = c.SalaryMin
		job.SalaryMax = c.SalaryMax
		job.SalaryCurrency = c.SalaryCurrency
		job.Skills = datatypes.NewJSONSlice(c.Skills)
		job.Category = c.Category
		job.AIClassified = true
	}
	return job
}

func defaultIfEmpty(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
