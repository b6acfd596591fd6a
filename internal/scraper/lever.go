package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"nextgoal/internal/model"
)

// LeverScraper 抓取 Lever 公开职位 JSON 端点。
type LeverScraper struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

// NewLeverScraper 创建适配器。
func NewLeverScraper(baseURL string, client *http.Client) *LeverScraper {
	if baseURL == "" {
		baseURL = "https://api.lever.co/v0/postings"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &LeverScraper{baseURL: baseURL, client: client, now: time.Now}
}

// Fetch 拉取公司职位列表并归一化。
func (l *LeverScraper) Fetch(ctx context.Context, companyID string) ([]model.Posting, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s?mode=json", l.baseURL, companyID), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var jobs []leverJob
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	postings := make([]model.Posting, 0, len(jobs))
	for _, job := range jobs {
		postings = append(postings, l.parseJob(job, companyID))
	}
	return postings, nil
}

func (l *LeverScraper) parseJob(job leverJob, companyID string) model.Posting {
	location := job.Categories.Location
	if location == "" {
		location = "Remote"
	}

	posted := l.now()
	if job.CreatedAt > 0 {
		posted = time.UnixMilli(job.CreatedAt).UTC()
	}

	return model.Posting{
		Title:           job.Text,
		Company:         capitalize(companyID),
		Location:        location,
		JobType:         l.jobType(job),
		ExperienceLevel: inferExperienceLevel(job.Text),
		DegreeRequired:  model.DegreeAny,
		Description:     job.DescriptionPlain,
		ApplyURL:        job.HostedURL,
		Source:          "lever",
		SourceID:        job.ID,
		PostedDate:      posted,
	}
}

// jobType 优先看 commitment 字段，再退回标题启发式。
func (l *LeverScraper) jobType(job leverJob) string {
	if strings.Contains(strings.ToLower(job.Categories.Commitment), "intern") {
		return model.JobTypeInternship
	}
	return inferJobType(job.Text)
}

type leverJob struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	HostedURL        string `json:"hostedUrl"`
	DescriptionPlain string `json:"descriptionPlain"`
	CreatedAt        int64  `json:"createdAt"`
	Categories       struct {
		Location   string `json:"location"`
		Commitment string `json:"commitment"`
	} `json:"categories"`
}
