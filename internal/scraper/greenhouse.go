package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"nextgoal/internal/model"
)

// GreenhouseScraper 抓取 Greenhouse 公开职位 API。
type GreenhouseScraper struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

// NewGreenhouseScraper 创建适配器，baseURL 为空时使用官方端点。
func NewGreenhouseScraper(baseURL string, client *http.Client) *GreenhouseScraper {
	if baseURL == "" {
		baseURL = "https://boards-api.greenhouse.io/v1/boards"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &GreenhouseScraper{baseURL: baseURL, client: client, now: time.Now}
}

// Fetch 拉取公司职位列表并归一化。
func (g *GreenhouseScraper) Fetch(ctx context.Context, companyID string) ([]model.Posting, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s/jobs", g.baseURL, companyID), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body greenhouseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	postings := make([]model.Posting, 0, len(body.Jobs))
	for _, job := range body.Jobs {
		postings = append(postings, g.parseJob(job, companyID))
	}
	return postings, nil
}

func (g *GreenhouseScraper) parseJob(job greenhouseJob, companyID string) model.Posting {
	location := job.Location.Name
	if location == "" {
		location = "Remote"
	}

	posted := g.now()
	if job.UpdatedAt != "" {
		if t, err := time.Parse(time.RFC3339, job.UpdatedAt); err == nil {
			posted = t
		}
	}

	return model.Posting{
		Title:           job.Title,
		Company:         capitalize(companyID),
		Location:        location,
		JobType:         inferJobType(job.Title),
		ExperienceLevel: inferExperienceLevel(job.Title),
		DegreeRequired:  model.DegreeAny,
		Description:     stripHTML(job.Content, 5000),
		ApplyURL:        job.AbsoluteURL,
		Source:          "greenhouse",
		SourceID:        strconv.FormatInt(job.ID, 10),
		PostedDate:      posted,
	}
}

type greenhouseResponse struct {
	Jobs []greenhouseJob `json:"jobs"`
}

type greenhouseJob struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	AbsoluteURL string `json:"absolute_url"`
	UpdatedAt   string `json:"updated_at"`
	Location    struct {
		Name string `json:"name"`
	} `json:"location"`
}
