package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"nextgoal/internal/model"
)

const ashbyQuery = `query ApiJobBoardWithTeams($organizationHostedJobsPageName: String!) {
  jobBoard: jobBoardWithTeams(
    organizationHostedJobsPageName: $organizationHostedJobsPageName
  ) {
    jobPostings {
      id
      title
      locationName
      employmentType
      jobPostingBriefUrl: jobPostingUrl
      publishedAt
    }
  }
}`

// AshbyScraper 通过 Ashby 的公开 GraphQL 端点抓取职位。
type AshbyScraper struct {
	endpoint string
	client   *http.Client
	now      func() time.Time
}

// NewAshbyScraper 创建适配器。
func NewAshbyScraper(endpoint string, client *http.Client) *AshbyScraper {
	if endpoint == "" {
		endpoint = "https://jobs.ashbyhq.com/api/non-user-graphql"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &AshbyScraper{endpoint: endpoint, client: client, now: time.Now}
}

// Fetch 拉取公司职位列表并归一化。
func (a *AshbyScraper) Fetch(ctx context.Context, companyID string) ([]model.Posting, error) {
	payload := map[string]any{
		"operationName": "ApiJobBoardWithTeams",
		"variables": map[string]any{
			"organizationHostedJobsPageName": companyID,
		},
		"query": ashbyQuery,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body ashbyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	jobs := body.Data.JobBoard.JobPostings
	postings := make([]model.Posting, 0, len(jobs))
	for _, job := range jobs {
		postings = append(postings, a.parseJob(job, companyID))
	}
	return postings, nil
}

func (a *AshbyScraper) parseJob(job ashbyPosting, companyID string) model.Posting {
	location := job.LocationName
	if location == "" {
		location = "Remote"
	}

	posted := a.now()
	if job.PublishedAt != "" {
		if t, err := time.Parse(time.RFC3339, job.PublishedAt); err == nil {
			posted = t
		}
	}

	return model.Posting{
		Title:           job.Title,
		Company:         capitalize(companyID),
		Location:        location,
		JobType:         mapAshbyEmploymentType(job.EmploymentType, job.Title),
		ExperienceLevel: inferExperienceLevel(job.Title),
		DegreeRequired:  model.DegreeAny,
		ApplyURL:        fmt.Sprintf("https://jobs.ashbyhq.com/%s/%s", companyID, job.ID),
		Source:          "ashby",
		SourceID:        job.ID,
		PostedDate:      posted,
	}
}

func mapAshbyEmploymentType(employmentType, title string) string {
	lower := strings.ToLower(employmentType)
	switch {
	case strings.Contains(lower, "intern"):
		return model.JobTypeInternship
	case strings.Contains(lower, "contract"):
		return model.JobTypeContract
	default:
		return inferJobType(title)
	}
}

type ashbyResponse struct {
	Data struct {
		JobBoard struct {
			JobPostings []ashbyPosting `json:"jobPostings"`
		} `json:"jobBoard"`
	} `json:"data"`
}

type ashbyPosting struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	LocationName   string `json:"locationName"`
	EmploymentType string `json:"employmentType"`
	PublishedAt    string `json:"publishedAt"`
}
