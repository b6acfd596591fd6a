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

// SmartRecruitersScraper 抓取 SmartRecruiters 公开职位 API。
type SmartRecruitersScraper struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

// NewSmartRecruitersScraper 创建适配器。
func NewSmartRecruitersScraper(baseURL string, client *http.Client) *SmartRecruitersScraper {
	if baseURL == "" {
		baseURL = "https://api.smartrecruiters.com/v1/companies"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &SmartRecruitersScraper{baseURL: baseURL, client: client, now: time.Now}
}

// Fetch 拉取公司职位列表并归一化，单页上限 100 条。
func (s *SmartRecruitersScraper) Fetch(ctx context.Context, companyID string) ([]model.Posting, error) {
	url := fmt.Sprintf("%s/%s/postings?limit=100", s.baseURL, companyID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body smartRecruitersResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	postings := make([]model.Posting, 0, len(body.Content))
	for _, job := range body.Content {
		postings = append(postings, s.parseJob(job, companyID))
	}
	return postings, nil
}

func (s *SmartRecruitersScraper) parseJob(job smartRecruitersJob, companyID string) model.Posting {
	location := "Remote"
	if job.Location.City != "" {
		location = job.Location.City + ", " + job.Location.Country
	}

	company := job.Company.Name
	if company == "" {
		company = companyID
	}

	applyURL := job.ApplyURL
	if applyURL == "" {
		applyURL = fmt.Sprintf("https://jobs.smartrecruiters.com/%s/%s", companyID, job.ID)
	}

	posted := s.now()
	if job.ReleasedDate != "" {
		if t, err := time.Parse(time.RFC3339, job.ReleasedDate); err == nil {
			posted = t
		}
	}

	return model.Posting{
		Title:           job.Name,
		Company:         company,
		Location:        location,
		JobType:         mapSmartRecruitersType(job.TypeOfEmployment.Label),
		ExperienceLevel: smartRecruitersExperience(job.Name, job.ExperienceLevel.Label),
		DegreeRequired:  model.DegreeAny,
		Description:     job.JobAd.Sections.JobDescription.Text,
		ApplyURL:        applyURL,
		Source:          "smartrecruiters",
		SourceID:        job.ID,
		PostedDate:      posted,
	}
}

func mapSmartRecruitersType(label string) string {
	lower := strings.ToLower(label)
	switch {
	case strings.Contains(lower, "intern"):
		return model.JobTypeInternship
	case strings.Contains(lower, "part"):
		return model.JobTypePartTime
	default:
		return model.JobTypeFullTime
	}
}

// smartRecruitersExperience 综合 API 的经验等级标签与标题关键词。
func smartRecruitersExperience(title, levelLabel string) string {
	label := strings.ToLower(levelLabel)
	lower := strings.ToLower(title)
	switch {
	case strings.Contains(label, "senior") || strings.Contains(lower, "senior"):
		return model.ExperienceSenior
	case strings.Contains(label, "mid") || strings.Contains(lower, "mid-level"):
		return model.ExperienceMid
	case strings.Contains(label, "junior") || strings.Contains(lower, "junior"):
		return model.ExperienceJunior
	case strings.Contains(label, "entry") || strings.Contains(lower, "intern"):
		return model.ExperienceFresher
	default:
		return model.ExperienceMid
	}
}

type smartRecruitersResponse struct {
	Content []smartRecruitersJob `json:"content"`
}

type smartRecruitersJob struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ReleasedDate string `json:"releasedDate"`
	ApplyURL     string `json:"applyUrl"`
	Company      struct {
		Name string `json:"name"`
	} `json:"company"`
	Location struct {
		City    string `json:"city"`
		Country string `json:"country"`
	} `json:"location"`
	TypeOfEmployment struct {
		Label string `json:"label"`
	} `json:"typeOfEmployment"`
	ExperienceLevel struct {
		Label string `json:"label"`
	} `json:"experienceLevel"`
	JobAd struct {
		Sections struct {
			JobDescription struct {
				Text string `json:"text"`
			} `json:"jobDescription"`
		} `json:"sections"`
	} `json:"jobAd"`
}
