package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"testing"

	"nextgoal/internal/model"
)

// roundTripFunc 把函数适配成 http.RoundTripper，测试里按 URL 返回固定响应。
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func testClient(f roundTripFunc) *http.Client {
	return &http.Client{Transport: f}
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestRegistryUnknownSource(t *testing.T) {
	t.Parallel()

	r := NewRegistry(map[string]Scraper{}, discardLogger())

	_, err := r.Fetch(context.Background(), "bamboo", "acme")
	if err == nil {
		t.Fatalf("expected error for unknown source")
	}
	if !strings.Contains(err.Error(), "unknown source") {
		t.Fatalf("expected unknown source error, got %v", err)
	}
}

func TestRegistrySwallowsAdapterFailure(t *testing.T) {
	t.Parallel()

	r := NewRegistry(map[string]Scraper{
		"broken": failingScraper{},
	}, discardLogger())

	postings, err := r.Fetch(context.Background(), "broken", "acme")
	if err != nil {
		t.Fatalf("expected adapter failure to be swallowed, got %v", err)
	}
	if len(postings) != 0 {
		t.Fatalf("expected empty result, got %d postings", len(postings))
	}
}

func TestRegistryNormalizesSourceName(t *testing.T) {
	t.Parallel()

	r := NewRegistry(map[string]Scraper{
		"workday": NewWorkdayScraper(discardLogger()),
	}, discardLogger())

	if _, err := r.Fetch(context.Background(), " Workday ", "acme"); err != nil {
		t.Fatalf("expected case-insensitive source match, got %v", err)
	}
}

func TestGreenhouseFetch(t *testing.T) {
	t.Parallel()

	const body = `{"jobs": [
		{"id": 42, "title": "Senior Backend Engineer", "content": "<p>Build &amp; run services</p>",
		 "absolute_url": "https://boards.greenhouse.io/stripe/jobs/42",
		 "updated_at": "2025-02-01T10:00:00Z", "location": {"name": "NYC"}},
		{"id": 43, "title": "Legal Intern", "content": "",
		 "absolute_url": "https://boards.greenhouse.io/stripe/jobs/43",
		 "updated_at": "", "location": {"name": ""}}
	]}`

	client := testClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/stripe/jobs" {
			t.Errorf("unexpected path %s", req.URL.Path)
		}
		if req.Header.Get("User-Agent") != UserAgent {
			t.Errorf("missing user agent, got %q", req.Header.Get("User-Agent"))
		}
		return jsonResponse(http.StatusOK, body), nil
	})

	s := NewGreenhouseScraper("https://example.test", client)
	postings, err := s.Fetch(context.Background(), "stripe")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(postings) != 2 {
		t.Fatalf("expected 2 postings, got %d", len(postings))
	}

	first := postings[0]
	if first.Company != "Stripe" {
		t.Fatalf("expected capitalized company, got %s", first.Company)
	}
	if first.Description != "Build & run services" {
		t.Fatalf("expected HTML stripped, got %q", first.Description)
	}
	if first.ExperienceLevel != model.ExperienceSenior {
		t.Fatalf("expected senior level from title, got %s", first.ExperienceLevel)
	}
	if first.SourceID != "42" {
		t.Fatalf("expected source id 42, got %s", first.SourceID)
	}
	if first.PostedDate.Year() != 2025 {
		t.Fatalf("expected parsed updated_at, got %s", first.PostedDate)
	}

	second := postings[1]
	if second.Location != "Remote" {
		t.Fatalf("expected Remote fallback, got %s", second.Location)
	}
	if second.JobType != model.JobTypeInternship {
		t.Fatalf("expected internship from title, got %s", second.JobType)
	}
	if second.PostedDate.IsZero() {
		t.Fatalf("expected fallback posted date, got zero")
	}
}

func TestGreenhouseFetchErrorStatus(t *testing.T) {
	t.Parallel()

	client := testClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusNotFound, `{}`), nil
	})

	s := NewGreenhouseScraper("https://example.test", client)
	if _, err := s.Fetch(context.Background(), "nope"); err == nil {
		t.Fatalf("expected error for non-200 status")
	}
}

func TestLeverFetch(t *testing.T) {
	t.Parallel()

	const body = `[
		{"id": "abc", "text": "Software Engineer Intern", "hostedUrl": "https://jobs.lever.co/netlify/abc",
		 "descriptionPlain": "Write code", "createdAt": 1735689600000,
		 "categories": {"location": "Remote - US", "commitment": "Internship"}}
	]`

	client := testClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.Query().Get("mode") != "json" {
			t.Errorf("expected mode=json, got %s", req.URL.RawQuery)
		}
		return jsonResponse(http.StatusOK, body), nil
	})

	s := NewLeverScraper("https://example.test", client)
	postings, err := s.Fetch(context.Background(), "netlify")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(postings) != 1 {
		t.Fatalf("expected 1 posting, got %d", len(postings))
	}

	p := postings[0]
	if p.JobType != model.JobTypeInternship {
		t.Fatalf("expected internship from commitment, got %s", p.JobType)
	}
	if p.Location != "Remote - US" {
		t.Fatalf("unexpected location %s", p.Location)
	}
	// createdAt is epoch milliseconds.
	if p.PostedDate.Year() != 2025 || p.PostedDate.Month() != 1 {
		t.Fatalf("expected posted date from epoch millis, got %s", p.PostedDate)
	}
	if p.ApplyURL != "https://jobs.lever.co/netlify/abc" {
		t.Fatalf("unexpected apply url %s", p.ApplyURL)
	}
}

func TestAshbyFetch(t *testing.T) {
	t.Parallel()

	const body = `{"data": {"jobBoard": {"jobPostings": [
		{"id": "p1", "title": "Staff Engineer", "locationName": "Remote",
		 "employmentType": "FullTime", "publishedAt": "2025-01-15T00:00:00Z"},
		{"id": "p2", "title": "Contractor", "locationName": "",
		 "employmentType": "Contract", "publishedAt": ""}
	]}}}`

	client := testClient(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", req.Method)
		}
		raw, _ := io.ReadAll(req.Body)
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Errorf("invalid request payload: %v", err)
		}
		if payload["operationName"] != "ApiJobBoardWithTeams" {
			t.Errorf("unexpected operation %v", payload["operationName"])
		}
		return jsonResponse(http.StatusOK, body), nil
	})

	s := NewAshbyScraper("https://example.test/graphql", client)
	postings, err := s.Fetch(context.Background(), "ramp")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(postings) != 2 {
		t.Fatalf("expected 2 postings, got %d", len(postings))
	}

	if postings[0].ApplyURL != "https://jobs.ashbyhq.com/ramp/p1" {
		t.Fatalf("unexpected apply url %s", postings[0].ApplyURL)
	}
	if postings[0].ExperienceLevel != model.ExperienceSenior {
		t.Fatalf("expected senior from staff title, got %s", postings[0].ExperienceLevel)
	}
	if postings[1].JobType != model.JobTypeContract {
		t.Fatalf("expected contract type, got %s", postings[1].JobType)
	}
	if postings[1].Location != "Remote" {
		t.Fatalf("expected Remote fallback, got %s", postings[1].Location)
	}
}

func TestSmartRecruitersFetch(t *testing.T) {
	t.Parallel()

	const body = `{"content": [
		{"id": "sr1", "name": "Junior Counsel", "releasedDate": "2025-03-01T00:00:00Z",
		 "applyUrl": "", "company": {"name": "Visa"},
		 "location": {"city": "Bangalore", "country": "India"},
		 "typeOfEmployment": {"label": "Part-time"},
		 "experienceLevel": {"label": "Junior"},
		 "jobAd": {"sections": {"jobDescription": {"text": "Draft contracts"}}}}
	]}`

	client := testClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.Query().Get("limit") != "100" {
			t.Errorf("expected limit=100, got %s", req.URL.RawQuery)
		}
		return jsonResponse(http.StatusOK, body), nil
	})

	s := NewSmartRecruitersScraper("https://example.test", client)
	postings, err := s.Fetch(context.Background(), "visa")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(postings) != 1 {
		t.Fatalf("expected 1 posting, got %d", len(postings))
	}

	p := postings[0]
	if p.Location != "Bangalore, India" {
		t.Fatalf("unexpected location %s", p.Location)
	}
	if p.JobType != model.JobTypePartTime {
		t.Fatalf("expected part-time, got %s", p.JobType)
	}
	if p.ExperienceLevel != model.ExperienceJunior {
		t.Fatalf("expected junior level, got %s", p.ExperienceLevel)
	}
	if p.ApplyURL != "https://jobs.smartrecruiters.com/visa/sr1" {
		t.Fatalf("expected fallback apply url, got %s", p.ApplyURL)
	}
	if p.Description != "Draft contracts" {
		t.Fatalf("unexpected description %q", p.Description)
	}
}

func TestWorkdayReturnsEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := NewWorkdayScraper(log.New(&buf, "", 0))

	postings, err := s.Fetch(context.Background(), "acme")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(postings) != 0 {
		t.Fatalf("expected empty result, got %d", len(postings))
	}
	if !strings.Contains(buf.String(), "headless browser") {
		t.Fatalf("expected skip warning to be logged, got %q", buf.String())
	}
}

func TestInferExperienceLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		title string
		want  string
	}{
		{"Staff Software Engineer", model.ExperienceSenior},
		{"Principal Counsel", model.ExperienceSenior},
		{"Junior Developer", model.ExperienceJunior},
		{"Graduate Trainee", model.ExperienceFresher},
		{"Legal Intern", model.ExperienceFresher},
		{"Backend Engineer", model.ExperienceMid},
	}
	for _, tc := range cases {
		if got := inferExperienceLevel(tc.title); got != tc.want {
			t.Errorf("inferExperienceLevel(%q) = %s, want %s", tc.title, got, tc.want)
		}
	}
}

func TestStripHTML(t *testing.T) {
	t.Parallel()

	got := stripHTML("<div><h1>Role</h1><p>Do <b>things</b></p></div>", 0)
	if got != "RoleDo things" {
		t.Fatalf("unexpected stripped text %q", got)
	}

	long := stripHTML("<p>"+strings.Repeat("a", 100)+"</p>", 10)
	if len(long) != 10 {
		t.Fatalf("expected truncation to 10 chars, got %d", len(long))
	}
}

// --- stubs ---

type failingScraper struct{}

func (failingScraper) Fetch(ctx context.Context, companyID string) ([]model.Posting, error) {
	return nil, errors.New("boom")
}
