package classifier

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"nextgoal/internal/model"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestDisabledWithoutAPIKey(t *testing.T) {
	t.Parallel()

	c := New(Config{}, nil, discardLogger())
	if c.Enabled() {
		t.Fatalf("expected classifier disabled without api key")
	}
	if got := c.Classify(context.Background(), model.Posting{Title: "Engineer"}); got != nil {
		t.Fatalf("expected nil classification when disabled, got %+v", got)
	}
}

func TestClassifyValidResponse(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{response: `{
		"jobType": "internship",
		"experienceLevel": "fresher",
		"degreeRequired": "llb",
		"salaryMin": 30000,
		"salaryMax": 50000,
		"salaryCurrency": "INR",
		"skills": ["contracts", "research"],
		"category": "Legal"
	}`}
	c := NewWithClient(llm, time.Second, discardLogger())

	got := c.Classify(context.Background(), model.Posting{Title: "Legal Intern", Company: "Visa"})
	if got == nil {
		t.Fatalf("expected classification, got nil")
	}
	if got.JobType != model.JobTypeInternship {
		t.Fatalf("expected internship, got %s", got.JobType)
	}
	if got.SalaryMin == nil || *got.SalaryMin != 30000 {
		t.Fatalf("expected salary min 30000, got %v", got.SalaryMin)
	}
	if len(got.Skills) != 2 {
		t.Fatalf("expected 2 skills, got %v", got.Skills)
	}
	if got.Category != "Legal" {
		t.Fatalf("expected Legal category, got %s", got.Category)
	}
	if llm.calls.Load() != 1 {
		t.Fatalf("expected one llm call, got %d", llm.calls.Load())
	}
}

func TestClassifyStripsCodeFences(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{response: "```json\n{\"jobType\": \"contract\", \"experienceLevel\": \"5+\", \"degreeRequired\": \"any\", \"category\": \"Engineering\"}\n```"}
	c := NewWithClient(llm, time.Second, discardLogger())

	got := c.Classify(context.Background(), model.Posting{Title: "Contractor"})
	if got == nil {
		t.Fatalf("expected classification, got nil")
	}
	if got.JobType != model.JobTypeContract {
		t.Fatalf("expected contract, got %s", got.JobType)
	}
}

func TestClassifyEnumFallbacks(t *testing.T) {
	t.Parallel()

	// Unknown enum values collapse to defaults, case-insensitive values resolve.
	llm := &stubLLM{response: `{
		"jobType": "freelance",
		"experienceLevel": "FRESHER",
		"degreeRequired": "phd",
		"category": "Astrology"
	}`}
	c := NewWithClient(llm, time.Second, discardLogger())

	got := c.Classify(context.Background(), model.Posting{Title: "Engineer"})
	if got == nil {
		t.Fatalf("expected classification, got nil")
	}
	if got.JobType != model.JobTypeFullTime {
		t.Fatalf("expected full-time fallback, got %s", got.JobType)
	}
	if got.ExperienceLevel != model.ExperienceFresher {
		t.Fatalf("expected case-insensitive fresher match, got %s", got.ExperienceLevel)
	}
	if got.DegreeRequired != model.DegreeAny {
		t.Fatalf("expected any fallback, got %s", got.DegreeRequired)
	}
	if got.Category != "Other" {
		t.Fatalf("expected Other fallback, got %s", got.Category)
	}
}

func TestClassifySkillsCappedAndFiltered(t *testing.T) {
	t.Parallel()

	skills := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		skills = append(skills, `"go"`)
	}
	llm := &stubLLM{response: `{"jobType": "full-time", "experienceLevel": "3-5", "degreeRequired": "any",
		"skills": [` + strings.Join(skills, ",") + `, 42], "category": "Engineering"}`}
	c := NewWithClient(llm, time.Second, discardLogger())

	got := c.Classify(context.Background(), model.Posting{Title: "Engineer"})
	if got == nil {
		t.Fatalf("expected classification, got nil")
	}
	if len(got.Skills) != 10 {
		t.Fatalf("expected skills capped at 10, got %d", len(got.Skills))
	}
}

func TestClassifyNonNumericSalaryDropped(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{response: `{"jobType": "full-time", "experienceLevel": "3-5", "degreeRequired": "any",
		"salaryMin": "80k", "salaryMax": null, "category": "Engineering"}`}
	c := NewWithClient(llm, time.Second, discardLogger())

	got := c.Classify(context.Background(), model.Posting{Title: "Engineer"})
	if got == nil {
		t.Fatalf("expected classification, got nil")
	}
	if got.SalaryMin != nil {
		t.Fatalf("expected string salary dropped, got %v", *got.SalaryMin)
	}
}

func TestClassifyMalformedJSON(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{response: "sorry, I cannot help with that"}
	c := NewWithClient(llm, time.Second, discardLogger())

	if got := c.Classify(context.Background(), model.Posting{Title: "Engineer"}); got != nil {
		t.Fatalf("expected nil for malformed response, got %+v", got)
	}
}

func TestClassifyLLMError(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{err: errors.New("upstream 500")}
	c := NewWithClient(llm, time.Second, discardLogger())

	if got := c.Classify(context.Background(), model.Posting{Title: "Engineer"}); got != nil {
		t.Fatalf("expected nil on llm error, got %+v", got)
	}
}

func TestClassifyTimeout(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{block: make(chan struct{})}
	defer close(llm.block)
	c := NewWithClient(llm, 30*time.Millisecond, discardLogger())

	start := time.Now()
	got := c.Classify(context.Background(), model.Posting{Title: "Engineer"})
	if got != nil {
		t.Fatalf("expected nil on timeout, got %+v", got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("classification did not honor timeout, took %s", elapsed)
	}
}

func TestBuildPromptTruncatesDescription(t *testing.T) {
	t.Parallel()

	p := model.Posting{
		Title:       "Engineer",
		Company:     "Acme",
		Description: strings.Repeat("x", maxPromptDescription+500),
	}
	prompt := buildPrompt(p)
	if strings.Contains(prompt, strings.Repeat("x", maxPromptDescription+1)) {
		t.Fatalf("expected description truncated in prompt")
	}
	if !strings.Contains(prompt, "Not specified") {
		t.Fatalf("expected missing location placeholder")
	}
}

// --- stubs ---

type stubLLM struct {
	response string
	err      error
	block    chan struct{}
	calls    atomic.Int32
}

func (s *stubLLM) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls.Add(1)
	if s.block != nil {
		<-s.block
	}
	return s.response, s.err
}
