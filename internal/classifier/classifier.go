package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"nextgoal/internal/model"
)

// Config 描述 AI 分类配置。Timeout 是独立于 HTTP 客户端的硬超时。
type Config struct {
	Gemini  GeminiConfig `yaml:"gemini" json:"gemini"`
	Timeout string       `yaml:"timeout" json:"timeout"`
}

// LLMClient 抽象大模型调用，便于测试注入。
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Classifier 用生成式模型推断职位的结构化字段。
// 未配置 API Key 时整体禁用，Classify 恒返回 nil 且不发起调用；
// 任何失败（网络、超时、JSON 不合规）都降级为 nil，绝不阻断入库。
type Classifier struct {
	llm     LLMClient
	model   string
	timeout time.Duration
	logger  *log.Logger
}

// New 创建分类器。cfg.Gemini.APIKey 为空时返回禁用实例。
func New(cfg Config, httpClient *http.Client, logger *log.Logger) *Classifier {
	if logger == nil {
		logger = log.New(os.Stdout, "[classifier] ", log.LstdFlags)
	}

	timeout := 8 * time.Second
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}

	c := &Classifier{timeout: timeout, logger: logger}
	if strings.TrimSpace(cfg.Gemini.APIKey) == "" {
		logger.Printf("gemini api key not set, AI classification disabled")
		return c
	}

	client := NewGeminiClient(cfg.Gemini, httpClient)
	c.llm = client
	c.model = client.Model()
	logger.Printf("AI classifier initialized with model %s", c.model)
	return c
}

// NewWithClient 注入自定义 LLM 实现，测试用。
func NewWithClient(llm LLMClient, timeout time.Duration, logger *log.Logger) *Classifier {
	if logger == nil {
		logger = log.New(os.Stdout, "[classifier] ", log.LstdFlags)
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Classifier{llm: llm, timeout: timeout, logger: logger}
}

// Enabled 报告分类器是否可用，检查是纯内存判断。
func (c *Classifier) Enabled() bool {
	return c != nil && c.llm != nil
}

// Model 返回生效的模型名，禁用时为空。
func (c *Classifier) Model() string {
	return c.model
}

// Classify 对单条职位执行 AI 分类。模型调用与计时器竞速，
// 先完成者胜出，超时与任何其它失败同样处理：返回 nil。
func (c *Classifier) Classify(ctx context.Context, p model.Posting) *model.Classification {
	if !c.Enabled() {
		return nil
	}

	prompt := buildPrompt(p)

	type outcome struct {
		text string
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		text, err := c.llm.Complete(ctx, prompt)
		ch <- outcome{text: text, err: err}
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	var text string
	select {
	case out := <-ch:
		if out.err != nil {
			c.logger.Printf("AI classification failed for %q: %v", p.Title, out.err)
			return nil
		}
		text = out.text
	case <-timer.C:
		c.logger.Printf("AI classification timed out for %q", p.Title)
		return nil
	case <-ctx.Done():
		c.logger.Printf("AI classification canceled for %q: %v", p.Title, ctx.Err())
		return nil
	}

	result, err := parseResponse(text)
	if err != nil {
		c.logger.Printf("failed to parse AI response for %q: %v", p.Title, err)
		return nil
	}
	return result
}

// ClassifyFields 对已入库记录的原始字段重新分类。
func (c *Classifier) ClassifyFields(ctx context.Context, title, company, location, description string) *model.Classification {
	return c.Classify(ctx, model.Posting{
		Title:       title,
		Company:     company,
		Location:    location,
		Description: description,
	})
}

const maxPromptDescription = 3000

func buildPrompt(p model.Posting) string {
	description := p.Description
	if len(description) > maxPromptDescription {
		description = description[:maxPromptDescription]
	}
	location := p.Location
	if location == "" {
		location = "Not specified"
	}

	return fmt.Sprintf(`You are a job posting classifier. Analyze this job and return ONLY a valid JSON object with no markdown formatting, no code fences, and no extra text.

Job Title: %s
Company: %s
Location: %s
Description: %s

Return exactly this JSON structure:
{
  "jobType": "<one of: internship, full-time, part-time, contract>",
  "experienceLevel": "<one of: fresher, 1-3, 3-5, 5+>",
  "degreeRequired": "<one of: btech, ballb, llb, any>",
  "salaryMin": <number or null if not mentioned>,
  "salaryMax": <number or null if not mentioned>,
  "salaryCurrency": "<ISO currency code like USD, INR, EUR or null>",
  "skills": ["<skill1>", "<skill2>", "...up to 10 most relevant skills"],
  "category": "<one of: Engineering, Design, Marketing, Sales, Finance, Legal, HR, Operations, Data Science, Product, Customer Support, Other>"
}

Rules:
- For experienceLevel: "fresher" = 0-1 years, "1-3" = 1-3 years, "3-5" = 3-5 years, "5+" = 5+ years
- For degreeRequired: only use "btech" if explicitly requires B.Tech/B.E./CS degree, "ballb" for BA LLB, "llb" for LLB, otherwise "any"
- For salary: extract annual salary if mentioned, convert to numbers. If only monthly is given, multiply by 12. If not mentioned, use null.
- For skills: extract specific technical skills, tools, languages, and frameworks mentioned
- Return ONLY valid JSON, no explanation`, p.Title, p.Company, location, description)
}

var (
	fenceJSONRe = regexp.MustCompile("(?i)```json\\s*")
	fenceRe     = regexp.MustCompile("```\\s*")
)

const maxSkills = 10

// parseResponse 清洗模型输出并逐字段校验到封闭枚举。
func parseResponse(text string) (*model.Classification, error) {
	cleaned := fenceJSONRe.ReplaceAllString(text, "")
	cleaned = fenceRe.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	var raw struct {
		JobType         string `json:"jobType"`
		ExperienceLevel string `json:"experienceLevel"`
		DegreeRequired  string `json:"degreeRequired"`
		SalaryMin       any    `json:"salaryMin"`
		SalaryMax       any    `json:"salaryMax"`
		SalaryCurrency  any    `json:"salaryCurrency"`
		Skills          []any  `json:"skills"`
		Category        string `json:"category"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	skills := make([]string, 0, maxSkills)
	for _, s := range raw.Skills {
		if str, ok := s.(string); ok {
			skills = append(skills, str)
			if len(skills) == maxSkills {
				break
			}
		}
	}

	currency := ""
	if s, ok := raw.SalaryCurrency.(string); ok {
		currency = s
	}

	return &model.Classification{
		JobType:         validateEnum(raw.JobType, model.JobTypes, model.JobTypeFullTime),
		ExperienceLevel: validateEnum(raw.ExperienceLevel, model.ExperienceLevels, model.ExperienceMid),
		DegreeRequired:  validateEnum(raw.DegreeRequired, model.Degrees, model.DegreeAny),
		SalaryMin:       asNumber(raw.SalaryMin),
		SalaryMax:       asNumber(raw.SalaryMax),
		SalaryCurrency:  currency,
		Skills:          skills,
		Category:        validateEnum(raw.Category, model.Categories, "Other"),
	}, nil
}

// validateEnum 精确匹配失败后做大小写不敏感匹配，仍无命中则取默认值。
func validateEnum(value string, allowed []string, fallback string) string {
	for _, a := range allowed {
		if value == a {
			return a
		}
	}
	lower := strings.ToLower(value)
	for _, a := range allowed {
		if strings.ToLower(a) == lower {
			return a
		}
	}
	return fallback
}

// asNumber 只接受真正的 JSON 数值，其余一概丢弃。
func asNumber(v any) *float64 {
	if f, ok := v.(float64); ok {
		return &f
	}
	return nil
}
