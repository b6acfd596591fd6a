package scraper

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"nextgoal/internal/model"

	"golang.org/x/net/html"
)

// UserAgent 对外抓取统一使用的 UA，附带可联系的邮箱。
const UserAgent = "NextGoal Job Aggregator (contact@nextgoal.app)"

// Scraper 抓取统一接口：按公司标识拉取并归一化职位。
type Scraper interface {
	Fetch(ctx context.Context, companyID string) ([]model.Posting, error)
}

// Company 描述一个待抓取目标。
type Company struct {
	Source    string `yaml:"source" json:"source"`
	CompanyID string `yaml:"company_id" json:"company_id"`
}

// DefaultCompanies 未配置抓取目标时使用的默认公司列表。
func DefaultCompanies() []Company {
	return []Company{
		{Source: "greenhouse", CompanyID: "stripe"},
		{Source: "greenhouse", CompanyID: "airbnb"},
		{Source: "greenhouse", CompanyID: "coinbase"},
		{Source: "lever", CompanyID: "netlify"},
		{Source: "lever", CompanyID: "notion"},
		{Source: "ashby", CompanyID: "ramp"},
		{Source: "smartrecruiters", CompanyID: "visa"},
	}
}

// Registry 按来源名分发到具体适配器。
// 未知来源视为配置错误并返回 error；适配器自身的抓取失败被吞掉，
// 只记日志并返回空列表，避免单个来源拖垮整批任务。
type Registry struct {
	scrapers map[string]Scraper
	logger   *log.Logger
}

// NewRegistry 注册全部内置适配器。
func NewRegistry(scrapers map[string]Scraper, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(os.Stdout, "[scraper] ", log.LstdFlags)
	}
	return &Registry{scrapers: scrapers, logger: logger}
}

// NewDefaultRegistry 用默认端点与注入的 HTTP 客户端构建全套适配器。
func NewDefaultRegistry(client *http.Client, logger *log.Logger) *Registry {
	return NewRegistry(map[string]Scraper{
		"greenhouse":      NewGreenhouseScraper("", client),
		"lever":           NewLeverScraper("", client),
		"ashby":           NewAshbyScraper("", client),
		"smartrecruiters": NewSmartRecruitersScraper("", client),
		"workday":         NewWorkdayScraper(nil),
	}, logger)
}

// Sources 返回已注册来源名，便于排错输出。
func (r *Registry) Sources() []string {
	names := make([]string, 0, len(r.scrapers))
	for name := range r.scrapers {
		names = append(names, name)
	}
	return names
}

// Fetch 分发抓取请求。来源未注册返回错误；适配器失败降级为空结果。
func (r *Registry) Fetch(ctx context.Context, source, companyID string) ([]model.Posting, error) {
	s, ok := r.scrapers[strings.ToLower(strings.TrimSpace(source))]
	if !ok {
		return nil, fmt.Errorf("unknown source: %s", source)
	}

	postings, err := s.Fetch(ctx, companyID)
	if err != nil {
		r.logger.Printf("%s scrape failed for %s: %v", source, companyID, err)
		return []model.Posting{}, nil
	}
	return postings, nil
}

// inferJobType 根据标题关键词推断职位类型，来源未给出结构化字段时兜底。
func inferJobType(title string) string {
	if strings.Contains(strings.ToLower(title), "intern") {
		return model.JobTypeInternship
	}
	return model.JobTypeFullTime
}

// inferExperienceLevel 根据标题关键词推断经验等级。
func inferExperienceLevel(title string) string {
	lower := strings.ToLower(title)
	switch {
	case containsAny(lower, "senior", "staff", "lead", "principal"):
		return model.ExperienceSenior
	case containsAny(lower, "junior", "associate"):
		return model.ExperienceJunior
	case containsAny(lower, "intern", "graduate", "entry"):
		return model.ExperienceFresher
	default:
		return model.ExperienceMid
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// capitalize 把公司 slug 转为展示名，如 stripe -> Stripe。
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// stripHTML 提取 HTML 文本内容并截断，用于职位描述清洗。
func stripHTML(raw string, maxLen int) string {
	node, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return truncate(strings.TrimSpace(raw), maxLen)
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return truncate(strings.TrimSpace(sb.String()), maxLen)
}

func truncate(s string, maxLen int) string {
	if maxLen > 0 && len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}
