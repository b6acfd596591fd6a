package scraper

import (
	"context"
	"log"
	"os"

	"nextgoal/internal/model"
)

// WorkdayScraper 是占位实现。Workday 职位页完全依赖浏览器渲染，
// 抓取需要 headless 渲染后端；在接入之前该来源恒返回空结果。
type WorkdayScraper struct {
	logger *log.Logger
}

// NewWorkdayScraper 创建占位适配器。
func NewWorkdayScraper(logger *log.Logger) *WorkdayScraper {
	if logger == nil {
		logger = log.New(os.Stdout, "[scraper] ", log.LstdFlags)
	}
	return &WorkdayScraper{logger: logger}
}

// Fetch 记录警告并返回空列表。
func (w *WorkdayScraper) Fetch(ctx context.Context, companyID string) ([]model.Posting, error) {
	w.logger.Printf("workday scraping for %s skipped: requires headless browser rendering", companyID)
	return []model.Posting{}, nil
}
