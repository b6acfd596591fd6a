package verifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"nextgoal/internal/model"
	"nextgoal/internal/scraper"
	"nextgoal/internal/storage"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

// Config 描述验证引擎配置，时长字段用 "10s" 之类的字符串表示。
type Config struct {
	Timeout     string `yaml:"timeout" json:"timeout"`
	Cooldown    string `yaml:"cooldown" json:"cooldown"`
	BatchSize   int    `yaml:"batch_size" json:"batch_size"`
	BatchPause  string `yaml:"batch_pause" json:"batch_pause"`
	MaxAttempts int    `yaml:"max_attempts" json:"max_attempts"`
}

// Store 抽象验证所需的存储操作。
type Store interface {
	FindByID(ctx context.Context, id uint) (*model.Job, error)
	UpdateVerification(ctx context.Context, id uint, update storage.VerificationUpdate) error
	ListActiveNotVerifiedSince(ctx context.Context, cutoff time.Time) ([]uint, error)
}

// CheckResult 是一次存活探测的结论。Reason 仅在无效时有值。
type CheckResult struct {
	Valid  bool
	Reason string
}

// Result 汇总一次全量验证。
type Result struct {
	Verified       int `json:"verified"`
	MarkedInactive int `json:"marked_inactive"`
	Errors         int `json:"errors"`
}

// 页面文案中出现以下任意短语即认为职位已关闭，200 响应同样判无效。
var closedPhrases = []string{
	"position filled",
	"no longer accepting applications",
	"this job is closed",
	"this position is no longer available",
	"application closed",
	"job closed",
	"posting has closed",
	"applications are closed",
	"opportunity has closed",
}

const maxRedirects = 5

// Verifier 周期性复查已入库职位的申请链接是否仍然有效。
// 连续失败 MaxAttempts 次的职位被下线；下线职位不会被验证直接复活，
// 只有入库管道重新抓到同一指纹才会重置状态。
type Verifier struct {
	store       Store
	client      *http.Client
	cooldown    time.Duration
	batchSize   int
	batchPause  time.Duration
	maxAttempts int
	logger      *log.Logger
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration)
}

// New 创建 Verifier，client 为空时构建带超时与重定向上限的默认客户端。
func New(store Store, client *http.Client, cfg Config, logger *log.Logger) *Verifier {
	if logger == nil {
		logger = log.New(os.Stdout, "[verifier] ", log.LstdFlags)
	}

	timeout := 10 * time.Second
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}
	if client == nil {
		client = &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		}
	}

	cooldown := 20 * time.Hour
	if cfg.Cooldown != "" {
		if d, err := time.ParseDuration(cfg.Cooldown); err == nil && d > 0 {
			cooldown = d
		}
	}
	pause := time.Second
	if cfg.BatchPause != "" {
		if d, err := time.ParseDuration(cfg.BatchPause); err == nil && d >= 0 {
			pause = d
		}
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	return &Verifier{
		store:       store,
		client:      client,
		cooldown:    cooldown,
		batchSize:   batchSize,
		batchPause:  pause,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// CheckURL 探测申请链接。5xx 以下的状态都不算传输失败，但仍按状态分级：
// 200 进一步扫描关闭文案，404/410 给出明确原因，其余记录状态码。
func (v *Verifier) CheckURL(ctx context.Context, url string) CheckResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return CheckResult{Valid: false, Reason: err.Error()}
	}
	req.Header.Set("User-Agent", scraper.UserAgent)

	resp, err := v.client.Do(req)
	if err != nil {
		return CheckResult{Valid: false, Reason: classifyNetworkError(err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return CheckResult{Valid: false, Reason: classifyNetworkError(err)}
		}
		if reason, closed := pageClosedReason(string(body)); closed {
			return CheckResult{Valid: false, Reason: reason}
		}
		return CheckResult{Valid: true}
	case resp.StatusCode == http.StatusNotFound:
		return CheckResult{Valid: false, Reason: "404 Not Found"}
	case resp.StatusCode == http.StatusGone:
		return CheckResult{Valid: false, Reason: "410 Gone (Job Removed)"}
	default:
		return CheckResult{Valid: false, Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
}

// VerifyOne 验证单个职位并落库状态变更。
func (v *Verifier) VerifyOne(ctx context.Context, id uint) error {
	_, err := v.verify(ctx, id)
	return err
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeVerified
	outcomeMarkedInactive
)

func (v *Verifier) verify(ctx context.Context, id uint) (outcome, error) {
	job, err := v.store.FindByID(ctx, id)
	if err != nil {
		return outcomeSkipped, err
	}
	if job == nil {
		v.logger.Printf("job %d not found", id)
		return outcomeSkipped, nil
	}
	if !job.IsActive {
		return outcomeSkipped, nil
	}

	check := v.CheckURL(ctx, job.ApplyURL)
	if check.Valid {
		err := v.store.UpdateVerification(ctx, id, storage.VerificationUpdate{
			LastVerified:         v.now(),
			VerificationAttempts: 0,
			IsActive:             true,
		})
		if err != nil {
			return outcomeSkipped, err
		}
		return outcomeVerified, nil
	}

	attempts := job.VerificationAttempts + 1
	demote := attempts >= v.maxAttempts
	err = v.store.UpdateVerification(ctx, id, storage.VerificationUpdate{
		LastVerified:          v.now(),
		VerificationAttempts:  attempts,
		LastVerificationError: check.Reason,
		IsActive:              !demote,
	})
	if err != nil {
		return outcomeSkipped, err
	}

	if demote {
		v.logger.Printf("job %d marked inactive after %d failed attempts, last error: %s", id, attempts, check.Reason)
		return outcomeMarkedInactive, nil
	}
	v.logger.Printf("job %d verification failed (attempt %d/%d): %s", id, attempts, v.maxAttempts, check.Reason)
	return outcomeVerified, nil
}

// VerifyAll 验证所有活跃且超过冷却窗口未复查的职位。
// 批内并发、批间顺序执行并停顿，限制对第三方站点的瞬时请求量；
// 单条失败只计数，不会中断批次。
func (v *Verifier) VerifyAll(ctx context.Context) (Result, error) {
	cutoff := v.now().Add(-v.cooldown)
	ids, err := v.store.ListActiveNotVerifiedSince(ctx, cutoff)
	if err != nil {
		return Result{}, fmt.Errorf("list candidates: %w", err)
	}

	v.logger.Printf("starting verification for %d active jobs", len(ids))

	res := Result{}
	for start := 0; start < len(ids); start += v.batchSize {
		end := start + v.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		// 每个条目独立产出结果，批次收拢后再折叠计数，避免共享计数器竞争。
		type itemResult struct {
			outcome outcome
			err     error
		}
		results := make([]itemResult, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		for i, id := range batch {
			i, id := i, id
			g.Go(func() error {
				out, err := v.verify(gctx, id)
				results[i] = itemResult{outcome: out, err: err}
				return nil
			})
		}
		_ = g.Wait()

		for _, r := range results {
			switch {
			case r.err != nil:
				v.logger.Printf("verification error: %v", r.err)
				res.Errors++
			case r.outcome == outcomeVerified:
				res.Verified++
			case r.outcome == outcomeMarkedInactive:
				res.MarkedInactive++
			}
		}

		if end < len(ids) {
			v.sleep(ctx, v.batchPause)
		}
	}

	v.logger.Printf("verification complete: %d verified, %d marked inactive, %d errors",
		res.Verified, res.MarkedInactive, res.Errors)
	return res, nil
}

// classifyNetworkError 把传输层错误映射为固定原因文案。
func classifyNetworkError(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "Domain not found"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Request timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Request timeout"
	}
	return err.Error()
}

// pageClosedReason 扫描页面文本寻找关闭文案。
func pageClosedReason(body string) (string, bool) {
	text := strings.ToLower(pageText(body))
	for _, phrase := range closedPhrases {
		if strings.Contains(text, phrase) {
			return "Job marked as closed on page", true
		}
	}
	return "", false
}

func pageText(raw string) string {
	node, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return sb.String()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
