// Package engine 组装研究、写作、品牌评估各环节，所有结果按运行 ID 隔离。
package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/branding"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/config"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/errcode"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/llm"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/logger"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/metrics"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/model"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/research"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/retry"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/runstore"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/search"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/search/factory"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/stage"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/storage"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/writer"
)

// Recorder 运行记录持久化，由 storage.Postgres 实现
type Recorder interface {
	CreateRun(ctx context.Context, runID string, rc model.ResearchContext) error
	SaveBriefs(ctx context.Context, runID string, briefs []model.ResearchBrief) error
	SaveArticle(ctx context.Context, runID string, blogNumber int, content string) error
	UpdateBrandResult(ctx context.Context, runID string, blogNumber int, content string, accepted bool, report model.BrandReport) error
}

var _ Recorder = (*storage.Postgres)(nil)

// Deps 引擎依赖
type Deps struct {
	Caller   llm.Caller
	Searcher search.Searcher
	Runs     *runstore.Store // 为 nil 时使用内存存储
	Recorder Recorder        // 可为 nil
	Metrics  *metrics.Metrics
}

// Engine 核心处理引擎
type Engine struct {
	cfg      *config.Config
	stages   *stage.Stages
	research *research.Service
	brand    *branding.Loop
	runs     *runstore.Store
	recorder Recorder
}

// New 基于已构造的依赖创建引擎
func New(cfg *config.Config, deps Deps) *Engine {
	stages := stage.New(deps.Caller, deps.Metrics)
	runs := deps.Runs
	if runs == nil {
		runs = runstore.New(runstore.NewMemory(), 0)
	}
	return &Engine{
		cfg:    cfg,
		stages: stages,
		research: research.NewService(deps.Searcher, stages, research.Options{
			MaxBlogCount: cfg.Pipeline.MaxBlogCount,
			SerpRetry: retry.Policy{
				MaxAttempts: cfg.Retry.MaxAttempts,
				Delay:       cfg.Retry.Wait(),
				Exponential: cfg.Retry.Exponential,
				Retryable:   retry.RateLimitOnly,
			},
		}),
		brand:    branding.NewLoop(stages, cfg.Pipeline.Brand.Threshold, cfg.Pipeline.Brand.MaxAttempts),
		runs:     runs,
		recorder: deps.Recorder,
	}
}

// NewEngine 按配置初始化 LLM、搜索客户端与运行存储
func NewEngine(ctx context.Context, cfg *config.Config, m *metrics.Metrics, recorder Recorder) (*Engine, error) {
	connector, err := llm.NewOpenAIConnector(ctx, cfg, m)
	if err != nil {
		return nil, err
	}

	searcher, err := factory.NewSearcher(cfg.Search)
	if err != nil {
		return nil, fmt.Errorf("搜索客户端初始化失败: %w", err)
	}

	ttl := time.Duration(cfg.Redis.TTLMinutes) * time.Minute
	var runs *runstore.Store
	if cfg.Redis.Addr != "" {
		rdb := runstore.NewRedis(cfg.Redis)
		if err := rdb.Ping(ctx); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis 连接失败: %w", err)
		}
		runs = runstore.New(rdb, ttl)
	} else {
		runs = runstore.New(runstore.NewMemory(), ttl)
	}

	return New(cfg, Deps{
		Caller:   connector,
		Searcher: searcher,
		Runs:     runs,
		Recorder: recorder,
		Metrics:  m,
	}), nil
}

// Close 释放运行存储的连接
func (e *Engine) Close() error {
	return e.runs.Close()
}

var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func checkRunID(runID string) error {
	if !runIDPattern.MatchString(runID) {
		return errcode.Validation("invalid run id %q", runID)
	}
	return nil
}

func (e *Engine) artifacts(runID string) *storage.Artifacts {
	return storage.NewArtifacts(e.cfg.Pipeline.OutputDir, runID, e.cfg.Pipeline.Files)
}

// record 数据库写入失败只记录日志，不影响主流程
func (e *Engine) record(runID, what string, fn func(r Recorder) error) {
	if e.recorder == nil {
		return
	}
	if err := fn(e.recorder); err != nil {
		logger.WithRun(runID).Errorf("无法保存%s: %v", what, err)
	}
}

// ResearchOptions 研究选项
type ResearchOptions struct {
	RunID     string // 为空时生成新的运行 ID
	Context   model.ResearchContext
	BlogCount int
	Document  *research.Document
}

// ResearchResult 研究结果
type ResearchResult struct {
	RunID  string           `json:"run_id"`
	Path   string           `json:"path"`
	Output *research.Output `json:"output"`
}

// Research 生成研究简报并保存到运行目录
func (e *Engine) Research(ctx context.Context, opts ResearchOptions) (*ResearchResult, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	if err := checkRunID(runID); err != nil {
		return nil, err
	}
	log := logger.WithRun(runID)
	log.Info("研究流程开始")

	out, err := e.research.Run(ctx, research.Request{
		Context:   opts.Context,
		BlogCount: opts.BlogCount,
		Document:  opts.Document,
	})
	if err != nil {
		return nil, err
	}

	path, err := e.artifacts(runID).SaveBriefs(out.Briefs)
	if err != nil {
		return nil, err
	}
	if err := e.runs.PutBriefs(ctx, runID, out.Briefs); err != nil {
		return nil, err
	}
	e.record(runID, "运行记录", func(r Recorder) error {
		if err := r.CreateRun(ctx, runID, out.Context); err != nil {
			return err
		}
		return r.SaveBriefs(ctx, runID, out.Briefs)
	})

	if len(out.Degraded) > 0 {
		log.Warnf("以下阶段使用了默认结果: %s", strings.Join(out.Degraded, ", "))
	}
	log.Infof("研究完成，%d 份简报已保存: %s", len(out.Briefs), path)
	return &ResearchResult{RunID: runID, Path: path, Output: out}, nil
}

// WriteOptions 写作选项，BlogNumber 为 0 时使用第一份简报
type WriteOptions struct {
	RunID      string
	BlogNumber int
}

// WriteResult 写作结果
type WriteResult struct {
	RunID      string   `json:"run_id"`
	BlogNumber int      `json:"blog_number"`
	Topic      string   `json:"topic"`
	Sections   []string `json:"sections"`
	Article    string   `json:"article"`
	Path       string   `json:"path"`
}

// pathSink 记录 OutputAgent 写入的路径
type pathSink struct {
	artifacts *storage.Artifacts
	path      string
}

func (s *pathSink) SaveArticle(content string) (string, error) {
	p, err := s.artifacts.SaveArticle(content)
	s.path = p
	return p, err
}

// Write 基于简报生成文章
func (e *Engine) Write(ctx context.Context, opts WriteOptions) (*WriteResult, error) {
	if err := checkRunID(opts.RunID); err != nil {
		return nil, err
	}
	arts := e.artifacts(opts.RunID)

	brief, err := e.loadBrief(ctx, opts.RunID, opts.BlogNumber)
	if err != nil {
		return nil, err
	}
	summary, err := arts.LoadSummary()
	if err != nil {
		return nil, err
	}

	state := writer.NewArticleState(brief, summary)
	sink := &pathSink{artifacts: arts.ForBlog(opts.BlogNumber)}
	if err := writer.NewWorkflow(e.stages, sink).Run(ctx, state); err != nil {
		return nil, err
	}

	if err := e.runs.PutArticle(ctx, opts.RunID, opts.BlogNumber, state.Article()); err != nil {
		return nil, err
	}
	e.record(opts.RunID, "文章", func(r Recorder) error {
		return r.SaveArticle(ctx, opts.RunID, brief.BlogNumber, state.Article())
	})

	return &WriteResult{
		RunID:      opts.RunID,
		BlogNumber: opts.BlogNumber,
		Topic:      state.Topic(),
		Sections:   state.Sections(),
		Article:    state.Article(),
		Path:       sink.path,
	}, nil
}

// loadBrief 优先从运行存储读取，找不到时读取运行目录中的简报文件
func (e *Engine) loadBrief(ctx context.Context, runID string, blogNumber int) (model.ResearchBrief, error) {
	briefs, err := e.runs.GetBriefs(ctx, runID)
	if err != nil {
		if !errcode.IsPreconditionMissing(err) {
			return model.ResearchBrief{}, err
		}
		return e.artifacts(runID).LoadBrief(blogNumber)
	}
	if len(briefs) == 0 {
		return model.ResearchBrief{}, errcode.PreconditionMissing(nil, "run %s has no research briefs", runID)
	}
	if blogNumber == 0 {
		return briefs[0], nil
	}
	for _, b := range briefs {
		if b.BlogNumber == blogNumber {
			return b, nil
		}
	}
	return model.ResearchBrief{}, errcode.PreconditionMissing(nil, "research brief #%d not found in run %s", blogNumber, runID)
}

func (e *Engine) loadArticle(ctx context.Context, runID string, blogNumber int) (string, error) {
	article, err := e.runs.GetArticle(ctx, runID, blogNumber)
	if err == nil {
		return article, nil
	}
	if !errcode.IsPreconditionMissing(err) {
		return "", err
	}
	return e.artifacts(runID).ForBlog(blogNumber).LoadArticle()
}

// BrandOptions 品牌评估选项
type BrandOptions struct {
	RunID      string
	BlogNumber int
	Voice      string // 为空时使用配置中的品牌调性
}

// BrandResult 品牌评估结果
type BrandResult struct {
	RunID      string            `json:"run_id"`
	BlogNumber int               `json:"blog_number"`
	Path       string            `json:"path"`
	Outcome    *branding.Outcome `json:"outcome"`
}

func (e *Engine) voice(v string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return e.cfg.Pipeline.Brand.Voice
}

// Brand 评分并在不达标时重写文章，最终版本保存到品牌文章文件
func (e *Engine) Brand(ctx context.Context, opts BrandOptions) (*BrandResult, error) {
	if err := checkRunID(opts.RunID); err != nil {
		return nil, err
	}
	article, err := e.loadArticle(ctx, opts.RunID, opts.BlogNumber)
	if err != nil {
		return nil, err
	}
	brief, err := e.loadBrief(ctx, opts.RunID, opts.BlogNumber)
	if err != nil {
		return nil, err
	}

	out, err := e.brand.Run(ctx, branding.Input{Article: article, Voice: e.voice(opts.Voice), Brief: brief})
	if err != nil {
		return nil, err
	}
	return e.saveBrand(ctx, opts.RunID, opts.BlogNumber, brief.BlogNumber, out)
}

// RefineOptions 按用户建议修改的选项
type RefineOptions struct {
	RunID      string
	BlogNumber int
	Suggestion string
	Voice      string
}

// Refine 按用户建议修改最新版本的文章并重新评分
func (e *Engine) Refine(ctx context.Context, opts RefineOptions) (*BrandResult, error) {
	if err := checkRunID(opts.RunID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.Suggestion) == "" {
		return nil, errcode.Validation("suggestion is required")
	}

	article, err := e.latestArticle(ctx, opts.RunID, opts.BlogNumber)
	if err != nil {
		return nil, err
	}
	brief, err := e.loadBrief(ctx, opts.RunID, opts.BlogNumber)
	if err != nil {
		return nil, err
	}

	out, err := e.brand.Refine(ctx, branding.Input{Article: article, Voice: e.voice(opts.Voice), Brief: brief}, opts.Suggestion)
	if err != nil {
		return nil, err
	}
	return e.saveBrand(ctx, opts.RunID, opts.BlogNumber, brief.BlogNumber, out)
}

// latestArticle 已有品牌评估结果时使用评估后的版本
func (e *Engine) latestArticle(ctx context.Context, runID string, blogNumber int) (string, error) {
	if prev, err := e.runs.GetBrand(ctx, runID, blogNumber); err == nil {
		return prev.Article, nil
	} else if !errcode.IsPreconditionMissing(err) {
		return "", err
	}
	if branded, err := e.artifacts(runID).ForBlog(blogNumber).LoadBranded(); err == nil {
		return branded, nil
	}
	return e.loadArticle(ctx, runID, blogNumber)
}

func (e *Engine) saveBrand(ctx context.Context, runID string, blogNumber, briefNumber int, out *branding.Outcome) (*BrandResult, error) {
	path, err := e.artifacts(runID).ForBlog(blogNumber).SaveBranded(out.Article)
	if err != nil {
		return nil, err
	}
	if err := e.runs.PutBrand(ctx, runID, blogNumber, out); err != nil {
		return nil, err
	}
	e.record(runID, "品牌评估结果", func(r Recorder) error {
		return r.UpdateBrandResult(ctx, runID, briefNumber, out.Article, out.Accepted, out.Report)
	})
	return &BrandResult{RunID: runID, BlogNumber: blogNumber, Path: path, Outcome: out}, nil
}

// SaveOutput 保存用户确认的最终内容
func (e *Engine) SaveOutput(ctx context.Context, runID, name, content string) (string, error) {
	if err := checkRunID(runID); err != nil {
		return "", err
	}
	if strings.TrimSpace(content) == "" {
		return "", errcode.Validation("content is required")
	}
	path, err := e.artifacts(runID).SaveOutput(name, content)
	if err != nil {
		return "", err
	}
	logger.WithRun(runID).Infof("内容已保存: %s", path)
	return path, nil
}

// Articles 列出运行目录中的所有文章
func (e *Engine) Articles(ctx context.Context, runID string) ([]model.ArticleFile, error) {
	if err := checkRunID(runID); err != nil {
		return nil, err
	}
	return e.artifacts(runID).ListArticles()
}

// RunAllOptions 完整流程选项
type RunAllOptions struct {
	Research  ResearchOptions
	Voice     string
	SkipBrand bool
}

// RunAllResult 完整流程结果
type RunAllResult struct {
	RunID    string          `json:"run_id"`
	Research *ResearchResult `json:"research"`
	Articles []*WriteResult  `json:"articles"`
	Brands   []*BrandResult  `json:"brands,omitempty"`
}

// RunAll 研究 -> 逐篇写作 -> 逐篇品牌评估，按顺序执行
func (e *Engine) RunAll(ctx context.Context, opts RunAllOptions) (*RunAllResult, error) {
	res, err := e.Research(ctx, opts.Research)
	if err != nil {
		return nil, err
	}
	result := &RunAllResult{RunID: res.RunID, Research: res}

	for _, brief := range res.Output.Briefs {
		w, err := e.Write(ctx, WriteOptions{RunID: res.RunID, BlogNumber: brief.BlogNumber})
		if err != nil {
			return result, fmt.Errorf("write blog %d: %w", brief.BlogNumber, err)
		}
		result.Articles = append(result.Articles, w)

		if opts.SkipBrand {
			continue
		}
		b, err := e.Brand(ctx, BrandOptions{RunID: res.RunID, BlogNumber: brief.BlogNumber, Voice: opts.Voice})
		if err != nil {
			return result, fmt.Errorf("brand blog %d: %w", brief.BlogNumber, err)
		}
		result.Brands = append(result.Brands, b)
	}

	logger.WithRun(res.RunID).Infof("完整流程结束，共 %d 篇文章", len(result.Articles))
	return result, nil
}
