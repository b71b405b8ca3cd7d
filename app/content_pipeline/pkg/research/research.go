// Package research 由主题生成多个博客角度，并为每个角度产出一份 SEO 研究简报。
package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/document"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/errcode"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/logger"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/model"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/retry"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/search"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/stage"
)

// DefaultMaxBlogCount 单次请求允许的最大角度数
const DefaultMaxBlogCount = 10

// Document 上传的参考文档
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

// Request 研究请求
// 提供 Document 时主题与受众由文档提取，否则 Topic 与 TargetAudience 必填。
type Request struct {
	Context   model.ResearchContext
	BlogCount int
	Document  *Document
}

// Output 研究结果
type Output struct {
	Context  model.ResearchContext `json:"context"`
	Serp     model.SerpAnalysis    `json:"serp_analysis"`
	Angles   []string              `json:"angles"`
	Briefs   []model.ResearchBrief `json:"research_briefs"`
	Degraded []string              `json:"degraded_stages,omitempty"`
}

// Options 服务参数
type Options struct {
	MaxBlogCount int
	SerpRetry    retry.Policy // SERP 请求的重试策略，零值表示只请求一次
	MaxResults   int
}

// Service 研究服务
type Service struct {
	searcher search.Searcher
	stages   *stage.Stages
	opts     Options
}

// NewService 创建研究服务
func NewService(searcher search.Searcher, stages *stage.Stages, opts Options) *Service {
	if opts.MaxBlogCount <= 0 {
		opts.MaxBlogCount = DefaultMaxBlogCount
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 10
	}
	return &Service{searcher: searcher, stages: stages, opts: opts}
}

// Run 执行一次研究：SERP 抓取与分析各一次，角度生成一次，然后逐个角度串行生成简报
func (s *Service) Run(ctx context.Context, req Request) (*Output, error) {
	count := req.BlogCount
	if count == 0 {
		count = 1
	}
	if count < 1 || count > s.opts.MaxBlogCount {
		return nil, errcode.Validation("blog_count must be between 1 and %d, got %d", s.opts.MaxBlogCount, req.BlogCount)
	}

	out := &Output{}
	rc, err := s.buildContext(ctx, req, out)
	if err != nil {
		return nil, err
	}
	out.Context = rc

	log := logger.Log.WithFields(logrus.Fields{"topic": rc.Topic, "blogs": count})
	log.Info("开始抓取 SERP")

	raw, err := s.fetchSerp(ctx, rc)
	if err != nil {
		return nil, err
	}

	serp, err := s.stages.AnalyzeSerp(ctx, raw)
	if err != nil {
		return nil, err
	}
	out.Serp = serp.Value
	out.markDegraded(stage.NameSerp, serp.IsDegraded())

	angles, err := s.stages.GenerateAngles(ctx, rc, count)
	if err != nil {
		return nil, err
	}
	out.Angles = angles.Value
	out.markDegraded(stage.NameAngles, angles.IsDegraded())
	log.Infof("生成 %d 个博客角度", len(angles.Value))

	out.Briefs = make([]model.ResearchBrief, 0, len(angles.Value))
	for i, angle := range angles.Value {
		res, err := s.stages.GenerateBrief(ctx, rc, serp.Value, angle)
		if err != nil {
			return nil, fmt.Errorf("brief %d: %w", i+1, err)
		}
		brief := res.Value
		brief.BlogNumber = i + 1
		brief.BlogAngle = angle
		out.Briefs = append(out.Briefs, brief)
		out.markDegraded(fmt.Sprintf("%s#%d", stage.NameBrief, i+1), res.IsDegraded())
		log.WithField("angle", i+1).Info("简报已生成")
	}

	return out, nil
}

// buildContext 组装研究上下文
func (s *Service) buildContext(ctx context.Context, req Request, out *Output) (model.ResearchContext, error) {
	rc := req.Context
	if req.Document == nil {
		if strings.TrimSpace(rc.Topic) == "" || strings.TrimSpace(rc.TargetAudience) == "" {
			return model.ResearchContext{}, errcode.Validation("Topic and Target Audience are required")
		}
		rc.SearchIntent = ""
		return rc, nil
	}

	text, err := document.Extract(req.Document.Name, req.Document.ContentType, req.Document.Data)
	if err != nil {
		return model.ResearchContext{}, err
	}
	insight, err := s.stages.ExtractTopic(ctx, text)
	if err != nil {
		return model.ResearchContext{}, err
	}
	out.markDegraded(stage.NameTopic, insight.IsDegraded())

	return model.ResearchContext{
		Topic:          insight.Value.CoreTopic,
		TargetAudience: insight.Value.TargetAudience,
		ContentGoal:    rc.ContentGoal,
		Brand:          rc.Brand,
		Region:         rc.Region,
		SearchIntent:   insight.Value.SearchIntent,
	}, nil
}

func (s *Service) fetchSerp(ctx context.Context, rc model.ResearchContext) ([]byte, error) {
	var resp *search.Response
	policy := s.opts.SerpRetry
	policy.Notify = func(attempt int, err error, wait time.Duration) {
		logger.Log.Warnf("SERP 请求失败 (第 %d 次): %v，%s 后重试", attempt, err, wait)
	}
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		r, err := s.searcher.Search(ctx, &search.Request{Query: rc.Topic, MaxResults: s.opts.MaxResults})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		var ex *retry.ExhaustedError
		if errors.As(err, &ex) {
			return nil, errcode.Exhausted(err, "serp fetch failed after %d attempts", ex.Attempts)
		}
		if errcode.IsUpstream(err) {
			return nil, err
		}
		return nil, errcode.Upstream(err, "serp fetch failed")
	}
	return resp.RawOrResults(), nil
}

func (o *Output) markDegraded(name string, degraded bool) {
	if degraded {
		o.Degraded = append(o.Degraded, name)
	}
}
