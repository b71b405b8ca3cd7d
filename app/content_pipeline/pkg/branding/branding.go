// Package branding 按品牌调性为文章打分，不达标时有限次重写。
package branding

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/logger"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/model"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/stage"
)

const (
	DefaultThreshold   = 50
	DefaultMaxAttempts = 3
)

// Input 评估输入
type Input struct {
	Article string
	Voice   string
	Brief   model.ResearchBrief
}

// Attempt 一次评分记录，Attempt 0 为原文
type Attempt struct {
	Attempt  int               `json:"attempt"`
	Score    int               `json:"score"`
	Report   model.BrandReport `json:"report"`
	Degraded bool              `json:"degraded,omitempty"`
}

// Outcome 评估结果
type Outcome struct {
	Article      string            `json:"article"`
	InitialScore int               `json:"initial_score"`
	FinalScore   int               `json:"final_score"`
	Attempts     int               `json:"attempts"` // 重写次数
	Accepted     bool              `json:"accepted"`
	Report       model.BrandReport `json:"brand_score"`
	History      []Attempt         `json:"history"`
}

// Loop 品牌评分与重写循环
type Loop struct {
	stages      *stage.Stages
	threshold   int
	maxAttempts int
}

// NewLoop 创建循环，threshold 或 maxAttempts 非正时使用默认值
func NewLoop(stages *stage.Stages, threshold, maxAttempts int) *Loop {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Loop{stages: stages, threshold: threshold, maxAttempts: maxAttempts}
}

// Threshold 接受分数线
func (l *Loop) Threshold() int { return l.threshold }

// Run 先评分；低于阈值时重写并重新评分，直到达标或重写次数用尽
// 未达标时保留最后一次重写结果，Accepted 为 false。
func (l *Loop) Run(ctx context.Context, in Input) (*Outcome, error) {
	report, err := l.score(ctx, in.Article, in, 0)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Article:      in.Article,
		InitialScore: report.Value.OverallScore,
		History:      []Attempt{attemptOf(0, report)},
	}
	current := report.Value

	for !current.Accepted(l.threshold) && out.Attempts < l.maxAttempts {
		out.Attempts++
		logger.Log.WithFields(logrus.Fields{"attempt": out.Attempts, "score": current.OverallScore}).
			Infof("品牌调性未达标 (阈值 %d)，重写文章", l.threshold)

		rewritten, err := l.stages.Rewrite(ctx, out.Article, current.Issues, in.Voice, in.Brief)
		if err != nil {
			return nil, err
		}
		out.Article = rewritten.Value

		report, err = l.score(ctx, out.Article, in, out.Attempts)
		if err != nil {
			return nil, err
		}
		current = report.Value
		out.History = append(out.History, attemptOf(out.Attempts, report))
	}

	out.FinalScore = current.OverallScore
	out.Report = current
	out.Accepted = current.Accepted(l.threshold)
	if out.Accepted {
		logger.Log.Infof("文章通过品牌评估，得分 %d", out.FinalScore)
	} else {
		logger.Log.Warnf("重写 %d 次后仍未达标，最终得分 %d", out.Attempts, out.FinalScore)
	}
	return out, nil
}

// Refine 按用户建议修改一次并重新评分
func (l *Loop) Refine(ctx context.Context, in Input, suggestion string) (*Outcome, error) {
	initial, err := l.score(ctx, in.Article, in, 0)
	if err != nil {
		return nil, err
	}

	refined, err := l.stages.Refine(ctx, in.Article, suggestion, in.Voice)
	if err != nil {
		return nil, err
	}

	final, err := l.score(ctx, refined.Value, in, 1)
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Article:      refined.Value,
		InitialScore: initial.Value.OverallScore,
		FinalScore:   final.Value.OverallScore,
		Attempts:     1,
		Accepted:     final.Value.Accepted(l.threshold),
		Report:       final.Value,
		History:      []Attempt{attemptOf(0, initial), attemptOf(1, final)},
	}, nil
}

func (l *Loop) score(ctx context.Context, article string, in Input, attempt int) (stage.Result[model.BrandReport], error) {
	res, err := l.stages.ScoreTone(ctx, article, in.Voice, in.Brief)
	if err != nil {
		return res, err
	}
	logger.Log.WithField("attempt", attempt).Infof("品牌得分: %d", res.Value.OverallScore)
	return res, nil
}

func attemptOf(n int, r stage.Result[model.BrandReport]) Attempt {
	return Attempt{Attempt: n, Score: r.Value.OverallScore, Report: r.Value, Degraded: r.IsDegraded()}
}
