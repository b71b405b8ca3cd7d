// Package writer 由 Supervisor 驱动 大纲 -> 写作 -> 保存 三步完成一篇文章。
package writer

import (
	"context"
	"fmt"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/errcode"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/logger"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/stage"
)

// DefaultMaxSteps 单次运行允许执行的最大步数
const DefaultMaxSteps = 6

// Workflow 写作流程
type Workflow struct {
	agents   map[Step]Agent
	maxSteps int
}

// NewWorkflow 创建写作流程
func NewWorkflow(stages *stage.Stages, sink ArticleSink) *Workflow {
	return &Workflow{
		agents: map[Step]Agent{
			StepOutline: &OutlineAgent{stages: stages},
			StepWrite:   &WritingAgent{stages: stages},
			StepSave:    &OutputAgent{sink: sink},
		},
		maxSteps: DefaultMaxSteps,
	}
}

// Run 循环执行直到 Decide 返回 DONE，每一步之后重新判断
func (w *Workflow) Run(ctx context.Context, s *ArticleState) error {
	logger.Log.Infof("写作流程开始: %s", s.Topic())

	for i := 0; ; i++ {
		step := Decide(s)
		if step == StepDone {
			logger.Log.Info("文章生成完成")
			return nil
		}
		if i >= w.maxSteps {
			return errcode.Internal(fmt.Errorf("stuck at %s", step), "writer workflow exceeded %d steps", w.maxSteps)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		agent, ok := w.agents[step]
		if !ok {
			return errcode.Internal(fmt.Errorf("no agent for %s", step), "writer workflow misconfigured")
		}
		if err := agent.Act(ctx, s); err != nil {
			return fmt.Errorf("%s: %w", step, err)
		}
	}
}
