package writer

// Step 下一步要执行的动作
type Step string

const (
	StepOutline Step = "NEEDS_OUTLINE"
	StepWrite   Step = "NEEDS_WRITE"
	StepSave    Step = "NEEDS_SAVE"
	StepDone    Step = "DONE"
)

// Decide 根据已填充的字段决定下一步，按固定顺序第一个匹配生效
func Decide(s *ArticleState) Step {
	switch {
	case !s.HasSections():
		return StepOutline
	case !s.HasArticle():
		return StepWrite
	case !s.Done():
		return StepSave
	default:
		return StepDone
	}
}
