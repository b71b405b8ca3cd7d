package stage

// Outcome 阶段执行结果类型
type Outcome string

const (
	// OK 模型输出被正常解析
	OK Outcome = "ok"
	// Degraded 模型输出无法解析，使用了默认值
	Degraded Outcome = "degraded"
)

// Result 阶段函数的返回值
// Outcome 为 Degraded 时 Value 为默认记录，Cause 记录降级原因。
type Result[T any] struct {
	Value   T
	Outcome Outcome
	Cause   error
}

// IsDegraded 是否降级
func (r Result[T]) IsDegraded() bool {
	return r.Outcome == Degraded
}

func ok[T any](v T) Result[T] {
	return Result[T]{Value: v, Outcome: OK}
}
