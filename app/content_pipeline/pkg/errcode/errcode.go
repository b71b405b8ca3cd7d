// Package errcode 定义流水线的错误分类。
//
// 错误分为三类：上游服务失败（重试耗尽后终止）、输入校验失败、前置产物缺失。
// 模型输出格式错误不属于错误，由各阶段降级为默认结果处理。
package errcode

import (
	"fmt"

	"github.com/go-kratos/kratos/v2/errors"
)

const (
	ReasonValidation          = "VALIDATION_FAILED"
	ReasonUnsupportedDocument = "UNSUPPORTED_DOCUMENT"
	ReasonPreconditionMissing = "PRECONDITION_MISSING"
	ReasonUpstreamFailed      = "UPSTREAM_FAILED"
	ReasonUpstreamExhausted   = "UPSTREAM_EXHAUSTED"
	ReasonInternal            = "INTERNAL"
)

// Validation 请求参数不合法
func Validation(format string, args ...any) *errors.Error {
	return errors.BadRequest(ReasonValidation, sprintf(format, args...))
}

// UnsupportedDocument 上传文档类型不支持
func UnsupportedDocument(format string, args ...any) *errors.Error {
	return errors.BadRequest(ReasonUnsupportedDocument, sprintf(format, args...))
}

// PreconditionMissing 前置产物（研究简报、文章）不存在，不重试
func PreconditionMissing(cause error, format string, args ...any) *errors.Error {
	return errors.NotFound(ReasonPreconditionMissing, sprintf(format, args...)).WithCause(cause)
}

// Upstream 上游服务（搜索、LLM）单次失败
func Upstream(cause error, format string, args ...any) *errors.Error {
	return errors.ServiceUnavailable(ReasonUpstreamFailed, sprintf(format, args...)).WithCause(cause)
}

// Exhausted 上游重试次数耗尽
func Exhausted(cause error, format string, args ...any) *errors.Error {
	return errors.ServiceUnavailable(ReasonUpstreamExhausted, sprintf(format, args...)).WithCause(cause)
}

// Internal 内部错误（文件读写等）
func Internal(cause error, format string, args ...any) *errors.Error {
	return errors.InternalServer(ReasonInternal, sprintf(format, args...)).WithCause(cause)
}

// IsValidation 是否为输入类错误
func IsValidation(err error) bool {
	r := errors.Reason(err)
	return r == ReasonValidation || r == ReasonUnsupportedDocument
}

// IsPreconditionMissing 是否为前置产物缺失
func IsPreconditionMissing(err error) bool {
	return errors.Reason(err) == ReasonPreconditionMissing
}

// IsUpstream 是否为上游服务错误
func IsUpstream(err error) bool {
	r := errors.Reason(err)
	return r == ReasonUpstreamFailed || r == ReasonUpstreamExhausted
}

// Payload 面向调用方的错误输出，保留错误类别
type Payload struct {
	Status  string `json:"status"`
	Code    int32  `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// ToPayload 将任意错误转为 Payload
func ToPayload(err error) Payload {
	e := errors.FromError(err)
	reason := e.Reason
	if reason == "" {
		reason = ReasonInternal
	}
	msg := e.Message
	if msg == "" {
		msg = err.Error()
	}
	return Payload{Status: "error", Code: e.Code, Reason: reason, Message: msg}
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
