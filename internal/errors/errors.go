package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown          ErrorCode = 1000
	ErrInvalidParam     ErrorCode = 1001
	ErrNotFound         ErrorCode = 1002
	ErrAlreadyExists    ErrorCode = 1003
	ErrPermissionDenied ErrorCode = 1004
	ErrTimeout          ErrorCode = 1005
	ErrCanceled         ErrorCode = 1006
	ErrNotImplemented   ErrorCode = 1007
	ErrCapacityExceeded ErrorCode = 1008

	// 游戏规则校验错误 (2000-2999)
	ErrWrongStage         ErrorCode = 2000
	ErrNotQuestioner      ErrorCode = 2001
	ErrNotAllowedToAnswer ErrorCode = 2002
	ErrNotAllowedToVote   ErrorCode = 2003
	ErrInvalidVoteTarget  ErrorCode = 2004
	ErrStageNotSkippable  ErrorCode = 2005
	ErrNotEnoughPlayers   ErrorCode = 2006
	ErrPlayerNotFound     ErrorCode = 2007
	ErrEmptyText          ErrorCode = 2008
	ErrTextTooLong        ErrorCode = 2009

	// 答案生成服务错误 (3000-3999)
	ErrAnswerService  ErrorCode = 3000
	ErrAnswerTimeout  ErrorCode = 3001
	ErrUnknownModel   ErrorCode = 3002
	ErrAnswerEmpty    ErrorCode = 3003
	ErrAnswerUpstream ErrorCode = 3004

	// 通信错误 (4000-4999)
	ErrWebSocketConnect  ErrorCode = 4000
	ErrWebSocketSend     ErrorCode = 4001
	ErrWebSocketReceive  ErrorCode = 4002
	ErrWebSocketClosed   ErrorCode = 4003
	ErrMessageFormat     ErrorCode = 4004
	ErrUnknownAction     ErrorCode = 4005
	ErrRateLimitExceeded ErrorCode = 4006

	// 内部错误 (5000-5999)
	ErrInternal      ErrorCode = 5000
	ErrHookFailed    ErrorCode = 5001
	ErrSessionClosed ErrorCode = 5002
	ErrSessionBusy   ErrorCode = 5003

	// 配置错误 (6000-6999)
	ErrConfigLoad     ErrorCode = 6000
	ErrConfigParse    ErrorCode = 6001
	ErrConfigValidate ErrorCode = 6002
	ErrConfigMissing  ErrorCode = 6003

	// 身份错误 (7000-7999)
	ErrAuthentication ErrorCode = 7000
	ErrAuthorization  ErrorCode = 7001
	ErrTokenExpired   ErrorCode = 7002
	ErrTokenInvalid   ErrorCode = 7003
)

// 错误码消息映射
var errorMessages = map[ErrorCode]string{
	// 通用错误
	ErrUnknown:          "未知错误",
	ErrInvalidParam:     "无效的参数",
	ErrNotFound:         "资源未找到",
	ErrAlreadyExists:    "资源已存在",
	ErrPermissionDenied: "权限不足",
	ErrTimeout:          "操作超时",
	ErrCanceled:         "操作已取消",
	ErrNotImplemented:   "功能未实现",
	ErrCapacityExceeded: "容量已达上限",

	// 游戏规则校验错误
	ErrWrongStage:         "当前阶段不允许该操作",
	ErrNotQuestioner:      "只有提问者可以提问",
	ErrNotAllowedToAnswer: "当前不能回答问题",
	ErrNotAllowedToVote:   "当前不能投票",
	ErrInvalidVoteTarget:  "无效的投票对象",
	ErrStageNotSkippable:  "当前阶段不能跳过",
	ErrNotEnoughPlayers:   "玩家人数不足",
	ErrPlayerNotFound:     "玩家不存在",
	ErrEmptyText:          "内容不能为空",
	ErrTextTooLong:        "内容过长",

	// 答案生成服务错误
	ErrAnswerService:  "答案生成服务错误",
	ErrAnswerTimeout:  "答案生成超时",
	ErrUnknownModel:   "未知的模型",
	ErrAnswerEmpty:    "答案生成服务返回空内容",
	ErrAnswerUpstream: "答案生成服务上游错误",

	// 通信错误
	ErrWebSocketConnect:  "WebSocket连接失败",
	ErrWebSocketSend:     "WebSocket发送失败",
	ErrWebSocketReceive:  "WebSocket接收失败",
	ErrWebSocketClosed:   "WebSocket连接已关闭",
	ErrMessageFormat:     "消息格式错误",
	ErrUnknownAction:     "未知的事件",
	ErrRateLimitExceeded: "请求频率超限",

	// 内部错误
	ErrInternal:      "服务器内部错误",
	ErrHookFailed:    "阶段处理失败",
	ErrSessionClosed: "游戏会话已关闭",
	ErrSessionBusy:   "游戏会话繁忙",

	// 配置错误
	ErrConfigLoad:     "配置加载失败",
	ErrConfigParse:    "配置解析失败",
	ErrConfigValidate: "配置验证失败",
	ErrConfigMissing:  "配置项缺失",

	// 身份错误
	ErrAuthentication: "认证失败",
	ErrAuthorization:  "授权失败",
	ErrTokenExpired:   "令牌已过期",
	ErrTokenInvalid:   "无效的令牌",
}

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`            // 错误码
	Message string       `json:"message"`         // 错误消息
	Details string       `json:"details"`         // 详细信息
	Cause   error        `json:"-"`               // 原始错误
	Stack   []StackFrame `json:"stack,omitempty"` // 调用栈
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 添加原因错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	err.captureStack(2)

	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装错误，已经是AppError时保留原始错误码
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := As(err); ok {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	appErr := New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	}

	return appErr
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// As 在错误链中查找AppError
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is 判断错误是否为指定错误码
func Is(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ErrUnknown
}

// IsValidation 是否为游戏规则校验错误，只回复给发起者，不改变状态
func IsValidation(err error) bool {
	code := GetCode(err)
	return code >= 2000 && code <= 2999
}

// IsService 是否为答案生成服务错误
func IsService(err error) bool {
	code := GetCode(err)
	return code >= 3000 && code <= 3999
}

// IsInternal 是否为内部错误
func IsInternal(err error) bool {
	code := GetCode(err)
	return code >= 5000 && code <= 5999
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return
	}

	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()

		// 跳过runtime和本包的调用
		if strings.Contains(frame.Function, "runtime.") ||
			strings.Contains(frame.Function, "github.com/wfunc/ai-imposter/internal/errors") {
			if !more {
				break
			}
			continue
		}

		e.Stack = append(e.Stack, StackFrame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})

		if !more || len(e.Stack) >= 10 {
			break
		}
	}
}

// GetStack 获取格式化的调用栈
func (e *AppError) GetStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n",
			i+1, frame.Function, frame.File, frame.Line))
	}

	return builder.String()
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch {
	case e.Code == ErrInvalidParam || e.Code == ErrAlreadyExists:
		return 400
	case e.Code == ErrNotFound:
		return 404
	case e.Code == ErrPermissionDenied:
		return 403
	case e.Code == ErrTimeout:
		return 408
	case e.Code == ErrCapacityExceeded, e.Code == ErrRateLimitExceeded:
		return 429
	case e.Code >= 2000 && e.Code <= 2999:
		return 409
	case e.Code == ErrUnknownModel:
		return 400
	case e.Code >= 3000 && e.Code <= 3999:
		return 502
	case e.Code == ErrMessageFormat, e.Code == ErrUnknownAction:
		return 400
	case e.Code >= 7000 && e.Code <= 7999:
		return 401
	case e.Code == ErrSessionClosed, e.Code == ErrSessionBusy:
		return 503
	default:
		return 500
	}
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch GetCode(err) {
	case ErrTimeout,
		ErrAnswerTimeout,
		ErrAnswerUpstream,
		ErrWebSocketConnect,
		ErrSessionBusy:
		return true
	default:
		return false
	}
}

// IsCritical 判断是否为严重错误
func IsCritical(err error) bool {
	if err == nil {
		return false
	}

	switch GetCode(err) {
	case ErrConfigLoad,
		ErrConfigMissing,
		ErrInternal:
		return true
	default:
		return false
	}
}

// ErrorResponse API错误响应结构
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     *AppError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(err *AppError, requestID string) *ErrorResponse {
	return &ErrorResponse{
		Success:   false,
		Error:     err,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
}
