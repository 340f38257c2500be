package chat

import (
	"errors"
	"fmt"
)

// Stage 对话流程中可能失败的外部调用步骤
type Stage string

const (
	StageEmbed    Stage = "embed"
	StageRetrieve Stage = "retrieve"
	StageComplete Stage = "complete"
)

// Error 对话编排失败；护栏拒绝不会以 Error 返回
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("chat %s failed: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError 提取错误链中的对话编排错误
func AsError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// ErrEmptyMessage 消息为空
var ErrEmptyMessage = errors.New("message is required")
