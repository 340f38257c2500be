// Package entity 定义领域实体
package entity

import "strings"

// Role 对话消息的发送方
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid 仅接受三种已知角色
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ChatTurn 对话历史中的一轮
type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// IsBlank 内容为空白的历史轮次不进入提示词
func (t ChatTurn) IsBlank() bool {
	return strings.TrimSpace(t.Content) == ""
}
