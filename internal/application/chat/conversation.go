package chat

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"therapy-chat-api/internal/application/safety"
	"therapy-chat-api/internal/domain/entity"
	"therapy-chat-api/internal/domain/repository"
	apperrors "therapy-chat-api/pkg/errors"
	"therapy-chat-api/pkg/logger"
)

const defaultHistoryTurns = 20

// Conversations 在单轮对话前后加载与追加对话历史
type Conversations struct {
	chat          *Service
	conversations repository.ConversationRepository
	messages      repository.ConversationMessageRepository
	tx            repository.Transactor
	historyTurns  int
}

// NewConversations tx 为 nil 时逐条写入，不保证一轮的两条消息同时落库
func NewConversations(chat *Service, conversations repository.ConversationRepository, messages repository.ConversationMessageRepository, tx repository.Transactor, historyTurns int) *Conversations {
	if historyTurns <= 0 {
		historyTurns = defaultHistoryTurns
	}
	return &Conversations{
		chat:          chat,
		conversations: conversations,
		messages:      messages,
		tx:            tx,
		historyTurns:  historyTurns,
	}
}

// Chat 未携带 ConversationID 时新建对话；历史取自存储而非请求体。
// 只有成功的一轮才会写入历史。
func (c *Conversations) Chat(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	if c.conversations == nil || c.messages == nil {
		return c.chat.Chat(ctx, req)
	}

	convID := strings.TrimSpace(req.ConversationID)
	if convID == "" {
		convID = uuid.NewString()
	}
	conv, err := c.conversations.GetOrCreate(ctx, entity.NewConversation(convID, req.TenantID, req.UserID))
	if err != nil {
		return nil, err
	}
	if conv.TenantID != req.TenantID {
		return nil, apperrors.ErrConversationNotFound
	}
	ctx = logger.WithContext(ctx, logger.ConversationIDKey, conv.ID)

	recent, err := c.messages.ListRecent(ctx, conv.ID, c.historyTurns)
	if err != nil {
		return nil, err
	}
	history := make([]entity.ChatTurn, 0, len(recent))
	for _, m := range recent {
		content := m.Content
		if m.Role == entity.RoleAssistant {
			// 存储保留用户看到的完整回复，回放给模型时去掉危机求助前缀
			content = safety.StripCrisisResources(content)
		}
		history = append(history, entity.ChatTurn{Role: m.Role, Content: content})
	}

	turn := *req
	turn.ConversationID = conv.ID
	turn.History = history
	resp, err := c.chat.Chat(ctx, &turn)
	if err != nil {
		return nil, err
	}

	c.appendTurn(ctx, conv.ID, req.Message, resp)
	return resp, nil
}

// History 返回对话的消息分页；对话不属于该租户时返回 nil
func (c *Conversations) History(ctx context.Context, tenantID, conversationID string, p repository.Pagination) (*entity.Conversation, *repository.PagedResult[*entity.ConversationMessage], error) {
	if c.conversations == nil || c.messages == nil {
		return nil, nil, nil
	}
	conv, err := c.conversations.GetByID(ctx, tenantID, conversationID)
	if err != nil || conv == nil {
		return nil, nil, err
	}
	page, err := c.messages.ListByConversation(ctx, conv.ID, p)
	if err != nil {
		return nil, nil, err
	}
	return conv, page, nil
}

// appendTurn 写入失败只记录日志，回复已生成
func (c *Conversations) appendTurn(ctx context.Context, convID, userText string, resp *Response) {
	meta, err := json.Marshal(map[string]any{
		"sources":       resp.Sources,
		"input_action":  resp.InputAction,
		"output_action": resp.OutputAction,
		"escalated":     resp.Escalated,
	})
	if err != nil {
		meta = nil
	}

	write := func(ctx context.Context) error {
		if err := c.messages.Create(ctx, entity.NewConversationMessage(convID, entity.RoleUser, userText, nil)); err != nil {
			return err
		}
		if err := c.messages.Create(ctx, entity.NewConversationMessage(convID, entity.RoleAssistant, resp.Text, meta)); err != nil {
			return err
		}
		return c.conversations.Touch(ctx, convID)
	}

	if c.tx != nil {
		err = c.tx.WithTransaction(ctx, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		logger.Error(ctx, "failed to persist conversation turn", err)
	}
}
