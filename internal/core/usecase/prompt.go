package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
)

const answerSystemPrompt = `你是剧本杀知识库助手。只根据提供的上下文回答问题，不要编造上下文中没有的信息。
每个事实都要在句末用 [来源: <文档名> 第<页码>页] 的格式标注出处；没有页码时写 [来源: <文档名>]。
如果上下文不足以回答问题，请直接说明"根据现有资料无法回答"，不要猜测。`

// buildContextBlocks numbers fused items as "[n] source: <document> (page s-e)" followed
// by the JSON payload.
func buildContextBlocks(items []domain.RankedItem) string {
	var b strings.Builder
	for idx, item := range items {
		fmt.Fprintf(&b, "[%d] source: %s", idx+1, item.Provenance.DocumentName)
		if pages := item.Provenance.PageLabel(); pages != "" {
			fmt.Fprintf(&b, " (page %s)", pages)
		}
		b.WriteString("\n")

		payload, err := domain.MarshalPayload(item.Payload)
		if err != nil {
			payload = "{}"
		}
		b.WriteString(payload)
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func buildAnswerMessages(query string, items []domain.RankedItem, history []domain.ChatMessage) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(history)+2)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: answerSystemPrompt})
	messages = append(messages, history...)
	messages = append(messages, domain.ChatMessage{
		Role: domain.RoleUser,
		Content: fmt.Sprintf(`上下文：
%s

问题：
%s`, buildContextBlocks(items), query),
	})
	return messages
}
