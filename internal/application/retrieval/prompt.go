package retrieval

import (
	"fmt"
	"strings"
)

const ragSystemPromptHeader = `You are a supportive AI assistant helping a patient reflect on their therapy sessions. You have access to transcripts from their past therapy sessions.

IMPORTANT GUIDELINES:
1. Be warm, empathetic, and supportive in your responses
2. Only reference information from the provided context
3. If the context doesn't contain relevant information, say so honestly
4. Never make up or assume information not in the context
5. Respect the therapeutic nature of the content
6. Encourage the patient to discuss any concerns with their therapist
7. Do not provide medical advice or diagnoses

CONTEXT FROM THERAPY SESSIONS:
`

const ragSystemPromptFooter = `

When answering questions:
- Cite specific parts of the sessions when relevant
- Help the patient connect insights across sessions
- Maintain a supportive, non-judgmental tone
- If uncertain, acknowledge the limitation`

// NoContextSystemPrompt 检索无结果时使用，保持相同的安全约束
const NoContextSystemPrompt = `You are a supportive AI assistant helping a patient with their therapy journey.

Unfortunately, I don't have access to relevant information from your therapy sessions to answer this specific question.

Please respond by:
1. Acknowledging that you don't have relevant context from their sessions
2. Suggesting they rephrase their question or ask about something else
3. Reminding them they can always discuss questions with their therapist

Be warm, supportive, and helpful despite the limitation.`

const contextSeparator = "\n\n---\n\n"

// FormatContextChunk 以 "[说话人] (at 12.3s) 内容" 的形式注入 Prompt
func FormatContextChunk(res *SearchResult) string {
	if res == nil || res.Chunk == nil {
		return ""
	}
	parts := make([]string, 0, 3)
	if sp := strings.TrimSpace(res.Chunk.Speaker); sp != "" {
		parts = append(parts, "["+sp+"]")
	}
	if res.Chunk.StartTime != nil {
		parts = append(parts, fmt.Sprintf("(at %.1fs)", *res.Chunk.StartTime))
	}
	parts = append(parts, res.Chunk.Content)
	return strings.Join(parts, " ")
}

// BuildSystemPrompt 有结果时构建带上下文的 Prompt，否则返回无上下文 Prompt
func BuildSystemPrompt(results []*SearchResult) string {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		if b := FormatContextChunk(r); strings.TrimSpace(b) != "" {
			blocks = append(blocks, b)
		}
	}
	if len(blocks) == 0 {
		return NoContextSystemPrompt
	}
	return ragSystemPromptHeader + strings.Join(blocks, contextSeparator) + ragSystemPromptFooter
}

// ContentPreview 引用来源的短预览：正文前 maxRunes 个字符
func ContentPreview(content string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	r := []rune(content)
	if len(r) <= maxRunes {
		return content
	}
	return string(r[:maxRunes])
}
