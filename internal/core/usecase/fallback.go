package usecase

import (
	"fmt"
	"regexp"
	"strings"
)

const noResultsApology = "抱歉，知识库中没有找到与您的问题相关的内容。"

var noResultsSuggestions = []string{
	"检查剧本名称、角色名称是否正确",
	"换一种更具体的问法，例如指明角色、线索或场景",
	"尝试更宽泛的关键词，减少限定条件",
	"确认相关剧本已经导入知识库",
}

// FormatNoResultsMessage is returned when retrieval produced no context.
func FormatNoResultsMessage(query string) string {
	var b strings.Builder
	b.WriteString(noResultsApology)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "您的问题：%s\n\n", query)
	b.WriteString("建议：\n")
	for i, s := range noResultsSuggestions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	return strings.TrimRight(b.String(), "\n")
}

var outOfScopePatterns = []*regexp.Regexp{
	regexp.MustCompile(`没有找到(相关|有关)?(的)?(信息|内容|资料)`),
	regexp.MustCompile(`(资料|上下文|信息|内容)(中)?(不足|没有提及|未提及|并未提及|无法回答)`),
	regexp.MustCompile(`无法(根据|从)(提供的)?(资料|上下文|信息|内容)`),
	regexp.MustCompile(`(我)?(不知道|无法确定|无法回答)`),
	regexp.MustCompile(`知识库(中)?(没有|不包含|未包含)`),
	regexp.MustCompile(`(?i)\b(i don't know|i do not know|not enough information|insufficient (context|information))\b`),
	regexp.MustCompile(`(?i)\b(the (provided )?context does not|no relevant information|cannot be answered)\b`),
}

// IsOutOfScopeAnswer reports whether generated text declares the knowledge base cannot
// answer. Blank text counts as out of scope.
func IsOutOfScopeAnswer(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return true
	}
	for _, p := range outOfScopePatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
