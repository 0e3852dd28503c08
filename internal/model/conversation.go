package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type Role string

const (
	RoleUser       Role = "user"
	RoleModel      Role = "model"
	RoleToolCall   Role = "tool-call"
	RoleToolResult Role = "tool-result"
)

// PromptPlaceholder is the user turn sent to nudge a model that answered a
// tool result with an empty candidate list.
const PromptPlaceholder = "??"

// Turn is one role-tagged entry of a conversation. Exactly one of Text,
// Call and Result is set, matching Role.
type Turn struct {
	Role   Role            `json:"role"`
	Text   string          `json:"text,omitempty"`
	Call   *ToolInvocation `json:"call,omitempty"`
	Result *ToolResult     `json:"result,omitempty"`
	At     time.Time       `json:"at"`
}

type ToolInvocation struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"args"`
}

type ToolResult struct {
	CallID  string `json:"call_id,omitempty"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Image   string `json:"image,omitempty"`
}

// Completion is one model answer: a final text, or a requested tool.
type Completion struct {
	Text       string
	Invocation *ToolInvocation
	// Prompted is set when the placeholder user turn was sent to obtain this answer.
	Prompted bool
}

func UserTurn(text string, at time.Time) Turn {
	return Turn{Role: RoleUser, Text: text, At: at}
}

func ModelTurn(text string, at time.Time) Turn {
	return Turn{Role: RoleModel, Text: text, At: at}
}

func ToolCallTurn(call ToolInvocation, at time.Time) Turn {
	return Turn{Role: RoleToolCall, Call: &call, At: at}
}

func ToolResultTurn(result ToolResult, at time.Time) Turn {
	return Turn{Role: RoleToolResult, Result: &result, At: at}
}

// IsPlaceholder reports whether t is the nudge turn.
func (t Turn) IsPlaceholder() bool {
	return t.Role == RoleUser && t.Text == PromptPlaceholder
}

// AwaitingToolAnswer reports whether the latest turn means the model owes an
// answer to a tool result.
func AwaitingToolAnswer(turns []Turn) bool {
	if len(turns) == 0 {
		return false
	}
	last := turns[len(turns)-1]
	return last.Role == RoleToolResult || last.IsPlaceholder()
}

// PlainLine renders t for transcript-style plain output.
func (t Turn) PlainLine() string {
	switch t.Role {
	case RoleToolCall:
		if t.Call == nil {
			return "call: <missing>"
		}
		args, _ := json.Marshal(t.Call.Arguments)
		return fmt.Sprintf("call: %s(%s)", t.Call.Name, args)
	case RoleToolResult:
		if t.Result == nil {
			return "result: <missing>"
		}
		return fmt.Sprintf("result: %s -> %s", t.Result.Name, truncate(t.Result.Content, 120))
	default:
		return fmt.Sprintf("%s: %s", t.Role, t.Text)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
