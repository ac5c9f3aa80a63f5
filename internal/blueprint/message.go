package blueprint

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a design conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CountRole returns how many messages were authored by role.
func CountRole(messages []Message, role Role) int {
	n := 0
	for _, m := range messages {
		if m.Role == role {
			n++
		}
	}
	return n
}

// LatestContent returns the content of the most recent message authored by
// role, or "" when there is none.
func LatestContent(messages []Message, role Role) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == role {
			return messages[i].Content
		}
	}
	return ""
}
