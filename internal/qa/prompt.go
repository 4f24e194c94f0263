package qa

import "strings"

// systemPreamble is sent at the head of every message.
const systemPreamble = "You are an AI assistant providing answers based on uploaded documents."

// BuildMessage lays out the outbound chat message as "Role: content" lines:
// the system preamble, the user's query, then the retrieved context.
func BuildMessage(query, context string) string {
	var b strings.Builder
	b.WriteString("System: ")
	b.WriteString(systemPreamble)
	b.WriteString("\nUser: ")
	b.WriteString(query)
	b.WriteString("\nAssistant: Relevant information:\n")
	b.WriteString(context)
	return b.String()
}
