package ai

import "strings"

// BuildPrompt embeds text in the fixed summary instruction.
func BuildPrompt(text string) string {
	var sb strings.Builder

	sb.WriteString("You are an AI assistant for college students.\n")
	sb.WriteString("Summarize the email below into this exact bullet-point format:\n\n")

	sb.WriteString("📩 From: [Professor/Dept Name]\n")
	sb.WriteString("⚠️ Priority: [Low/Medium/High/Urgent]\n")
	sb.WriteString("⏰ Deadline: [Specific Date & Time or 'None mentioned']\n")
	sb.WriteString("🎭 Vibe Check: [Tone of the mail]\n")
	sb.WriteString("🎯 The Bottom Line: [What do they actually want in simple terms?]\n")
	sb.WriteString("📝 Summary: [2-line summary of the whole thing]\n\n")

	sb.WriteString("Keep it brief, use emojis and be relatable to a student.\n\n")

	sb.WriteString("Email: ")
	sb.WriteString(text)

	return sb.String()
}
