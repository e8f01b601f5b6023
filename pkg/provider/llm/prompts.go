package llm

import "strings"

// VoiceSystemPrompt is the base instruction for every conversational turn.
// It keeps replies short enough to speak.
const VoiceSystemPrompt = "You are a helpful voice assistant. Keep responses concise and natural for voice conversation. Respond in 1-3 sentences unless more detail is requested."

// SearchSystemPrompt builds the system message for a search-grounded turn.
// The formatted results are embedded so the model can answer from them, and
// when a citation phrase is supplied the model is told to work it into the
// reply out loud.
func SearchSystemPrompt(searchContext, citation string) string {
	var b strings.Builder
	b.WriteString(VoiceSystemPrompt)
	if searchContext != "" {
		b.WriteString("\n\nUse the following web search results to answer the user's question:\n\n")
		b.WriteString(searchContext)
	}
	if citation != "" {
		b.WriteString("\nMention your sources naturally, for example: \"")
		b.WriteString(citation)
		b.WriteString("\".")
	}
	return b.String()
}
