package ollama

import "strings"

// renderPrompt joins the instruction and the evidence block into the final
// prompt text. The instruction already states how strictly the answer must
// stick to the evidence; this layer only does the mechanical assembly.
func renderPrompt(prompt, contextBlock string) string {
	prompt = strings.TrimSpace(prompt)
	contextBlock = strings.TrimSpace(contextBlock)
	if contextBlock == "" {
		return prompt
	}

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nEvidence:\n")
	b.WriteString(contextBlock)
	b.WriteString("\n\nAnswer using only the evidence above. Cite the source filename and page for every claim. If the evidence does not answer the question, say so.")
	return b.String()
}
