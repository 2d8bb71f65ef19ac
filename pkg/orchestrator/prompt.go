package orchestrator

import "fmt"

const promptTemplate = `Generate a high-quality Python code block for:

Family: %s
Block Type: %s
Repository: %s

Requirements:
- Include comprehensive docstrings
- Add type hints
- Include error handling
- Add input validation
- Write production-ready code

Generate only the code, no explanations.`

// BuildPrompt renders the shared generation prompt sent to every provider.
func BuildPrompt(family, blockType, repo string) string {
	return fmt.Sprintf(promptTemplate, family, blockType, repo)
}
