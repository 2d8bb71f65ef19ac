package gate

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Heuristic component weights. They sum to 1.
const (
	weightLength     = 0.20
	weightComplexity = 0.30
	weightNaming     = 0.20
	weightStructure  = 0.30
)

// Heuristic component names, as reported in the components detail.
const (
	ComponentLength     = "code_length"
	ComponentComplexity = "complexity"
	ComponentNaming     = "naming"
	ComponentStructure  = "structure"
)

// HeuristicScore rates code without a remote reviewer. It returns the
// weighted score and the individual component scores.
func HeuristicScore(code string) (float64, map[string]float64) {
	components := map[string]float64{
		ComponentLength:     scoreLength(code),
		ComponentComplexity: scoreComplexity(code),
		ComponentNaming:     scoreNaming(code),
		ComponentStructure:  scoreStructure(code),
	}
	score := components[ComponentLength]*weightLength +
		components[ComponentComplexity]*weightComplexity +
		components[ComponentNaming]*weightNaming +
		components[ComponentStructure]*weightStructure
	return clampScore(score), components
}

func scoreLength(code string) float64 {
	lines := 0
	for _, line := range strings.Split(code, "\n") {
		if strings.TrimSpace(line) != "" {
			lines++
		}
	}
	switch {
	case lines < 10:
		return 0.5
	case lines <= 100:
		return 1.0
	default:
		return 0.7
	}
}

func scoreComplexity(code string) float64 {
	decisions := strings.Count(code, "if ") +
		strings.Count(code, "for ") +
		strings.Count(code, "while ") +
		strings.Count(code, "elif ")
	switch {
	case decisions <= 10:
		return 1.0
	case decisions <= 20:
		return 0.7
	default:
		return 0.5
	}
}

func scoreNaming(code string) float64 {
	score := 0.5
	for _, word := range strings.Fields(code) {
		if utf8.RuneCountInString(word) > 5 {
			score += 0.25
			break
		}
	}
	if isSnakeCase(code) || strings.Contains(code, "def ") {
		score += 0.25
	}
	return min(score, 1.0)
}

// isSnakeCase reports whether code uses underscores and no uppercase
// letters, ignoring the literal word UPPER.
func isSnakeCase(code string) bool {
	if !strings.Contains(code, "_") {
		return false
	}
	for _, r := range strings.ReplaceAll(code, "UPPER", "") {
		if unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

func scoreStructure(code string) float64 {
	score := 0.0
	if strings.Contains(code, "def ") {
		score += 0.3
	}
	if strings.Contains(code, "class ") {
		score += 0.2
	}
	if strings.Contains(code, "return ") {
		score += 0.2
	}
	if strings.Contains(code, "\n\n") {
		score += 0.15
	}
	if hasDocstring(code) {
		score += 0.15
	}
	return min(score, 1.0)
}
