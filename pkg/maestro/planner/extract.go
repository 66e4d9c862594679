package planner

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/nebuai/maestro/pkg/maestro/errors"
)

// Extraction strategies, in order of preference. Local models wrap their
// JSON in markdown fences, chatter, or thinking tags, so each strategy
// peels one kind of noise before handing the candidate to tryParse.
var (
	jsonFencePattern    = regexp.MustCompile("```json\\s*(\\{[\\s\\S]*?\\})\\s*```")
	genericFencePattern = regexp.MustCompile("```\\s*(\\{[\\s\\S]*?\\})\\s*```")
	controlCharPattern  = regexp.MustCompile(`[\x00-\x1f\x7f-\x9f]`)
)

// ExtractDocument pulls a workflow document out of a noisy model response.
// The returned string parses to a JSON object carrying both "nodes" and
// "links". Failure is a JSONParseError, which the retry loop treats as
// regenerable.
func ExtractDocument(text string) (string, error) {
	if m := jsonFencePattern.FindStringSubmatch(text); m != nil {
		if doc, ok := tryParse(m[1]); ok {
			return doc, nil
		}
	}

	if m := genericFencePattern.FindStringSubmatch(text); m != nil {
		if doc, ok := tryParse(m[1]); ok {
			return doc, nil
		}
	}

	if candidate := balancedBraces(text); candidate != "" {
		if doc, ok := tryParse(candidate); ok {
			return doc, nil
		}
	}

	// Last resort: everything between the first '{' and the last '}'.
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start != -1 && end > start {
		if doc, ok := tryParse(text[start : end+1]); ok {
			return doc, nil
		}
	}

	return "", &errors.JSONParseError{
		Input:   text,
		Message: "aucun objet JSON avec nodes et links dans la réponse",
	}
}

// balancedBraces returns the first brace-balanced object in text, or "".
func balancedBraces(text string) string {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return ""
	}

	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// tryParse validates a JSON candidate, applying a control-character
// cleanup pass when the raw form does not parse. Returns the parseable
// string and whether it qualifies as a workflow document.
func tryParse(candidate string) (string, bool) {
	if isWorkflowObject(candidate) {
		return candidate, true
	}

	cleaned := controlCharPattern.ReplaceAllString(candidate, "")
	if isWorkflowObject(cleaned) {
		return cleaned, true
	}
	return "", false
}

// isWorkflowObject reports whether s parses to an object with nodes and
// links keys.
func isWorkflowObject(s string) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return false
	}
	_, hasNodes := obj["nodes"]
	_, hasLinks := obj["links"]
	return hasNodes && hasLinks
}
