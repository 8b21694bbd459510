package evaluation

import (
	"fmt"
	"strings"
	"unicode"
)

// DescribeImagePrompt is sent alongside each image.
const DescribeImagePrompt = "Describe this image in 1-2 sentences. Focus on the main subject and any visible text. Do not speculate."

const textPromptTemplate = `You are filtering a social media feed for a user.
The user only wants to see posts that match this description:
%q

Post:
"""
%s
"""

Does the post match the description? Respond with strict JSON only, no explanation: {"show": true} if it matches, {"show": false} if it does not.`

// TextPrompt builds the evaluation prompt for one candidate text.
func TextPrompt(criteria, candidate string) string {
	return fmt.Sprintf(textPromptTemplate, strings.TrimSpace(criteria), candidate)
}

// ParseShowDecision reads the boolean following the last "show" key of a
// model response. Conversational text around the JSON is tolerated. ok is
// false when no unambiguous boolean follows the key, including when it runs
// into a word character ("truex", "false_value").
func ParseShowDecision(response string) (show bool, ok bool) {
	const key = `"show"`
	idx := strings.LastIndex(response, key)
	if idx < 0 {
		return false, false
	}

	rest := strings.TrimLeftFunc(response[idx+len(key):], unicode.IsSpace)
	if !strings.HasPrefix(rest, ":") {
		return false, false
	}
	rest = strings.TrimLeftFunc(rest[1:], unicode.IsSpace)

	for _, candidate := range []struct {
		token string
		value bool
	}{{"true", true}, {"false", false}} {
		if !strings.HasPrefix(rest, candidate.token) {
			continue
		}
		after := rest[len(candidate.token):]
		if after != "" && isWordByte(after[0]) {
			return false, false
		}
		return candidate.value, true
	}
	return false, false
}

func isWordByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}
