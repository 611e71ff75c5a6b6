package command

import "strings"

// SplitTokens splits a command string into tokens, honoring single and
// double quotes and backslash escapes. Unterminated quotes consume the
// rest of the string rather than erroring; classification must never
// fail on malformed input.
func SplitTokens(s string) []string {
	var tokens []string
	var cur strings.Builder
	inToken := false
	var quote byte

	flush := func() {
		if inToken {
			tokens = append(tokens, cur.String())
			cur.Reset()
			inToken = false
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				cur.WriteByte(c)
			}
		case c == '\'' || c == '"':
			quote = c
			inToken = true
		case c == '\\' && i+1 < len(s):
			i++
			cur.WriteByte(s[i])
			inToken = true
		case c == ' ' || c == '\t' || c == '\n':
			flush()
		default:
			cur.WriteByte(c)
			inToken = true
		}
	}
	flush()
	return tokens
}
