package granite

import "strings"

const fence = "```"

// ExtractCode returns the code portion of generated text. It is lossy and
// only understands triple-backtick fences:
//
//   - no fence: the whole text, trimmed
//   - text opening with a fence: the body of that first block, with the info
//     string ("java", "kotlin", ...) dropped; an unterminated block runs to
//     the end of the text
//   - fence after content: everything before the first fence, the fence being
//     read as the close of a block the prompt already opened
//
// Anything after the first block is discarded. Nested fences are not
// supported.
func ExtractCode(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, fence) {
		if i := strings.Index(trimmed, fence); i >= 0 {
			return strings.TrimSpace(trimmed[:i])
		}
		return trimmed
	}

	body := trimmed[len(fence):]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	if i := strings.Index(body, fence); i >= 0 {
		body = body[:i]
	}
	return strings.TrimSpace(body)
}
