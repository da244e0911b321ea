package llm

import (
	"encoding/json"
	"strings"
)

// ExtractJSON returns the JSON value embedded in a model reply. Models
// in JSON mode usually answer with bare JSON, but some wrap it in a
// markdown fence or add a sentence around it.
//
// Objects win over arrays: prose like "Step [1]: {...}" yields the
// object. An array is returned when it is the only value or when the
// first object sits inside it. With no decodable value the trimmed
// input is returned unchanged.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:] // drop the language tag line
		}
		text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
	}
	if json.Valid([]byte(text)) {
		return text
	}

	objAt, obj := firstValue(text, '{')
	arrAt, arr := firstValue(text, '[')
	switch {
	case objAt < 0 && arrAt < 0:
		return text
	case objAt < 0:
		return arr
	case arrAt >= 0 && arrAt < objAt && objAt < arrAt+len(arr):
		return arr
	default:
		return obj
	}
}

// firstValue finds the first position of open at which a complete JSON
// value decodes, and returns that value's raw text.
func firstValue(text string, open byte) (int, string) {
	for i := 0; i < len(text); i++ {
		j := strings.IndexByte(text[i:], open)
		if j < 0 {
			break
		}
		i += j
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&raw); err == nil {
			return i, string(raw)
		}
	}
	return -1, ""
}
