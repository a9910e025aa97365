package orchestrator

import "regexp"

// extractPatterns maps logical field names to the regexes tried against a
// user message, in order. The first capturing match per field wins.
var extractPatterns = []struct {
	field    string
	patterns []*regexp.Regexp
}{
	{"name", []*regexp.Regexp{
		regexp.MustCompile(`姓名[：:]\s*([^\s,，。]+)`),
		regexp.MustCompile(`我叫([^\s,，。]+)`),
		regexp.MustCompile(`名字是([^\s,，。]+)`),
	}},
	{"phone", []*regexp.Regexp{
		regexp.MustCompile(`(?:电话|手机|联系电话|手机号)[：:]\s*(\d{11})`),
		regexp.MustCompile(`(1\d{10})`),
	}},
	{"email", []*regexp.Regexp{
		regexp.MustCompile(`邮箱[：:]\s*([\w.+-]+@[\w-]+\.[\w.-]+)`),
		regexp.MustCompile(`([\w.+-]+@[\w-]+\.[\w.-]+)`),
	}},
	{"address", []*regexp.Regexp{
		regexp.MustCompile(`(?:地址|住址|联系地址)[：:]\s*([^\n,，。]+)`),
	}},
	{"amount", []*regexp.Regexp{
		regexp.MustCompile(`金额[：:]\s*(\d+(?:\.\d{1,2})?)`),
		regexp.MustCompile(`(\d+(?:\.\d{1,2})?)\s*元`),
	}},
}

var urlPattern = regexp.MustCompile(`https?://[^\s，。"'<>]+`)

// ExtractURL returns the first http(s) URL in the message, if any.
func ExtractURL(message string) string {
	return urlPattern.FindString(message)
}

// ExtractStructured pulls labeled data out of free text using fixed
// patterns. Deterministic: same message, same result.
func ExtractStructured(message string) map[string]string {
	data := make(map[string]string)
	for _, cat := range extractPatterns {
		for _, re := range cat.patterns {
			if m := re.FindStringSubmatch(message); m != nil {
				data[cat.field] = m[1]
				break
			}
		}
	}
	return data
}
