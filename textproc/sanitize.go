package textproc

import "regexp"

var (
	boldPattern    = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicPattern  = regexp.MustCompile(`\*(.*?)\*`)
	backtickRegex  = regexp.MustCompile("`")
	headingPattern = regexp.MustCompile(`#+ `)
	dashPattern    = regexp.MustCompile(`- `)
)

// Sanitize 去除文本中的 Markdown 展示标记：
// **粗体**、*斜体*（保留内部文本）、行内代码反引号、标题 # 以及列表短横线。
// 未闭合的标记保持原样。清洗会重复执行直到结果不再变化，
// 每一轮只删除字符，因此循环必然终止。
func Sanitize(text string) string {
	for {
		next := sanitizePass(text)
		if next == text {
			return next
		}
		text = next
	}
}

func sanitizePass(text string) string {
	text = boldPattern.ReplaceAllString(text, "$1")
	text = italicPattern.ReplaceAllString(text, "$1")
	text = backtickRegex.ReplaceAllString(text, "")
	text = headingPattern.ReplaceAllString(text, "")
	text = dashPattern.ReplaceAllString(text, "")
	return text
}
