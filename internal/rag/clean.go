package rag

import (
	"regexp"
	"strings"
)

var (
	multiSpaceRe = regexp.MustCompile(`\s+`)
	// 保留字母数字、空白和常见标点，其余符号视为提取噪音
	junkCharRe = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?\-:;()"']`)
)

// Clean 清洗提取出的原始文本
// 先去掉提取噪音字符，再折叠连续空白，最后去掉首尾空白
func Clean(text string) string {
	text = junkCharRe.ReplaceAllString(text, "")
	text = multiSpaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
