// Package tokenizer token计数协作方
package tokenizer

import (
	"golang.org/x/text/width"
)

// Counter token计数函数
// 引擎只依赖这个签名，具体分词器由调用方注入
type Counter func(text string) int

// Estimate 默认估算器
// 宽字符（CJK等）按1 token计，窄字符按平均4字符1 token估算
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	wide := 0
	narrow := 0
	for _, r := range text {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			wide++
		default:
			narrow++
		}
	}
	tokens := wide + (narrow+3)/4
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}
