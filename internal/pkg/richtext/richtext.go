package richtext

import (
	"bytes"
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"github.com/qs3c/inkpress/internal/model"
)

var (
	strict = bluemonday.StrictPolicy()
	md     = goldmark.New()
)

// 块级节点之间插入换行
var blockNodes = map[string]bool{
	"paragraph":   true,
	"heading":     true,
	"blockquote":  true,
	"codeBlock":   true,
	"listItem":    true,
	"bulletList":  true,
	"orderedList": true,
	"hardBreak":   true,
}

// PlainText 将富文本文档展开为纯文本，文本节点中的 HTML 会被剥离
func PlainText(doc model.JSONContent) string {
	var b strings.Builder
	walk(&b, doc)
	return collapse(b.String())
}

func walk(b *strings.Builder, node model.JSONContent) {
	switch node.Type {
	case "text", "":
		if node.Text != "" {
			b.WriteString(StripHTML(node.Text))
		}
	case "mention":
		if label, ok := node.Attrs["label"].(string); ok && label != "" {
			b.WriteString("@" + label)
		}
	case "image":
		if alt, ok := node.Attrs["alt"].(string); ok && alt != "" {
			b.WriteString(alt)
		}
	}

	for _, child := range node.Content {
		walk(b, child)
	}

	if blockNodes[node.Type] {
		b.WriteByte('\n')
	}
}

// StripHTML 去除 HTML 标签并还原实体
func StripHTML(s string) string {
	return html.UnescapeString(strict.Sanitize(s))
}

// MarkdownToText 渲染 Markdown 后提取纯文本，用于索引和摘要
func MarkdownToText(source string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return collapse(source)
	}
	// 块级标签替换为空格，避免相邻段落粘连
	rendered := strings.NewReplacer("</p>", " </p>", "</h1>", " </h1>", "</h2>", " </h2>",
		"</h3>", " </h3>", "</li>", " </li>", "<br>", " ", "<br />", " ").Replace(buf.String())
	return collapse(StripHTML(rendered))
}

// Truncate 按字符截断，超出时追加省略号
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimRightFunc(string(runes[:limit]), unicode.IsSpace) + "..."
}

// collapse 合并连续空白
func collapse(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
