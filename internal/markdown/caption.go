package markdown

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// captionPattern 以非贪婪方式匹配 ":::caption" 与 ":::" 之间的多行内容。
var captionPattern = regexp.MustCompile(`(?s):::caption\s*\n(.*?)\n:::`)

// captionProcessor 在主解析之前把 caption 块替换为 HTML，
// 内部只做行内级渲染（强调、删除线、自动链接）。
type captionProcessor struct {
	inline goldmark.Markdown
}

func newCaptionProcessor() *captionProcessor {
	return &captionProcessor{
		inline: goldmark.New(
			goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
	}
}

// Process 返回替换了所有 caption 块的文本，块外内容保持不变。
// 未闭合的 caption 块不会被匹配，原样交给主解析器。
func (p *captionProcessor) Process(source string) string {
	if !strings.Contains(source, ":::caption") {
		return source
	}
	return captionPattern.ReplaceAllStringFunc(source, func(match string) string {
		groups := captionPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		return `<p class="caption-text">` + p.renderInline(strings.TrimSpace(groups[1])) + `</p>`
	})
}

func (p *captionProcessor) renderInline(text string) string {
	var buf bytes.Buffer
	if err := p.inline.Convert([]byte(text), &buf); err != nil {
		return text
	}
	rendered := strings.TrimSpace(buf.String())
	if strings.HasPrefix(rendered, "<p>") && strings.HasSuffix(rendered, "</p>") {
		rendered = rendered[len("<p>") : len(rendered)-len("</p>")]
	}
	return rendered
}
