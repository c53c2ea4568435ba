// Package markdown 负责把文章源文转换为 HTML：caption 预处理、goldmark 解析、
// chroma 代码高亮以及带说明文字的图片。
package markdown

import (
	"bytes"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// DefaultStyle 为代码高亮使用的固定主题。
const DefaultStyle = "dracula"

// Mode 区分 Markdown 文章与直接存储 HTML 的文章。
type Mode int

const (
	ModeMarkdown Mode = iota
	ModeRawHTML
)

// ModeFor 根据文章的原始 HTML 标记返回渲染模式。
func ModeFor(rawHTML bool) Mode {
	if rawHTML {
		return ModeRawHTML
	}
	return ModeMarkdown
}

// Renderer 构造一次后只读共享，可被并发请求同时使用。
type Renderer struct {
	engine   goldmark.Markdown
	captions *captionProcessor
	blocks   *blockRenderer
}

// Option 调整 Renderer 的构造参数。
type Option func(*rendererOptions)

type rendererOptions struct {
	style string
}

// WithStyle 指定 chroma 主题名称，未知名称回退到 chroma 默认主题。
func WithStyle(name string) Option {
	return func(o *rendererOptions) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			o.style = trimmed
		}
	}
}

// New 创建 Renderer。
func New(opts ...Option) *Renderer {
	options := rendererOptions{style: DefaultStyle}
	for _, opt := range opts {
		opt(&options)
	}

	blocks := newBlockRenderer(options.style)
	engine := goldmark.New(
		goldmark.WithExtensions(extension.Strikethrough, extension.Linkify, extension.Table),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
			html.WithHardWraps(),
			html.WithXHTML(),
			renderer.WithNodeRenderers(util.Prioritized(blocks, 100)),
		),
	)

	return &Renderer{
		engine:   engine,
		captions: newCaptionProcessor(),
		blocks:   blocks,
	}
}

// Render 把文章源文转换为 HTML。原始 HTML 模式下原样返回。
func (r *Renderer) Render(text string, mode Mode) (string, error) {
	if mode == ModeRawHTML {
		return text, nil
	}

	prepared := r.captions.Process(text)

	var buf bytes.Buffer
	if err := r.engine.Convert([]byte(prepared), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteStyles 输出当前主题对应的 CSS，代码块使用 class 而非内联样式。
func (r *Renderer) WriteStyles(w io.Writer) error {
	return r.blocks.formatter.WriteCSS(w, r.blocks.style)
}

// blockRenderer 覆盖代码块与图片的默认渲染。
type blockRenderer struct {
	style     *chroma.Style
	formatter *chromahtml.Formatter
}

func newBlockRenderer(styleName string) *blockRenderer {
	style := styles.Get(styleName)
	if style == nil {
		style = styles.Fallback
	}
	return &blockRenderer{
		style:     style,
		formatter: chromahtml.New(chromahtml.WithClasses(true)),
	}
}

// RegisterFuncs 实现 renderer.NodeRenderer。
func (r *blockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderCodeBlock)
	reg.Register(ast.KindCodeBlock, r.renderCodeBlock)
	reg.Register(ast.KindImage, r.renderImage)
}

func (r *blockRenderer) renderCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	language := ""
	if fenced, ok := node.(*ast.FencedCodeBlock); ok {
		language = string(fenced.Language(source))
	}

	var code strings.Builder
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		code.Write(line.Value(source))
	}

	if err := r.highlight(w, code.String(), language); err != nil {
		return ast.WalkStop, err
	}
	return ast.WalkSkipChildren, nil
}

// highlight 按语言名称选择词法分析器，缺失或未知时退回纯文本。
func (r *blockRenderer) highlight(w util.BufWriter, code, language string) error {
	lexer := lookupLexer(language)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		iterator, err = lexers.Fallback.Tokenise(nil, code)
		if err != nil {
			return err
		}
	}

	if _, err := w.WriteString(`<div class="highlight">`); err != nil {
		return err
	}
	if err := r.formatter.Format(w, r.style, iterator); err != nil {
		return err
	}
	_, err = w.WriteString("</div>\n")
	return err
}

func lookupLexer(language string) chroma.Lexer {
	language = strings.TrimSpace(language)
	if language == "" {
		return lexers.Fallback
	}
	lexer := lexers.Get(language)
	if lexer == nil {
		return lexers.Fallback
	}
	return chroma.Coalesce(lexer)
}

// renderImage 输出 <figure>，title 被用作尺寸样式类名（img-<title>），alt 同时作为图片说明。
func (r *blockRenderer) renderImage(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	image := node.(*ast.Image)

	alt := util.EscapeHTML(plainText(image, source))
	src := util.EscapeHTML(image.Destination)

	_, _ = w.WriteString(`<figure><img src="`)
	_, _ = w.Write(src)
	_, _ = w.WriteString(`" alt="`)
	_, _ = w.Write(alt)
	_ = w.WriteByte('"')
	if len(image.Title) > 0 {
		_, _ = w.WriteString(` class="img-`)
		_, _ = w.Write(util.EscapeHTML(image.Title))
		_ = w.WriteByte('"')
	}
	// 与 WithXHTML 输出的 <br /> 等保持一致
	_, _ = w.WriteString(" />")
	if len(alt) > 0 {
		_, _ = w.WriteString("<figcaption>")
		_, _ = w.Write(alt)
		_, _ = w.WriteString("</figcaption>")
	}
	_, _ = w.WriteString("</figure>")

	return ast.WalkSkipChildren, nil
}

// plainText 收集节点下的纯文本，用于图片 alt。
func plainText(node ast.Node, source []byte) []byte {
	var buf bytes.Buffer
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch n := child.(type) {
		case *ast.Text:
			buf.Write(n.Segment.Value(source))
			if n.SoftLineBreak() || n.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(n.Value)
		default:
			buf.Write(plainText(n, source))
		}
	}
	return bytes.TrimSpace(buf.Bytes())
}
