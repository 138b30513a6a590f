// Package compose builds the input of a generation request from the page:
// the item being commented on, as Markdown, inside a prompt template.
package compose

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/chamdiem/dom"
	"github.com/hazyhaar/chamdiem/messaging"
)

// Placeholder marks where the page content goes in a template.
const Placeholder = "{{content}}"

// DefaultTemplate is used when the user configured no system prompt.
const DefaultTemplate = `Bạn là giáo viên đang chấm bài trên hệ thống học trực tuyến.
Hãy viết một nhận xét ngắn (1 đến 3 câu), lịch sự, bằng tiếng Việt, cho bài làm dưới đây.
Chỉ trả về nội dung nhận xét, không thêm tiêu đề hay định dạng.

` + Placeholder

// DefaultBudget is the content size limit in characters.
const DefaultBudget = 6000

// QuestionBudget caps the lesson text of a generation input, in characters.
const QuestionBudget = 4000

// Instruction closes every generation input that carries content.
const Instruction = "Trả lời đầy đủ, ít nhất 2-3 câu, nếu cần thì đưa ví dụ ngắn."

const truncMark = "\n[...]"

// minContext is the text length under which the container is widened to
// its parent.
const minContext = 80

// Composer turns page fragments into generation input.
type Composer struct {
	budget int
	conv   *converter.Converter
	policy *bluemonday.Policy
	strict *bluemonday.Policy
}

// New creates a Composer. budget <= 0 selects DefaultBudget.
func New(budget int) *Composer {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Composer{
		budget: budget,
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		policy: bluemonday.UGCPolicy(),
		strict: bluemonday.StrictPolicy(),
	}
}

// Markdown converts an HTML fragment, dropping form controls and scripts,
// and truncates the result to the budget.
func (c *Composer) Markdown(fragment string) string {
	clean := c.policy.Sanitize(fragment)
	md, err := c.conv.ConvertString(clean)
	if err != nil || strings.TrimSpace(md) == "" {
		md = html.UnescapeString(c.strict.Sanitize(fragment))
	}
	return Truncate(strings.TrimSpace(md), c.budget)
}

// Context extracts the content around a comment root. Containers with
// little text are widened up to three ancestors.
func (c *Composer) Context(n dom.Node) string {
	if n == nil {
		return ""
	}
	for i := 0; i < 3; i++ {
		if utf8.RuneCountInString(strings.TrimSpace(n.Text())) >= minContext {
			break
		}
		p := n.Parent()
		if p == nil || p.Tag() == "html" {
			break
		}
		n = p
	}
	return c.Markdown(n.HTML())
}

// Question reads the lesson text: for each selector in order, the first
// element it matches, until one has text. Whitespace is collapsed and the
// result cut to QuestionBudget characters.
func (c *Composer) Question(doc dom.Document, selectors []string) string {
	if doc == nil {
		return ""
	}
	for _, sel := range selectors {
		nodes := doc.QueryAll(sel)
		if len(nodes) == 0 {
			continue
		}
		text := strings.Join(strings.Fields(nodes[0].Text()), " ")
		if text == "" {
			continue
		}
		if r := []rune(text); len(r) > QuestionBudget {
			text = string(r[:QuestionBudget])
		}
		return text
	}
	return ""
}

// Input is the user content of a request for the given mode.
func (c *Composer) Input(mode, content string) string {
	task := "Nhận xét bài làm."
	if mode == messaging.ModeReply {
		task = "Trả lời bình luận."
	}
	if strings.TrimSpace(content) == "" {
		return task
	}
	return task + "\n\n" + content + "\n\nYêu cầu: " + Instruction
}

// Apply places content into template. A template without the placeholder
// gets the content appended; an empty template selects DefaultTemplate.
func Apply(template, content string) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultTemplate
	}
	if strings.Contains(template, Placeholder) {
		return strings.ReplaceAll(template, Placeholder, content)
	}
	return strings.TrimRight(template, "\n") + "\n\n" + content
}

// Truncate cuts s to at most budget runes, marking the cut.
func Truncate(s string, budget int) string {
	if budget <= 0 || utf8.RuneCountInString(s) <= budget {
		return s
	}
	mark := truncMark
	keep := budget - utf8.RuneCountInString(mark)
	if keep <= 0 {
		keep, mark = budget, ""
	}
	i, n := 0, 0
	for i < len(s) && n < keep {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
		n++
	}
	return s[:i] + mark
}
