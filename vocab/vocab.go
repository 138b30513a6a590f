// Package vocab holds the selector and hint vocabularies that tie the
// detection engines to the host page's markup.
//
// Every list is ordered. Engines try entries first to last and the first
// entry that yields a usable match wins, so reordering a list changes
// behaviour even when the set of entries stays the same.
package vocab

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Vocabulary is the full set of lists the engines consult.
type Vocabulary struct {
	// Grading side.
	GradingRoots []string `yaml:"grading_roots"`
	ModalRoots   []string `yaml:"modal_roots"`
	TableRoots   []string `yaml:"table_roots"`
	RatingGroups []string `yaml:"rating_groups"`
	StarItems    []string `yaml:"star_items"`
	GradeHints   []string `yaml:"grade_hints"`

	// Comment side.
	CommentRoots    []string `yaml:"comment_roots"`
	CommentFields   []string `yaml:"comment_fields"`
	EditableFields  []string `yaml:"editable_fields"`
	AmbiguousFields []string `yaml:"ambiguous_fields"`
	CommentHints    []string `yaml:"comment_hints"`
	Frames          []string `yaml:"frames"`

	// QuestionRoots locate the lesson text a generated comment answers.
	QuestionRoots []string `yaml:"question_roots"`

	// Buttons.
	Clickables   []string `yaml:"clickables"`
	SendButtons  []string `yaml:"send_buttons"`
	SendHints    []string `yaml:"send_hints"`
	ReplyButtons []string `yaml:"reply_buttons"`
	ReplyHints   []string `yaml:"reply_hints"`
}

// Default returns the built-in vocabulary. Hints are written in their
// natural form; matching normalises both sides.
func Default() *Vocabulary {
	return &Vocabulary{
		GradingRoots: []string{
			`[data-edu-grading-root]`,
			`#entry-lesson-tabs`,
			`.entry-lesson-tabs`,
			`#grade-table`,
			`.grade-table`,
			`#grading-table`,
			`.grading-table`,
			`[data-role="grading"]`,
			`.grading-panel`,
			`.grading`,
			`.grade-form`,
		},
		ModalRoots: []string{
			`div[role="dialog"]`,
			`.MuiDialog-root`,
			`.ant-modal`,
			`.modal`,
		},
		TableRoots: []string{
			`.MuiTableContainer-root, table`,
			`[role="table"]`,
			`.ant-table`,
		},
		RatingGroups: []string{
			`.MuiRating-root`,
			`[role="radiogroup"]`,
			`.rating`,
			`.rating-group`,
			`.star-rating`,
			`.stars`,
			`.ant-rate`,
		},
		// One combined entry: stars are taken in document order.
		StarItems: []string{
			`.MuiRating-icon, span, svg`,
			`.ant-rate-star`,
			`[role="radio"]`,
		},
		GradeHints: []string{"grade", "cham", "chấm"},

		CommentRoots: []string{
			`.comment-form`,
			`.comment-section`,
			`.comment-editor`,
			`#comments-container`,
			`#simple-tabpanel1`,
			`[data-role="comment"]`,
			`.comment-box`,
		},
		CommentFields: []string{
			`.w-md-editor-text-input`,
			`.comment-editor textarea`,
			`.comment-editor [contenteditable="true"]`,
			`.ql-editor`,
			`.ProseMirror`,
			`.note-editable`,
			`textarea.comment`,
			`textarea[name*="comment"]`,
		},
		EditableFields: []string{
			`[contenteditable="true"]`,
			`[role="textbox"]`,
			`[contenteditable=""]`,
			`[contenteditable="plaintext-only"]`,
		},
		AmbiguousFields: []string{
			`textarea`,
			`input[type="text"]`,
			`input:not([type])`,
		},
		CommentHints: []string{
			"comment", "nhan xet", "danh gia", "feedback", "remark", "note", "ghi chu",
			"bình luận", "góp ý",
		},
		Frames: []string{`iframe`, `frame`},

		QuestionRoots: []string{
			`#main-content-lesson .styled`,
			`#main-content-lesson`,
			`.wrap-entry-lesson-content .styled`,
			`.entry-lesson-content .styled`,
		},

		Clickables: []string{
			`button`,
			`[role="button"]`,
			`input[type="submit"]`,
			`input[type="button"]`,
			`a`,
		},
		SendButtons: []string{
			`.button-send-comment`,
			`[data-action="send-comment"]`,
			`[data-testid="send-comment"]`,
			`button[type="submit"]`,
			`[data-action="send"]`,
			`.btn-send`,
			`.send-button`,
			`.comment-submit`,
		},
		SendHints: []string{"send", "gui", "gửi", "post", "submit"},
		ReplyButtons: []string{
			`[data-action="reply"]`,
			`[data-reply]`,
			`.reply`,
			`.reply-button`,
			`.btn-reply`,
			`.comment-reply`,
			`.answer-button`,
		},
		ReplyHints: []string{"tra loi", "reply", "answer", "phan hoi"},
	}
}

// Load reads a YAML file and overlays it on the defaults. A list present in
// the file replaces the default list as a whole.
func Load(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse is Load over raw YAML.
func Parse(data []byte) (*Vocabulary, error) {
	var over Vocabulary
	if err := yaml.Unmarshal(data, &over); err != nil {
		return nil, fmt.Errorf("vocab: parse: %w", err)
	}
	v := Default()
	v.overlay(&over)
	return v, nil
}

func (v *Vocabulary) overlay(o *Vocabulary) {
	pick := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = src
		}
	}
	pick(&v.GradingRoots, o.GradingRoots)
	pick(&v.ModalRoots, o.ModalRoots)
	pick(&v.TableRoots, o.TableRoots)
	pick(&v.RatingGroups, o.RatingGroups)
	pick(&v.StarItems, o.StarItems)
	pick(&v.GradeHints, o.GradeHints)
	pick(&v.CommentRoots, o.CommentRoots)
	pick(&v.CommentFields, o.CommentFields)
	pick(&v.EditableFields, o.EditableFields)
	pick(&v.AmbiguousFields, o.AmbiguousFields)
	pick(&v.CommentHints, o.CommentHints)
	pick(&v.Frames, o.Frames)
	pick(&v.QuestionRoots, o.QuestionRoots)
	pick(&v.Clickables, o.Clickables)
	pick(&v.SendButtons, o.SendButtons)
	pick(&v.SendHints, o.SendHints)
	pick(&v.ReplyButtons, o.ReplyButtons)
	pick(&v.ReplyHints, o.ReplyHints)
}
