package vocab

import "testing"

func TestParse_OverlayReplacesWholeList(t *testing.T) {
	v, err := Parse([]byte(`
grading_roots:
  - "#grader"
  - ".panel"
send_hints: ["nop bai"]
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(v.GradingRoots) != 2 || v.GradingRoots[0] != "#grader" || v.GradingRoots[1] != ".panel" {
		t.Errorf("GradingRoots: got %v", v.GradingRoots)
	}
	if len(v.SendHints) != 1 || v.SendHints[0] != "nop bai" {
		t.Errorf("SendHints: got %v", v.SendHints)
	}
	def := Default()
	if len(v.CommentFields) != len(def.CommentFields) {
		t.Errorf("CommentFields: got %d entries, want default %d", len(v.CommentFields), len(def.CommentFields))
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("grading_roots: {")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDefault_NoEmptyLists(t *testing.T) {
	v := Default()
	lists := map[string][]string{
		"GradingRoots": v.GradingRoots, "RatingGroups": v.RatingGroups,
		"StarItems": v.StarItems, "GradeHints": v.GradeHints,
		"CommentRoots": v.CommentRoots, "CommentFields": v.CommentFields,
		"EditableFields": v.EditableFields, "AmbiguousFields": v.AmbiguousFields,
		"CommentHints": v.CommentHints, "SendButtons": v.SendButtons,
		"SendHints": v.SendHints, "ReplyHints": v.ReplyHints,
		"Clickables": v.Clickables, "Frames": v.Frames,
		"QuestionRoots": v.QuestionRoots,
	}
	for name, l := range lists {
		if len(l) == 0 {
			t.Errorf("%s is empty", name)
		}
	}
}

func TestDefault_HostSelectorsLead(t *testing.T) {
	v := Default()
	cases := []struct {
		name string
		got  []string
		want []string
	}{
		{"GradingRoots", v.GradingRoots, []string{`[data-edu-grading-root]`, `#entry-lesson-tabs`, `.entry-lesson-tabs`, `#grade-table`, `.grade-table`, `#grading-table`, `.grading-table`}},
		{"RatingGroups", v.RatingGroups, []string{`.MuiRating-root`, `[role="radiogroup"]`, `.rating`, `.rating-group`, `.star-rating`, `.stars`}},
		{"CommentRoots", v.CommentRoots, []string{`.comment-form`, `.comment-section`, `.comment-editor`, `#comments-container`, `#simple-tabpanel1`}},
		{"CommentFields", v.CommentFields, []string{`.w-md-editor-text-input`, `.comment-editor textarea`}},
		{"SendButtons", v.SendButtons, []string{`.button-send-comment`, `[data-action="send-comment"]`, `[data-testid="send-comment"]`, `button[type="submit"]`}},
		{"QuestionRoots", v.QuestionRoots, []string{`#main-content-lesson .styled`, `#main-content-lesson`}},
	}
	for _, tc := range cases {
		if len(tc.got) < len(tc.want) {
			t.Errorf("%s: got %v", tc.name, tc.got)
			continue
		}
		for i, w := range tc.want {
			if tc.got[i] != w {
				t.Errorf("%s[%d] = %s, want %s", tc.name, i, tc.got[i], w)
			}
		}
	}
}

func TestDefault_RootsAreNotGroups(t *testing.T) {
	v := Default()
	groups := make(map[string]bool)
	for _, g := range v.RatingGroups {
		groups[g] = true
	}
	for _, r := range v.GradingRoots {
		if groups[r] {
			t.Errorf("grading root %s is also a rating group selector", r)
		}
	}
}
