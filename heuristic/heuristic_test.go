package heuristic

import (
	"testing"

	"github.com/hazyhaar/chamdiem/dom"
	"github.com/hazyhaar/chamdiem/dom/htmldom"
)

func parse(t *testing.T, src string) *htmldom.Document {
	t.Helper()
	doc, err := htmldom.ParseString(src, "https://lms.example")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestNormalizeText(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Chấm điểm", "cham diem"},
		{"  GỬI  bình   luận ", "gui binh luan"},
		{"Grade", "grade"},
		{"Nhận xét", "nhan xet"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeText(c.in); got != c.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestContainsHint(t *testing.T) {
	hints := []string{"gửi", "send"}
	if !ContainsHint("Gui nhan xet", hints) {
		t.Error("unaccented label should match accented hint")
	}
	if !ContainsHint("SEND", hints) {
		t.Error("case-insensitive match expected")
	}
	if ContainsHint("Cancel", hints) {
		t.Error("unexpected match")
	}
	if ContainsHint("anything", []string{"", "  "}) {
		t.Error("blank hints must never match")
	}
}

func TestHasHint(t *testing.T) {
	doc := parse(t, `<body>
		<input id="search" placeholder="Tìm kiếm">
		<textarea class="form-control" placeholder="Nhận xét của bạn"></textarea>
	</body>`)

	hints := []string{"nhận xét", "comment"}
	if HasHint(doc.First("#search"), hints) {
		t.Error("search box must not look like a comment field")
	}
	if !HasHint(doc.First("textarea"), hints) {
		t.Error("textarea placeholder should match")
	}
	if HasHint(nil, hints) {
		t.Error("nil node must not match")
	}
}

func TestNearestAncestor(t *testing.T) {
	doc := parse(t, `<body><div id="outer">
		<div id="pair"><label><input type="radio" id="a"></label><input type="radio"></div>
		<input type="radio" id="lonely">
	</div></body>`)

	outer := doc.First("#outer")
	got := NearestAncestor(doc.First("#a"), MinRadios(2), outer)
	if got == nil || got.Attr("id") != "pair" {
		t.Fatalf("NearestAncestor: got %v, want #pair", got)
	}

	// #lonely's parent is #outer, which holds 3 radios.
	got = NearestAncestor(doc.First("#lonely"), MinRadios(2), outer)
	if got == nil || got.Attr("id") != "outer" {
		t.Fatalf("NearestAncestor: got %v, want #outer", got)
	}

	// Boundary stops the walk.
	got = NearestAncestor(doc.First("#a"), MinRadios(10), outer)
	if got != nil {
		t.Fatalf("NearestAncestor beyond boundary: got %v, want nil", got)
	}
}

func TestQueryUnion_OrderAndDedup(t *testing.T) {
	doc := parse(t, `<body><div class="a b" id="1"></div><div class="b" id="2"></div></body>`)
	nodes := QueryUnion(doc, []string{".b", ".a", "#2"})
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(nodes))
	}
	if nodes[0].Attr("id") != "1" || nodes[1].Attr("id") != "2" {
		t.Errorf("order: got %s,%s", nodes[0].Attr("id"), nodes[1].Attr("id"))
	}
}

func TestFirstMatch_FirstSelectorWins(t *testing.T) {
	doc := parse(t, `<body><p class="late"></p><p class="early"></p></body>`)
	nodes, sel := FirstMatch(doc, []string{".missing", ".late", ".early"})
	if sel != ".late" || len(nodes) != 1 {
		t.Fatalf("FirstMatch: got %q (%d nodes)", sel, len(nodes))
	}
}

func TestFirstMatch_InvalidSelectorSkipped(t *testing.T) {
	doc := parse(t, `<body><p class="ok"></p></body>`)
	nodes, sel := FirstMatch(doc, []string{"p[[", ".ok"})
	if sel != ".ok" || len(nodes) != 1 {
		t.Fatalf("FirstMatch: got %q (%d nodes)", sel, len(nodes))
	}
}

func TestWriteText_ValuePathway(t *testing.T) {
	doc := parse(t, `<body><textarea id="t"></textarea></body>`)
	ta := doc.First("#t")
	if err := WriteText(ta, "Tốt"); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if CurrentText(ta) != "Tốt" {
		t.Errorf("CurrentText: got %q", CurrentText(ta))
	}
	assertEvents(t, doc.Journal(), "input", "change", "keyup")
}

func TestWriteText_EditablePathway(t *testing.T) {
	doc := parse(t, `<body><div id="e" contenteditable="true"><p>old</p></div></body>`)
	ed := doc.First("#e")
	if FieldKind(ed) != KindEditable {
		t.Fatalf("FieldKind: got %s", FieldKind(ed))
	}
	if err := WriteText(ed, "new"); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if CurrentText(ed) != "new" {
		t.Errorf("CurrentText: got %q", CurrentText(ed))
	}
	assertEvents(t, doc.Journal(), "focus", "input", "change", "keyup")
}

func TestWriteText_Unknown(t *testing.T) {
	doc := parse(t, `<body><span id="s">x</span></body>`)
	if err := WriteText(doc.First("#s"), "y"); err == nil {
		t.Fatal("expected error for a span")
	}
	if len(doc.Journal()) != 0 {
		t.Error("no event may be dispatched on failure")
	}
}

func TestLabelHasHint(t *testing.T) {
	doc := parse(t, `<body>
		<button id="b1"><span>Chấm điểm</span></button>
		<button id="b2" aria-label="Send"></button>
		<input id="b3" type="submit" value="Gửi">
	</body>`)
	if !LabelHasHint(doc.First("#b1"), []string{"cham"}) {
		t.Error("#b1 text")
	}
	if !LabelHasHint(doc.First("#b2"), []string{"send"}) {
		t.Error("#b2 aria-label")
	}
	if !LabelHasHint(doc.First("#b3"), []string{"gửi"}) {
		t.Error("#b3 value")
	}
}

func assertEvents(t *testing.T, got []htmldom.Event, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("events: got %d (%v), want %v", len(got), got, want)
	}
	for i, e := range got {
		if e.Type != want[i] {
			t.Errorf("event[%d]: got %q, want %q", i, e.Type, want[i])
		}
	}
}

var _ dom.Node = (*htmldom.Node)(nil)
