package controller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/chamdiem/commenting"
	"github.com/hazyhaar/chamdiem/compose"
	"github.com/hazyhaar/chamdiem/dom"
	"github.com/hazyhaar/chamdiem/dom/htmldom"
	"github.com/hazyhaar/chamdiem/grading"
	"github.com/hazyhaar/chamdiem/messaging"
	"github.com/hazyhaar/chamdiem/trigger"
)

const page = `<body>
	<article><h2>Bài 3</h2><p>Học sinh trình bày lời giải phương trình bậc hai đầy đủ, có kiểm tra nghiệm.</p></article>
	<div class="comment-box">
		<textarea class="comment"></textarea>
		<button class="btn-reply" id="reply">Trả lời</button>
		<button class="btn-send" id="send">Gửi</button>
	</div>
</body>`

type fakeAI struct {
	mu    sync.Mutex
	calls []messaging.AIGenerate
	res   messaging.GenerateResult
	// gate, when set, blocks the handler until closed.
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeAI) generate(ctx context.Context, req messaging.AIGenerate) (messaging.GenerateResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	return f.res, nil
}

func (f *fakeAI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type notices struct {
	mu  sync.Mutex
	got []string
}

func (n *notices) Notify(level dom.Level, msg string) {
	n.mu.Lock()
	n.got = append(n.got, string(level)+": "+msg)
	n.mu.Unlock()
}

func (n *notices) joined() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return strings.Join(n.got, "\n")
}

func setup(t *testing.T, src string, ai *fakeAI) (*Controller, *htmldom.Document, *notices) {
	t.Helper()
	doc, err := htmldom.ParseString(src, "https://lms.example")
	if err != nil {
		t.Fatal(err)
	}
	r := messaging.New()
	if ai != nil {
		r.RegisterLocal(messaging.CmdAIGenerate, messaging.Typed(ai.generate))
	}
	n := &notices{}
	c := New(Options{
		Config:   Config{PollInterval: 5 * time.Millisecond, WaitTimeout: 50 * time.Millisecond},
		Document: func() dom.Document { return doc },
		Router:   r,
		Notifier: n,
	})
	return c, doc, n
}

func okAI(text string) *fakeAI {
	return &fakeAI{res: messaging.GenerateResult{Status: messaging.StatusOK, Text: text}}
}

func TestHandleClick_SendOnEmptyFieldIsPreempted(t *testing.T) {
	ai := okAI("  Lời giải đúng, trình bày gọn.  ")
	c, doc, _ := setup(t, page, ai)

	send := doc.First("#send")
	d := c.HandleClick(context.Background(), send)

	if d.Intent != trigger.IntentSend || !d.Preempt {
		t.Fatalf("decision: %+v", d)
	}
	if got := doc.First("textarea").Value(); got != "Lời giải đúng, trình bày gọn." {
		t.Errorf("textarea: %q", got)
	}
	clicks := doc.Clicks()
	if len(clicks) != 1 || clicks[0] != send.Key() {
		t.Fatalf("clicks: %v", clicks)
	}
	if send.Attr(BypassAttr) != "1" {
		t.Error("real send must carry the bypass marker")
	}
	if ai.count() != 1 {
		t.Fatalf("AI calls: %d", ai.count())
	}
	in := ai.calls[0].Input
	if !strings.HasPrefix(in, "Nhận xét bài làm.") || !strings.Contains(in, "phương trình bậc hai") {
		t.Errorf("input: %q", in)
	}
}

func TestHandleClick_SendOverTextIsReplayed(t *testing.T) {
	ai := okAI("x")
	c, doc, _ := setup(t, strings.Replace(page, `<textarea class="comment"></textarea>`,
		`<textarea class="comment">Đã viết</textarea>`, 1), ai)

	d := c.HandleClick(context.Background(), doc.First("#send"))
	if d.Intent != trigger.IntentSend || d.Preempt {
		t.Fatalf("decision: %+v", d)
	}
	if ai.count() != 0 {
		t.Error("no generation expected")
	}
	if len(doc.Clicks()) != 1 {
		t.Fatalf("clicks: %v", doc.Clicks())
	}
	if doc.First("textarea").Value() != "Đã viết" {
		t.Error("existing text changed")
	}
}

func TestHandleClick_ReplyFillsWithoutSending(t *testing.T) {
	ai := okAI("Cảm ơn em.")
	c, doc, _ := setup(t, page, ai)

	d := c.HandleClick(context.Background(), doc.First("#reply"))
	if d.Intent != trigger.IntentReply || d.Preempt {
		t.Fatalf("decision: %+v", d)
	}
	if doc.First("textarea").Value() != "Cảm ơn em." {
		t.Errorf("textarea: %q", doc.First("textarea").Value())
	}
	if len(doc.Clicks()) != 0 {
		t.Errorf("clicks: %v", doc.Clicks())
	}
	if ai.calls[0].Mode != messaging.ModeReply || !strings.HasPrefix(ai.calls[0].Input, "Trả lời bình luận.") {
		t.Errorf("request: %+v", ai.calls[0])
	}
}

func TestHandleClick_OtherControl(t *testing.T) {
	c, doc, _ := setup(t, `<body><button id="b">Tải xuống</button></body>`, okAI("x"))
	if d := c.HandleClick(context.Background(), doc.First("#b")); d.Intent != trigger.IntentNone || d.Preempt {
		t.Fatalf("decision: %+v", d)
	}
}

func TestAIComment_FailureNotifiesWithoutRetry(t *testing.T) {
	ai := &fakeAI{res: messaging.GenerateResult{Status: messaging.StatusError, Code: "quota", Error: "429"}}
	c, doc, n := setup(t, page, ai)

	_, err := c.AIComment(context.Background(), nil, "", true)
	var ge *GenerationError
	if !errors.As(err, &ge) || ge.Code != "quota" {
		t.Fatalf("got %v", err)
	}
	if ai.count() != 1 {
		t.Errorf("AI calls: %d", ai.count())
	}
	if doc.First("textarea").Value() != "" || len(doc.Clicks()) != 0 {
		t.Error("page must be untouched")
	}
	if !strings.Contains(n.joined(), "error: Không tạo được nhận xét: đã hết hạn mức") {
		t.Errorf("notices: %q", n.joined())
	}
}

func TestAIComment_EmptyText(t *testing.T) {
	c, _, _ := setup(t, page, okAI("   "))
	_, err := c.AIComment(context.Background(), nil, "", false)
	var ge *GenerationError
	if !errors.As(err, &ge) || ge.Code != "empty" {
		t.Fatalf("got %v", err)
	}
}

func TestAIComment_NoFieldAppears(t *testing.T) {
	c, _, n := setup(t, `<body><p>Không có ô nhập.</p></body>`, okAI("x"))
	rep, err := c.AIComment(context.Background(), nil, "", false)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Filled != 0 || !strings.Contains(n.joined(), "Không tìm thấy ô nhận xét") {
		t.Fatalf("rep=%+v notices=%q", rep, n.joined())
	}
}

func TestAIComment_ConcurrentTriggerDropped(t *testing.T) {
	ai := okAI("Tốt")
	ai.gate = make(chan struct{})
	ai.entered = make(chan struct{}, 1)
	c, doc, _ := setup(t, page, ai)

	var first atomic.Value
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := c.AIComment(context.Background(), nil, "", false)
		first.Store(err == nil)
	}()
	<-ai.entered

	if _, err := c.AIComment(context.Background(), nil, "", false); !errors.Is(err, ErrBusy) {
		t.Fatalf("second trigger: got %v", err)
	}
	close(ai.gate)
	<-done

	if ok, _ := first.Load().(bool); !ok {
		t.Fatal("first flow failed")
	}
	if ai.count() != 1 || doc.First("textarea").Value() != "Tốt" {
		t.Fatalf("calls=%d value=%q", ai.count(), doc.First("textarea").Value())
	}

	// The flag is released.
	ai.gate = nil
	ai.entered = nil
	if _, err := c.AIComment(context.Background(), nil, "", false); err != nil {
		t.Fatal(err)
	}
}

func TestNoDocument(t *testing.T) {
	c := New(Options{})
	if _, err := c.Grade(context.Background(), grading.Options{Rating: 5}); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("got %v", err)
	}
	if _, err := c.AIComment(context.Background(), nil, "", false); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("got %v", err)
	}
}

func TestAIComment_LessonQuestionIsTheInput(t *testing.T) {
	ai := okAI("Đáp án: x = ±2.")
	c, doc, _ := setup(t, `<body>
		<div id="main-content-lesson"><div class="styled">Giải phương trình   x² − 4 = 0.</div></div>
		<aside>Thông báo lớp học</aside>
		<div class="comment-editor"><textarea class="w-md-editor-text-input"></textarea></div>
	</body>`, ai)

	rep, err := c.AIComment(context.Background(), nil, "", false)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Filled != 1 || doc.First("textarea").Value() != "Đáp án: x = ±2." {
		t.Fatalf("rep=%+v value=%q", rep, doc.First("textarea").Value())
	}
	in := ai.calls[0].Input
	if !strings.Contains(in, "Giải phương trình x² − 4 = 0.") || strings.Contains(in, "Thông báo") {
		t.Errorf("input: %q", in)
	}
	if !strings.HasSuffix(in, "Yêu cầu: "+compose.Instruction) {
		t.Errorf("instruction missing: %q", in)
	}
}

func TestAIComment_NothingToAnswer(t *testing.T) {
	ai := okAI("x")
	c, _, n := setup(t, `<body></body>`, ai)
	if _, err := c.AIComment(context.Background(), nil, "", false); !errors.Is(err, ErrNoQuestion) {
		t.Fatalf("got %v", err)
	}
	if ai.count() != 0 {
		t.Errorf("AI calls: %d", ai.count())
	}
	if !strings.Contains(n.joined(), "Không tìm thấy nội dung câu hỏi") {
		t.Errorf("notices: %q", n.joined())
	}
}

func TestAIComment_WaitsInsideOriginRoot(t *testing.T) {
	c, doc, _ := setup(t, `<body>
		<div class="comment-section" id="thread"><p>Em chưa hiểu câu 2.</p><button id="r">Trả lời</button></div>
		<div class="comment-form"><textarea class="comment" id="elsewhere"></textarea></div>
	</body>`, okAI("Cảm ơn em."))

	rep, err := c.AIComment(context.Background(), doc.First("#r"), messaging.ModeReply, false)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Outcome != commenting.OutcomeNoFields || rep.PassID != "" {
		t.Fatalf("a field outside the thread ended the wait: %+v", rep)
	}
	if doc.First("#elsewhere").Value() != "" {
		t.Error("field outside the thread written")
	}
}
