package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/hazyhaar/chamdiem/commenting"
	"github.com/hazyhaar/chamdiem/dom"
	"github.com/hazyhaar/chamdiem/dom/htmldom"
	"github.com/hazyhaar/chamdiem/grading"
	"github.com/hazyhaar/chamdiem/heuristic"
	"github.com/hazyhaar/chamdiem/internal/config"
	"github.com/hazyhaar/chamdiem/trigger"
)

// inspect parses a saved page and prints what the engines would act on,
// without changing anything.
func inspect(w io.Writer, cfg *config.Config, path string, logger *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := htmldom.Parse(f, "file://"+path)
	if err != nil {
		return err
	}
	doc.SetLogger(logger)

	v, err := loadVocabulary(cfg)
	if err != nil {
		return fmt.Errorf("vocabulary: %w", err)
	}

	title := color.New(color.FgCyan, color.Bold)
	ok := color.New(color.FgGreen)
	miss := color.New(color.FgYellow)

	ge := grading.New(v, logger)
	title.Fprintln(w, "Grading")
	root := ge.LocateRoot(doc)
	var gradingRoot dom.Node
	switch {
	case root == nil:
		miss.Fprintln(w, "  no grading root")
	default:
		gradingRoot = root.Node
		fmt.Fprintf(w, "  root: %s (%s %s)\n", describe(root.Node), root.Source, root.Selector)
		groups := ge.Groups(root.Node)
		if len(groups) == 0 {
			miss.Fprintln(w, "  no rating group")
		}
		for i, g := range groups {
			choices, kind := ge.Choices(g)
			ok.Fprintf(w, "  group %d: %d %s choices  %s\n", i+1, len(choices), kind, describe(g))
		}
		if btn := ge.FindSubmit(doc, root.Node); btn != nil {
			fmt.Fprintf(w, "  grade button: %s\n", describe(btn))
		}
	}

	ce := commenting.New(v, logger)
	title.Fprintln(w, "Comment")
	croot := ce.LocateRoot(doc, nil, gradingRoot)
	if croot == nil {
		miss.Fprintln(w, "  no comment root")
	} else {
		fmt.Fprintf(w, "  root: %s (%s)\n", describe(croot.Node), croot.Source)
		fields := ce.Fields(doc, croot.Node)
		if len(fields) == 0 {
			miss.Fprintln(w, "  no comment field")
		}
		for _, fd := range fields {
			frame := ""
			if fd.Frame {
				frame = " in frame"
			}
			ok.Fprintf(w, "  field: %s [%s%s] %q\n", describe(fd.Node), fd.Kind, frame, heuristic.CurrentText(fd.Node))
		}
		if send := ce.FindSend(doc, croot.Node); send != nil {
			fmt.Fprintf(w, "  send control: %s\n", describe(send))
		} else {
			miss.Fprintln(w, "  no send control")
		}
	}

	cls := trigger.New(v)
	title.Fprintln(w, "Controls")
	for _, c := range heuristic.QueryUnion(doc, v.Clickables) {
		if in := cls.Classify(c); in != trigger.IntentNone {
			fmt.Fprintf(w, "  %-5s %s\n", in, describe(c))
		}
	}
	return nil
}

func describe(n dom.Node) string {
	var b strings.Builder
	b.WriteString(n.Tag())
	if id := n.Attr("id"); id != "" {
		b.WriteString("#" + id)
	}
	if name := n.Attr("name"); name != "" {
		b.WriteString("[name=" + name + "]")
	}
	if cls := strings.Fields(n.Attr("class")); len(cls) > 0 {
		b.WriteString("." + cls[0])
	}
	if text := strings.Join(strings.Fields(n.Text()), " "); text != "" {
		if r := []rune(text); len(r) > 40 {
			text = string(r[:40]) + "…"
		}
		fmt.Fprintf(&b, " %q", text)
	}
	return b.String()
}
