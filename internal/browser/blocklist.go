package browser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Blocklist is the set of resource types a tab refuses to load.
type Blocklist map[proto.NetworkResourceType]bool

var blockable = map[string]proto.NetworkResourceType{
	"image":       proto.NetworkResourceTypeImage,
	"images":      proto.NetworkResourceTypeImage,
	"font":        proto.NetworkResourceTypeFont,
	"fonts":       proto.NetworkResourceTypeFont,
	"media":       proto.NetworkResourceTypeMedia,
	"stylesheet":  proto.NetworkResourceTypeStylesheet,
	"stylesheets": proto.NetworkResourceTypeStylesheet,
}

// ParseBlocklist maps configuration names to resource types. Only images,
// fonts, media and stylesheets can be blocked.
func ParseBlocklist(names []string) (Blocklist, error) {
	if len(names) == 0 {
		return nil, nil
	}
	b := make(Blocklist, len(names))
	for _, n := range names {
		t, ok := blockable[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return nil, fmt.Errorf("browser: resource type %q cannot be blocked", n)
		}
		b[t] = true
	}
	return b, nil
}

// Blocks reports whether requests of type t are refused.
func (b Blocklist) Blocks(t proto.NetworkResourceType) bool { return b[t] }

func (b Blocklist) String() string {
	names := make([]string, 0, len(b))
	for t := range b {
		names = append(names, strings.ToLower(string(t)))
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// install hijacks the page's requests. The returned router must be stopped
// when the page closes.
func (b Blocklist) install(page *rod.Page) (*rod.HijackRouter, error) {
	router := page.HijackRequests()
	err := router.Add("*", "", func(h *rod.Hijack) {
		if b.Blocks(h.Request.Type()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return nil, err
	}
	go router.Run()
	return router, nil
}
