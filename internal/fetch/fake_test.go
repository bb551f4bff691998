package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// fakeArchive serves generated listing pages keyed by the page query value.
type fakeArchive struct {
	pages   int
	perPage int
	failAt  map[int]error
	visits  []int
}

func (a *fakeArchive) Fetch(_ context.Context, raw string) (Response, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Response{}, err
	}
	page, err := strconv.Atoi(u.Query().Get("page"))
	if err != nil {
		return Response{}, fmt.Errorf("bad page param: %w", err)
	}
	a.visits = append(a.visits, page)
	if err, ok := a.failAt[page]; ok {
		return Response{}, err
	}
	return Response{URL: raw, StatusCode: 200, Body: []byte(a.render(page))}, nil
}

func (a *fakeArchive) render(page int) string {
	var b strings.Builder
	b.WriteString(`<html><body><ol class="work index group">`)
	if page <= a.pages {
		for i := range a.perPage {
			id := page*1000 + i
			fmt.Fprintf(&b, `<li id="work_%d" class="work blurb group">
<div class="header module"><h4 class="heading"><a href="/works/%d">Work %d</a> by <a rel="author" href="/users/u%d">u%d</a></h4>
<p class="datetime">0%d Mar 2020</p></div>
<ul class="tags commas"><li class="relationships"><a class="tag">Katara/Zuko</a></li></ul>
<dl class="stats"><dd class="language">English</dd><dd class="words">1,%03d</dd></dl></li>`,
				id, id, id, page, page, 1+i%9, i)
		}
	}
	b.WriteString(`</ol><ol class="pagination actions">`)
	if page < a.pages {
		fmt.Fprintf(&b, `<li class="next"><a rel="next" href="/works/search?page=%d">Next</a></li>`, page+1)
	} else {
		b.WriteString(`<li class="next"><span class="disabled">Next</span></li>`)
	}
	b.WriteString(`</ol></body></html>`)
	return b.String()
}

type recordingPauser struct {
	delays []time.Duration
	err    error
}

func (p *recordingPauser) Pause(_ context.Context, delay time.Duration) error {
	p.delays = append(p.delays, delay)
	return p.err
}

func newTestPacer(interval time.Duration, burst int) (*Pacer, *recordingPauser) {
	pacer := NewPacer(interval, burst)
	pauser := &recordingPauser{}
	pacer.pauser = pauser
	return pacer, pauser
}
