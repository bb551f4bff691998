// Package scrape turns archive search listing pages into work records.
package scrape

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/fandom-data/internal/work"
)

// ListingDateLayout is how the listing prints a work's date.
const ListingDateLayout = "02 Jan 2006"

const (
	selectorWork         = "li.work"
	selectorTitleAuthor  = "h4.heading > a"
	selectorRelationship = "li.relationships > a.tag"
	selectorCharacter    = "li.characters > a.tag"
	selectorFreeform     = "li.freeforms > a.tag"
	selectorDate         = "p.datetime"
	selectorLanguage     = "dl.stats > dd.language"
	selectorWords        = "dl.stats > dd.words"
	selectorKudos        = "dl.stats > dd.kudos"
	selectorHits         = "dl.stats > dd.hits"
	selectorNextPage     = "ol.pagination li.next a"

	workIDPrefix = "work_"
)

// Page is the parsed content of one listing page.
type Page struct {
	Works []work.Work
	// HasNext is true when the listing links to a following page.
	HasNext bool
}

// ParsePage extracts every work on a listing page.
func ParsePage(body []byte) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Page{}, fmt.Errorf("parse listing html: %w", err)
	}
	return ParseDocument(doc)
}

// ParseDocument is ParsePage for an already-parsed document.
func ParseDocument(doc *goquery.Document) (Page, error) {
	page := Page{
		HasNext: doc.Find(selectorNextPage).Length() > 0,
	}
	var parseErr error
	doc.Find(selectorWork).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		w, err := parseWork(sel)
		if err != nil {
			parseErr = fmt.Errorf("work %d on page: %w", i, err)
			return false
		}
		page.Works = append(page.Works, w)
		return true
	})
	if parseErr != nil {
		return Page{}, parseErr
	}
	return page, nil
}

func parseWork(sel *goquery.Selection) (work.Work, error) {
	rawID, ok := sel.Attr("id")
	if !ok {
		return work.Work{}, fmt.Errorf("work element has no id attribute")
	}
	id, ok := strings.CutPrefix(rawID, workIDPrefix)
	if !ok || id == "" {
		return work.Work{}, fmt.Errorf("work id %q lacks %q prefix", rawID, workIDPrefix)
	}

	links := sel.Find(selectorTitleAuthor)
	title := firstText(links.Eq(0))
	if title == "" {
		return work.Work{}, fmt.Errorf("work %s: title", id)
	}

	dateText := firstText(sel.Find(selectorDate))
	if dateText == "" {
		return work.Work{}, fmt.Errorf("work %s: date", id)
	}
	date, err := work.ParseDate(ListingDateLayout, dateText)
	if err != nil {
		return work.Work{}, fmt.Errorf("work %s: %w", id, err)
	}

	return work.Work{
		ID:            work.ID(id),
		Title:         title,
		Author:        firstText(links.Eq(1)),
		Relationships: texts(sel.Find(selectorRelationship)),
		Characters:    texts(sel.Find(selectorCharacter)),
		Freeforms:     texts(sel.Find(selectorFreeform)),
		Date:          date,
		Language:      firstText(sel.Find(selectorLanguage)),
		Words:         number(sel.Find(selectorWords)),
		Kudos:         number(sel.Find(selectorKudos)),
		Hits:          number(sel.Find(selectorHits)),
	}, nil
}

func firstText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(sel.First().Text())
}

// texts never returns nil so empty tag lists encode as [].
func texts(sel *goquery.Selection) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}

// number reads a stat such as "12,345"; missing or unparsable stats are 0.
func number(sel *goquery.Selection) uint32 {
	raw := strings.ReplaceAll(firstText(sel), ",", "")
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}
