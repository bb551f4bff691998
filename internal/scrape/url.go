package scrape

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultEndpoint is the public archive host.
const DefaultEndpoint = "https://archiveofourown.org"

// DefaultFandom is the fandom searched when none is configured.
const DefaultFandom = "Avatar: The Last Airbender"

// Query narrows the archive work search. Results are always sorted by
// creation date ascending so that page N is stable between runs.
type Query struct {
	Fandom   string
	Creators string
}

// SearchURL returns the listing URL for one page of results.
func SearchURL(endpoint string, page int, q Query) (string, error) {
	if page < 1 {
		return "", fmt.Errorf("page must be >= 1, got %d", page)
	}
	base, err := url.Parse(strings.TrimRight(endpoint, "/") + "/works/search")
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("endpoint %q must be an absolute URL", endpoint)
	}

	params := url.Values{}
	params.Set("commit", "Search")
	params.Set("page", strconv.Itoa(page))
	params.Set("utf8", "✓")
	for _, field := range []string{
		"bookmarks_count", "character_names", "comments_count", "complete",
		"crossover", "freeform_names", "hits", "kudos_count", "language_id",
		"query", "rating_ids", "relationship_names", "revised_at", "title",
		"word_count",
	} {
		params.Set(searchField(field), "")
	}
	params.Set(searchField("creators"), q.Creators)
	params.Set(searchField("fandom_names"), q.Fandom)
	params.Set(searchField("single_chapter"), "0")
	params.Set(searchField("sort_column"), "created_at")
	params.Set(searchField("sort_direction"), "asc")

	base.RawQuery = params.Encode()
	return base.String(), nil
}

func searchField(name string) string {
	return "work_search[" + name + "]"
}
