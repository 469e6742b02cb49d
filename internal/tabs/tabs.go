// Package tabs finds the notebook tabs a keyword refers to.
package tabs

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dgnsrekt/colab_agent/internal/cdpcontrol"
)

// DefaultURLPattern restricts matching to hosted notebook pages.
const DefaultURLPattern = "https://colab.research.google.com/*"

// TabHandle identifies one open tab at enumeration time.
type TabHandle = cdpcontrol.TabInfo

// MatchSet is sorted by tab id and holds no duplicate ids.
type MatchSet []TabHandle

// IDs returns the tab ids in order.
func (m MatchSet) IDs() []string {
	out := make([]string, len(m))
	for i, t := range m {
		out[i] = t.ID
	}
	return out
}

// Pool enumerates the tabs currently open in the browser.
type Pool interface {
	ListTabs(ctx context.Context) ([]TabHandle, error)
}

// Pattern is a match-pattern style URL glob where * spans any run of
// characters.
type Pattern struct {
	raw string
	re  *regexp.Regexp
}

func CompilePattern(glob string) (Pattern, error) {
	glob = strings.TrimSpace(glob)
	if glob == "" {
		return Pattern{}, cdpcontrol.NewError(cdpcontrol.CodeValidation, "url pattern is required", nil)
	}
	parts := strings.Split(glob, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	re, err := regexp.Compile("^" + strings.Join(parts, ".*") + "$")
	if err != nil {
		return Pattern{}, cdpcontrol.NewError(cdpcontrol.CodeValidation, "invalid url pattern", err)
	}
	return Pattern{raw: glob, re: re}, nil
}

// MustCompilePattern panics on an invalid glob.
func MustCompilePattern(glob string) Pattern {
	p, err := CompilePattern(glob)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Pattern) String() string { return p.raw }

func (p Pattern) Match(url string) bool {
	if p.re == nil {
		return false
	}
	return p.re.MatchString(url)
}

// Locator answers "which open notebook tabs match this keyword". It holds no
// state between calls; every Locate reads the pool fresh.
type Locator struct {
	pool    Pool
	pattern Pattern
}

func NewLocator(pool Pool, pattern Pattern) *Locator {
	return &Locator{pool: pool, pattern: pattern}
}

func (l *Locator) Pattern() Pattern { return l.pattern }

// Locate returns tabs whose URL satisfies the pattern and whose title
// contains keyword, compared case-insensitively. An empty keyword matches
// every notebook tab. An empty result is not an error.
func (l *Locator) Locate(ctx context.Context, keyword string) (MatchSet, error) {
	all, err := l.pool.ListTabs(ctx)
	if err != nil {
		var ce *cdpcontrol.CodedError
		if errors.As(err, &ce) && ce.Code == cdpcontrol.CodeCDPUnavailable {
			return nil, err
		}
		return nil, cdpcontrol.NewError(cdpcontrol.CodeCDPUnavailable, "failed to enumerate tabs", err)
	}

	needle := strings.ToLower(keyword)
	seen := make(map[string]struct{}, len(all))
	out := make(MatchSet, 0, len(all))
	for _, t := range all {
		if !l.pattern.Match(t.URL) || !titleMatches(t.Title, needle) {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func titleMatches(title, needle string) bool {
	if needle == "" {
		return true
	}
	if title == "" {
		return false
	}
	return strings.Contains(strings.ToLower(title), needle)
}

// Describe renders a MatchSet for log lines.
func Describe(m MatchSet) string {
	if len(m) == 0 {
		return "none"
	}
	parts := make([]string, len(m))
	for i, t := range m {
		parts[i] = fmt.Sprintf("%s(%q)", t.ID, t.Title)
	}
	return strings.Join(parts, ", ")
}
