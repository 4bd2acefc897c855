package makefile

import (
	"net/url"
	"path"
	"strings"
)

// Kind is the Makefile target classification's closed sum type (spec.md §9
// "tagged variants": general-action | git-action | file-view | dir-view |
// exec-view).
type Kind int

const (
	KindPassthrough Kind = iota // absolute/cross-origin URI, left untouched
	KindGeneralAction
	KindGitAction
	KindFileView
	KindDirView
	KindExecView
)

// Action is the result of classifying one Makefile-referenced target:
// what kind it is, its normalized name/path, and the href+label+class the
// tree rewrite step emits.
type Action struct {
	Kind  Kind
	Name  string // action name, normalized path, or git-action key
	Href  string
	Label string
	Class string
	Query string // exec-view only: the original query string, URL-encoded
}

func isAbsoluteOrCrossOrigin(target string) bool {
	if strings.HasPrefix(target, "//") {
		return true
	}
	if u, err := url.Parse(target); err == nil && u.Scheme != "" {
		return true
	}
	return false
}

// classify implements spec.md §4.3 step 3's classification rules. branch is
// the owning branch name, used to build view hrefs; phonyTargets is the set
// collected in the scanning pass, used to recognize bare phony names.
func classify(target, branch string, phonyTargets map[string]bool) Action {
	if isAbsoluteOrCrossOrigin(target) {
		return Action{Kind: KindPassthrough, Href: target}
	}

	if name, ok := strings.CutPrefix(target, "make "); ok {
		return Action{Kind: KindGeneralAction, Name: strings.TrimSpace(name), Href: "?new-action=" + url.QueryEscape(strings.TrimSpace(name))}
	}
	if phonyTargets[target] {
		return Action{Kind: KindGeneralAction, Name: target, Href: "?new-action=" + url.QueryEscape(target)}
	}

	if sub, ok := strings.CutPrefix(target, "git "); ok {
		if action, ok := gitActionsBySubcommand[sub]; ok {
			return Action{Kind: KindGitAction, Name: action.Key, Label: action.Label, Class: action.Class}
		}
	}

	if strings.HasSuffix(target, "/") {
		return Action{Kind: KindDirView, Name: target, Href: viewHref(branch, target)}
	}

	if strings.HasPrefix(target, "./") {
		return classifyExecView(target, branch)
	}

	return Action{Kind: KindFileView, Name: target, Href: viewHref(branch, target)}
}

// classifyExecView parses query options, URL-encodes them, keeps the
// basename without extension as display text, and normalizes the stored
// path by stripping the leading "./" and any "?…" (spec.md §4.3 step 3).
func classifyExecView(target, branch string) Action {
	rawPath, rawQuery, _ := strings.Cut(target, "?")
	normalized := strings.TrimPrefix(rawPath, "./")

	base := path.Base(normalized)
	label := strings.TrimSuffix(base, path.Ext(base))

	encodedQuery := ""
	if rawQuery != "" {
		if values, err := url.ParseQuery(rawQuery); err == nil {
			encodedQuery = values.Encode()
		} else {
			encodedQuery = url.QueryEscape(rawQuery)
		}
	}

	href := viewHref(branch, normalized)
	if encodedQuery != "" {
		href += "?" + encodedQuery
	}

	return Action{Kind: KindExecView, Name: normalized, Href: href, Label: label, Query: encodedQuery}
}

// viewHref builds ".../branches/<b>/views/<encoded-path>", encoding "../"
// path segments as "PREV_DIR/" (spec.md §4.3 step 4).
func viewHref(branch, p string) string {
	segments := strings.Split(p, "/")
	encoded := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if seg == ".." {
			encoded = append(encoded, "PREV_DIR")
			continue
		}
		encoded = append(encoded, url.PathEscape(seg))
	}
	return "branches/" + url.PathEscape(branch) + "/views/" + strings.Join(encoded, "/")
}
