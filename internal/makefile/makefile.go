// Package makefile parses a branch's Makefile into phony targets and a
// "### Workflow" comment block rendered to HTML, with every referenced
// make target, git action, and file/dir/exec path classified and rewritten
// into button/link markup (spec.md §4.3).
package makefile

import (
	"bytes"
	"fmt"
	"log"
	"os"

	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Makefile is the parsed record spec.md §4.3 describes.
type Makefile struct {
	Project string
	Branch  string

	PhonyTargets []string
	Markdown     string
	HTML         string

	GeneralActions []string
	GitActions     []string
	FileViews      []string
	DirViews       []string
	ExecViews      []string
}

// Parse reads the Makefile at path and builds its record. A missing file
// is not an error: it logs a warning and returns (nil, nil), matching
// spec.md §4.3's "or nothing (with a warning) if the file does not exist".
func Parse(path, project, branch string) (*Makefile, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("[makefile] %s/%s: no Makefile at %s", project, branch, path)
			return nil, nil
		}
		return nil, fmt.Errorf("opening makefile %s: %w", path, err)
	}
	defer f.Close()

	scanned, err := scan(f)
	if err != nil {
		return nil, fmt.Errorf("scanning makefile %s: %w", path, err)
	}

	mf := &Makefile{
		Project:      project,
		Branch:       branch,
		PhonyTargets: scanned.phonyTargets,
	}

	if scanned.markdown == "" {
		return mf, nil
	}
	mf.Markdown = scanned.markdown

	phonySet := make(map[string]bool, len(scanned.phonyTargets))
	for _, t := range scanned.phonyTargets {
		phonySet[t] = true
	}

	renderedHTML, sets, err := renderAndClassify(scanned.markdown, branch, phonySet)
	if err != nil {
		return nil, fmt.Errorf("rendering markdown for %s: %w", path, err)
	}
	mf.HTML = renderedHTML
	mf.GeneralActions = sets.generalActions.values
	mf.GitActions = sets.gitActions.values
	mf.FileViews = sets.fileViews.values
	mf.DirViews = sets.dirViews.values
	mf.ExecViews = sets.execViews.values

	return mf, nil
}

// orderedSet collects unique strings in first-seen order, so the resulting
// record is deterministic for identical input bytes (spec.md §8).
type orderedSet struct {
	seen   map[string]bool
	values []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: map[string]bool{}}
}

func (s *orderedSet) add(v string) {
	if s.seen[v] {
		return
	}
	s.seen[v] = true
	s.values = append(s.values, v)
}

type classifiedSets struct {
	generalActions *orderedSet
	gitActions     *orderedSet
	fileViews      *orderedSet
	dirViews       *orderedSet
	execViews      *orderedSet
}

func newClassifiedSets() *classifiedSets {
	return &classifiedSets{
		generalActions: newOrderedSet(),
		gitActions:     newOrderedSet(),
		fileViews:      newOrderedSet(),
		dirViews:       newOrderedSet(),
		execViews:      newOrderedSet(),
	}
}

// renderAndClassify renders markdown to HTML with goldmark, then walks the
// resulting node tree with golang.org/x/net/html, classifying and
// rewriting every <a> and <code> element in place (spec.md §4.3 steps 3-4).
func renderAndClassify(markdown, branch string, phonySet map[string]bool) (string, *classifiedSets, error) {
	var rendered bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &rendered); err != nil {
		return "", nil, err
	}

	bodyCtx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(bytes.NewReader(rendered.Bytes()), bodyCtx)
	if err != nil {
		return "", nil, err
	}

	sets := newClassifiedSets()
	for _, n := range nodes {
		rewriteNode(n, branch, phonySet, sets)
	}

	var out bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&out, n); err != nil {
			return "", nil, err
		}
	}
	return out.String(), sets, nil
}

func rewriteNode(n *html.Node, branch string, phonySet map[string]bool, sets *classifiedSets) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		rewriteNode(c, branch, phonySet, sets)
		c = next
	}

	switch {
	case n.Type == html.ElementNode && n.Data == "a":
		rewriteLink(n, branch, phonySet, sets)
	case n.Type == html.ElementNode && n.Data == "code":
		rewriteCode(n, branch, phonySet, sets)
	}
}

func rewriteLink(n *html.Node, branch string, phonySet map[string]bool, sets *classifiedSets) {
	href := getAttr(n, "href")
	if href == "" {
		return
	}
	action := classify(href, branch, phonySet)
	applyAction(n, action, sets)
}

// rewriteCode wraps a bare `code span` target in an anchor so it becomes
// clickable, mirroring the markup an equivalent Markdown link would produce.
func rewriteCode(n *html.Node, branch string, phonySet map[string]bool, sets *classifiedSets) {
	target := textContent(n)
	if target == "" {
		return
	}
	action := classify(target, branch, phonySet)
	if action.Kind == KindPassthrough {
		return
	}

	anchor := &html.Node{Type: html.ElementNode, Data: "a", DataAtom: atom.A}
	parent := n.Parent
	if parent == nil {
		return
	}
	parent.InsertBefore(anchor, n)
	parent.RemoveChild(n)
	anchor.AppendChild(n)
	applyAction(anchor, action, sets)
}

func applyAction(n *html.Node, action Action, sets *classifiedSets) {
	switch action.Kind {
	case KindPassthrough:
		return
	case KindGeneralAction:
		setAttr(n, "href", action.Href)
		addClass(n, "droid-restricted")
		sets.generalActions.add(action.Name)
	case KindGitAction:
		setAttr(n, "href", "?git-action="+action.Name)
		addClass(n, "droid-restricted")
		addClass(n, "btn-"+action.Class)
		sets.gitActions.add(action.Name)
	case KindFileView:
		setAttr(n, "href", action.Href)
		addClass(n, "droid-restricted")
		sets.fileViews.add(action.Name)
	case KindDirView:
		setAttr(n, "href", action.Href)
		addClass(n, "droid-restricted")
		sets.dirViews.add(action.Name)
	case KindExecView:
		setAttr(n, "href", action.Href)
		addClass(n, "droid-restricted")
		sets.execViews.add(action.Name)
	}
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, value string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

func addClass(n *html.Node, class string) {
	current := getAttr(n, "class")
	if current == "" {
		setAttr(n, "class", class)
		return
	}
	setAttr(n, "class", current+" "+class)
}

func textContent(n *html.Node) string {
	var buf bytes.Buffer
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return buf.String()
}
