package domain

import (
	"strings"

	m "fracture.dev/pkg/fracture/internal/model"
)

// FieldPairs lists the leaf pairs handed to external rule synthesis: every
// pair of leaves inside one selected element, and every pair of identifier
// leaves (names ending in Id or ID) that occur in more than one element.
// Pairs are normalized so Left sorts before Right and appear once.
func FieldPairs(coverage m.CoverageSet) []m.FieldPair {
	pairs := intraPairs(coverage)
	return append(pairs, interPairs(coverage)...)
}

func normalize(a, b string) (string, string) {
	if b < a {
		return b, a
	}

	return a, b
}

func intraPairs(coverage m.CoverageSet) []m.FieldPair {
	var pairs []m.FieldPair

	seen := make(map[[2]string]bool)

	for _, element := range coverage.Selected {
		for i := range element.Covers {
			for j := i + 1; j < len(element.Covers); j++ {
				left, right := normalize(element.Covers[i].String(), element.Covers[j].String())
				if seen[[2]string{left, right}] {
					continue
				}

				seen[[2]string{left, right}] = true
				pairs = append(pairs, m.FieldPair{
					Left:    left,
					Right:   right,
					Element: element.Path.String(),
					Scope:   m.ScopeIntra,
				})
			}
		}
	}

	return pairs
}

func isIdentifier(name string) bool {
	return strings.HasSuffix(name, "Id") || strings.HasSuffix(name, "ID")
}

type idLeaf struct {
	path    string
	element string
}

func interPairs(coverage m.CoverageSet) []m.FieldPair {
	var names []string

	byName := make(map[string][]idLeaf)

	for _, element := range coverage.Selected {
		for _, leaf := range element.Covers {
			name := leaf.Last().Name
			if !isIdentifier(name) {
				continue
			}

			if _, ok := byName[name]; !ok {
				names = append(names, name)
			}

			byName[name] = append(byName[name], idLeaf{path: leaf.Template().String(), element: element.Path.String()})
		}
	}

	var pairs []m.FieldPair

	seen := make(map[[2]string]bool)

	for _, name := range names {
		leaves := byName[name]

		for i := range leaves {
			for j := i + 1; j < len(leaves); j++ {
				if leaves[i].element == leaves[j].element || leaves[i].path == leaves[j].path {
					continue
				}

				left, right := normalize(leaves[i].path, leaves[j].path)
				if seen[[2]string{left, right}] {
					continue
				}

				seen[[2]string{left, right}] = true
				pairs = append(pairs, m.FieldPair{
					Left:    left,
					Right:   right,
					Element: leaves[i].element,
					Other:   leaves[j].element,
					Scope:   m.ScopeInter,
				})
			}
		}
	}

	return pairs
}
