package analysis

import (
	"fmt"
	"sort"
	"strings"
)

// PageText is the OCR output for one page, keyed by the same 1-based
// page-index space as rendered pages and stitch-group membership.
type PageText struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// ReportContext is the textual portion of an analysis submission: the
// concatenated report text, its per-page breakdown, and the stitch
// grouping map that ties submitted images back to source pages.
type ReportContext struct {
	ReportText         string
	ReportTextByPage   []PageText
	StitchedPageGroups [][]int // nil when no stitching grouping applies
}

// AssembleContext merges per-page OCR text and the stitch grouping map
// into a single ordered context. Entries whose text is empty after
// trimming are dropped; if none remain the function returns nil and the
// caller submits images only.
//
// Pure function: inputs are not mutated and identical inputs produce
// identical output.
func AssembleContext(pageTexts []PageText, stitchedPageGroups [][]int) *ReportContext {
	kept := make([]PageText, 0, len(pageTexts))
	for _, pt := range pageTexts {
		text := strings.TrimSpace(pt.Text)
		if text == "" {
			continue
		}
		kept = append(kept, PageText{Page: pt.Page, Text: text})
	}
	if len(kept) == 0 {
		return nil
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Page < kept[j].Page })

	parts := make([]string, 0, len(kept))
	for _, pt := range kept {
		parts = append(parts, fmt.Sprintf("[Page %d]\n%s", pt.Page, pt.Text))
	}

	return &ReportContext{
		ReportText:         strings.Join(parts, "\n\n"),
		ReportTextByPage:   kept,
		StitchedPageGroups: stitchedPageGroups,
	}
}

// SinglePageGroups is the implicit grouping for n standalone images
// submitted without a document: each image is its own page.
func SinglePageGroups(n int) [][]int {
	groups := make([][]int, 0, n)
	for i := 1; i <= n; i++ {
		groups = append(groups, []int{i})
	}
	return groups
}
