// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"

	"github.com/tomtom215/kgrec/internal/recommend"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

// table is a header plus rows, rendered with tablewriter.
type table struct {
	header []string
	rows   [][]string
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render(w io.Writer) error {
	tw := tablewriter.NewWriter(w)
	tw.Header(toAny(t.header)...)
	for _, row := range t.rows {
		if err := tw.Append(toAny(row)...); err != nil {
			return err
		}
	}
	return tw.Render()
}

func toAny(cells []string) []any {
	out := make([]any, len(cells))
	for i, c := range cells {
		out[i] = c
	}
	return out
}

// emit writes v as indented JSON, or the tables in order.
func (o *options) emit(w io.Writer, v any, tables ...*table) error {
	if o.output == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	for i, t := range tables {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if err := t.render(w); err != nil {
			return err
		}
	}
	return nil
}

func fields() *table {
	return &table{header: []string{"Field", "Value"}}
}

func itoa(n int) string { return strconv.Itoa(n) }

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', 4, 64) }

// pathString renders start -[REL]-> entity -[REL]-> entity.
func pathString(v recommend.PathView) string {
	var b strings.Builder
	b.WriteString(v.Start)
	for i, e := range v.Entities {
		rel := ""
		if i < len(v.Relations) {
			rel = v.Relations[i]
		}
		fmt.Fprintf(&b, " -[%s]-> %s", rel, e)
	}
	return b.String()
}
