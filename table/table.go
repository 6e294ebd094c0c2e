// Copyright 2022 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package table renders rows of text cells as CSV or as an aligned text table.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/stockparfait/errors"
)

// Row interface that a table row representation must implement.
type Row interface {
	CSV() []string // an encoding/csv compatible row representation
}

// Cells is the trivial Row.
type Cells []string

var _ Row = Cells{}

func (c Cells) CSV() []string { return c }

// Table of rows with an optional header. All rows are expected to have the
// same number of cells as the header.
type Table struct {
	Header []string
	Rows   []Row
}

// NewTable creates an empty table with the given header.
func NewTable(header ...string) *Table {
	return &Table{Header: header}
}

// AddRow adds one or more rows to the table.
func (t *Table) AddRow(rows ...Row) {
	t.Rows = append(t.Rows, rows...)
}

// Params of rendering.
type Params struct {
	Rows        int  // max. number of rows to write; 0 = unlimited (default)
	NoHeader    bool // whether to print the header, default - yes
	MaxColWidth int  // for WriteText only; 0 = unlimited, otherwise must be >= 4
}

// records collects the header and rows to render, checking their sizes.
func (t *Table) records(p Params) ([][]string, error) {
	var res [][]string
	size := -1
	if !p.NoHeader && len(t.Header) > 0 {
		res = append(res, t.Header)
		size = len(t.Header)
	}
	for i, r := range t.Rows {
		if p.Rows > 0 && i >= p.Rows {
			break
		}
		cells := r.CSV()
		if size < 0 {
			size = len(cells)
		}
		if len(cells) != size {
			return nil, errors.Reason("row %d has %d cells, expected %d", i, len(cells), size)
		}
		res = append(res, cells)
	}
	return res, nil
}

// WriteCSV writes the table in CSV format.
func (t *Table) WriteCSV(w io.Writer, p Params) error {
	recs, err := t.records(p)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(recs); err != nil {
		return errors.Annotate(err, "failed to write CSV")
	}
	return nil
}

func clip(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	return string([]rune(s)[:width-2]) + ".."
}

// WriteText writes the table with right-aligned columns separated by '|', and
// a line of dashes under the header.
func (t *Table) WriteText(w io.Writer, p Params) error {
	if p.MaxColWidth != 0 && p.MaxColWidth < 4 {
		return errors.Reason("MaxColWidth [%d] must be 0 or >= 4", p.MaxColWidth)
	}
	recs, err := t.records(p)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}
	widths := make([]int, len(recs[0]))
	for _, rec := range recs {
		for i, c := range rec {
			n := utf8.RuneCountInString(c)
			if p.MaxColWidth > 0 && n > p.MaxColWidth {
				n = p.MaxColWidth
			}
			if n > widths[i] {
				widths[i] = n
			}
		}
	}
	line := func(rec []string) error {
		out := make([]string, len(rec))
		for i, c := range rec {
			out[i] = fmt.Sprintf("%*s", widths[i], clip(c, widths[i]))
		}
		_, err := fmt.Fprintln(w, strings.Join(out, " | "))
		return err
	}
	for i, rec := range recs {
		if err := line(rec); err != nil {
			return errors.Annotate(err, "failed to write row")
		}
		if i == 0 && !p.NoHeader && len(t.Header) > 0 {
			dashes := make([]string, len(widths))
			for j, n := range widths {
				dashes[j] = strings.Repeat("-", n)
			}
			if err := line(dashes); err != nil {
				return errors.Annotate(err, "failed to write header separator")
			}
		}
	}
	return nil
}
