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

package sdmx

import (
	"bytes"
	"encoding/csv"
	"io"

	"github.com/stockparfait/databuilder/fault"
	"github.com/stockparfait/errors"
)

// Standard SDMX column names.
const (
	AreaDimension = "REF_AREA"
	TimeDimension = "TIME_PERIOD"
	ValueColumn   = "OBS_VALUE"
)

// Canonical columns of a normalized observation table.
var Canonical = []string{AreaDimension, TimeDimension, ValueColumn}

// Table is a flat table of string cells, one row per observation.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Index returns the position of the column, or -1.
func (t *Table) Index(column string) int {
	for i, c := range t.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// Project returns a new table with only the given columns in the given order.
// If any of the columns is missing, it returns the original table and false.
func (t *Table) Project(columns ...string) (*Table, bool) {
	idx := make([]int, len(columns))
	for i, c := range columns {
		if idx[i] = t.Index(c); idx[i] < 0 {
			return t, false
		}
	}
	res := &Table{
		Columns: append([]string(nil), columns...),
		Rows:    make([][]string, len(t.Rows)),
	}
	for r, row := range t.Rows {
		out := make([]string, len(idx))
		for i, j := range idx {
			if j < len(row) {
				out[i] = row[j]
			}
		}
		res.Rows[r] = out
	}
	return res, true
}

// Normalize parses a response body in the given format into a Table. The body
// must be of the same syntax family as the format, otherwise it's a
// fault.Parse error.
func Normalize(body []byte, f Format) (*Table, error) {
	fam, err := f.family()
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return &Table{}, nil
	}
	if got := sniff(body); got != fam {
		return nil, fault.New(fault.Parse,
			"requested %s but the response looks like %s", f, got)
	}
	var t *Table
	switch fam {
	case familyCSV:
		t, err = parseCSV(body)
	case familyJSON:
		t, err = parseJSON(body)
	case familyXML:
		t, err = parseXML(body)
	}
	if err != nil {
		return nil, fault.Wrap(fault.Parse, err, "failed to parse %s response", f)
	}
	return t, nil
}

var bom = []byte{0xEF, 0xBB, 0xBF}

func parseCSV(body []byte) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(body, bom)))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return &Table{}, nil
	}
	if err != nil {
		return nil, errors.Annotate(err, "failed to read CSV header")
	}
	t := &Table{Columns: header}
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Annotate(err, "failed to read CSV row %d", len(t.Rows)+1)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
