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

package builder

import (
	"io"
	"math"
	"strconv"
	"time"

	"github.com/stockparfait/databuilder/period"
	"github.com/stockparfait/databuilder/table"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DateFormat is used for printing row dates.
const DateFormat = "2006-01-02"

// Row of a consolidated dataset.
type Row struct {
	Date    time.Time // start of the period, when the label parsed
	Label   string    // period label as found in the extracts
	Parsed  bool      // whether Date is valid
	Country string
	Values  []float64 // one per indicator, NaN when missing
}

var _ table.Row = Row{}

// CSV implements table.Row. Missing values are empty cells.
func (r Row) CSV() []string {
	res := make([]string, 0, len(r.Values)+2)
	if r.Parsed {
		res = append(res, r.Date.Format(DateFormat))
	} else {
		res = append(res, r.Label)
	}
	res = append(res, r.Country)
	for _, v := range r.Values {
		if math.IsNaN(v) {
			res = append(res, "")
			continue
		}
		res = append(res, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return res
}

// Dataset is a table of indicator values keyed by unique (date, country)
// pairs, sorted by date and then by country.
type Dataset struct {
	Frequency  period.Frequency
	Indicators []string
	Rows       []Row
}

// Value of the indicator in the i'th row, or NaN.
func (d *Dataset) Value(i int, indicator string) float64 {
	j := slices.Index(d.Indicators, indicator)
	if j < 0 || i < 0 || i >= len(d.Rows) {
		return math.NaN()
	}
	return d.Rows[i].Values[j]
}

// Countries present in the dataset, sorted.
func (d *Dataset) Countries() []string {
	set := make(map[string]struct{})
	for _, r := range d.Rows {
		set[r.Country] = struct{}{}
	}
	res := maps.Keys(set)
	slices.Sort(res)
	return res
}

// Table of the dataset with columns date, country and one per indicator.
func (d *Dataset) Table() *table.Table {
	t := table.NewTable(append([]string{"date", "country"}, d.Indicators...)...)
	for _, r := range d.Rows {
		t.AddRow(r)
	}
	return t
}

// WriteCSV writes the whole dataset in CSV format.
func (d *Dataset) WriteCSV(w io.Writer) error {
	return d.Table().WriteCSV(w, table.Params{})
}

// WriteText pretty-prints up to limit rows of the dataset; 0 means all rows.
func (d *Dataset) WriteText(w io.Writer, limit int) error {
	return d.Table().WriteText(w, table.Params{Rows: limit})
}

// Stats summarize an indicator column. Mean, Min and Max are NaN when Count
// is zero.
type Stats struct {
	Indicator string
	Count     int // non-missing values
	Missing   int
	Mean      float64
	Min       float64
	Max       float64
}

var _ table.Row = Stats{}

// CSV implements table.Row.
func (s Stats) CSV() []string {
	f := func(x float64) string {
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'g', 6, 64)
	}
	return []string{s.Indicator, strconv.Itoa(s.Count), strconv.Itoa(s.Missing),
		f(s.Mean), f(s.Min), f(s.Max)}
}

// Summary computes Stats for every indicator.
func (d *Dataset) Summary() []Stats {
	res := make([]Stats, len(d.Indicators))
	for j, ind := range d.Indicators {
		var xs []float64
		for _, r := range d.Rows {
			if !math.IsNaN(r.Values[j]) {
				xs = append(xs, r.Values[j])
			}
		}
		s := Stats{
			Indicator: ind,
			Count:     len(xs),
			Missing:   len(d.Rows) - len(xs),
			Mean:      math.NaN(),
			Min:       math.NaN(),
			Max:       math.NaN(),
		}
		if len(xs) > 0 {
			s.Mean = stat.Mean(xs, nil)
			s.Min = floats.Min(xs)
			s.Max = floats.Max(xs)
		}
		res[j] = s
	}
	return res
}

// SummaryTable renders Summary.
func (d *Dataset) SummaryTable() *table.Table {
	t := table.NewTable("indicator", "count", "missing", "mean", "min", "max")
	for _, s := range d.Summary() {
		t.AddRow(s)
	}
	return t
}
