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
	"context"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/stockparfait/databuilder/db"
	"github.com/stockparfait/databuilder/fault"
	"github.com/stockparfait/databuilder/period"
	"github.com/stockparfait/iterator"
	"github.com/stockparfait/logging"
)

type extract struct {
	indicator string
	obs       []db.Observation
}

type rowKey struct {
	label   string
	country string
}

// parseValue converts an observation value to a number; anything which is not
// a number, including an empty string, is NaN.
func parseValue(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Consolidate outer-joins the extracts of the indicators on (period, country).
// Extracts which fail to load are logged and left out; it is an error only if
// none of them loads.
//
// Period labels are converted to the start of the period according to freq.
// Labels which don't parse are kept as is and sorted after all the dated rows.
func Consolidate(ctx context.Context, database *db.Database, indicators []string, freq period.Frequency) (*Dataset, error) {
	if len(indicators) == 0 {
		return nil, fault.New(fault.Config, "no indicators to consolidate")
	}
	if !freq.Valid() {
		return nil, fault.New(fault.Config, "unsupported frequency: %s", freq)
	}
	extracts := iterator.Reduce[string, []extract](
		iterator.FromSlice(indicators), nil, func(ind string, acc []extract) []extract {
			obs, err := database.ReadExtract(ind)
			if err != nil {
				logging.Warningf(ctx, "excluding %s: %s", ind, err.Error())
				return acc
			}
			return append(acc, extract{indicator: ind, obs: obs})
		})
	if len(extracts) == 0 {
		return nil, fault.New(fault.Persistence, "none of the %d extracts could be loaded",
			len(indicators))
	}

	d := &Dataset{Frequency: freq}
	for _, e := range extracts {
		d.Indicators = append(d.Indicators, e.indicator)
	}
	index := make(map[rowKey]int)
	seen := make(map[rowKey][]bool)
	badLabels := make(map[string]struct{})
	for j, e := range extracts {
		for _, o := range e.obs {
			label := strings.TrimSpace(o.Period)
			country := strings.TrimSpace(o.Area)
			p, err := period.Parse(label, freq)
			parsed := err == nil
			if parsed {
				label = p.String()
			} else if _, ok := badLabels[label]; !ok {
				badLabels[label] = struct{}{}
				logging.Warningf(ctx, "keeping unparsed period label '%s': %s",
					label, err.Error())
			}
			k := rowKey{label: label, country: country}
			i, ok := index[k]
			if !ok {
				i = len(d.Rows)
				index[k] = i
				seen[k] = make([]bool, len(extracts))
				r := Row{Label: label, Parsed: parsed, Country: country,
					Values: make([]float64, len(extracts))}
				if parsed {
					r.Date = p.Start()
				}
				for v := range r.Values {
					r.Values[v] = math.NaN()
				}
				d.Rows = append(d.Rows, r)
			}
			if seen[k][j] {
				logging.Warningf(ctx, "%s: duplicate value for %s %s, keeping the last one",
					e.indicator, label, country)
			}
			seen[k][j] = true
			d.Rows[i].Values[j] = parseValue(o.Value)
		}
	}
	sort.SliceStable(d.Rows, func(i, j int) bool { return lessRow(d.Rows[i], d.Rows[j]) })
	logging.Infof(ctx, "consolidated %d indicators into %d rows for %d countries",
		len(d.Indicators), len(d.Rows), len(d.Countries()))
	return d, nil
}

func lessRow(a, b Row) bool {
	if a.Parsed != b.Parsed {
		return a.Parsed
	}
	if a.Parsed && !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	if !a.Parsed && a.Label != b.Label {
		return a.Label < b.Label
	}
	return a.Country < b.Country
}
