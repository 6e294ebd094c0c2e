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
	"encoding/json"
	"strconv"
	"strings"

	"github.com/stockparfait/errors"
	"golang.org/x/exp/slices"
)

// SDMX-JSON message, versions 1.0 and 2.0. Only the parts needed to flatten
// observations are decoded.

type jsonValue struct {
	ID string `json:"id"`
}

type jsonDimension struct {
	ID     string      `json:"id"`
	Values []jsonValue `json:"values"`
}

type jsonStructure struct {
	Dimensions struct {
		DataSet     []jsonDimension `json:"dataSet"`
		Series      []jsonDimension `json:"series"`
		Observation []jsonDimension `json:"observation"`
	} `json:"dimensions"`
}

type jsonObservations map[string][]json.RawMessage

type jsonDataSet struct {
	Structure int `json:"structure"`
	Series    map[string]struct {
		Observations jsonObservations `json:"observations"`
	} `json:"series"`
	Observations jsonObservations `json:"observations"`
}

type jsonPayload struct {
	Structures []jsonStructure `json:"structures"` // 2.0
	Structure  *jsonStructure  `json:"structure"`  // 1.0
	DataSets   []jsonDataSet   `json:"dataSets"`
}

type jsonMessage struct {
	Data *jsonPayload `json:"data"`
	jsonPayload
}

func (p *jsonPayload) structure(i int) (*jsonStructure, error) {
	if i >= 0 && i < len(p.Structures) {
		return &p.Structures[i], nil
	}
	if p.Structure != nil {
		return p.Structure, nil
	}
	return nil, errors.Reason("no structure %d in the message", i)
}

// parseKey converts "0:1:2" into positions.
func parseKey(key string) ([]int, error) {
	if key == "" {
		return nil, nil
	}
	parts := strings.Split(key, ":")
	res := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, errors.Reason("invalid key '%s'", key)
		}
		res[i] = n
	}
	return res, nil
}

func lessKey(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

type keyed struct {
	key []int
	raw string
}

func sortedKeys[T any](m map[string]T) ([]keyed, error) {
	res := make([]keyed, 0, len(m))
	for k := range m {
		pos, err := parseKey(k)
		if err != nil {
			return nil, err
		}
		res = append(res, keyed{key: pos, raw: k})
	}
	slices.SortFunc(res, func(a, b keyed) bool { return lessKey(a.key, b.key) })
	return res, nil
}

// resolve maps key positions to dimension value IDs.
func resolve(dims []jsonDimension, key []int) ([]string, error) {
	if len(key) != len(dims) {
		return nil, errors.Reason("key has %d positions for %d dimensions",
			len(key), len(dims))
	}
	res := make([]string, len(key))
	for i, k := range key {
		if k >= len(dims[i].Values) {
			return nil, errors.Reason("dimension %s has no value at position %d",
				dims[i].ID, k)
		}
		res[i] = dims[i].Values[k].ID
	}
	return res, nil
}

// cell converts the observation value to text; null is an empty string.
func cell(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", errors.Annotate(err, "invalid string value")
		}
		return s, nil
	}
	return string(raw), nil
}

func appendObservations(t *Table, prefix []string, dims []jsonDimension, obs jsonObservations) error {
	keys, err := sortedKeys(obs)
	if err != nil {
		return err
	}
	for _, k := range keys {
		ids, err := resolve(dims, k.key)
		if err != nil {
			return errors.Annotate(err, "observation '%s'", k.raw)
		}
		var v string
		if vals := obs[k.raw]; len(vals) > 0 {
			if v, err = cell(vals[0]); err != nil {
				return errors.Annotate(err, "observation '%s'", k.raw)
			}
		}
		row := make([]string, 0, len(prefix)+len(ids)+1)
		row = append(row, prefix...)
		row = append(row, ids...)
		row = append(row, v)
		t.Rows = append(t.Rows, row)
	}
	return nil
}

func parseJSON(body []byte) (*Table, error) {
	var m jsonMessage
	if err := json.Unmarshal(bytes.TrimPrefix(body, bom), &m); err != nil {
		return nil, errors.Annotate(err, "failed to decode SDMX-JSON")
	}
	p := &m.jsonPayload
	if m.Data != nil {
		p = m.Data
	}
	t := &Table{}
	for i, ds := range p.DataSets {
		s, err := p.structure(ds.Structure)
		if err != nil {
			return nil, errors.Annotate(err, "data set %d", i)
		}
		dims := s.Dimensions
		var prefix []string
		var cols []string
		for _, d := range dims.DataSet {
			cols = append(cols, d.ID)
			v := ""
			if len(d.Values) > 0 {
				v = d.Values[0].ID
			}
			prefix = append(prefix, v)
		}
		if len(ds.Series) > 0 {
			for _, d := range dims.Series {
				cols = append(cols, d.ID)
			}
		}
		for _, d := range dims.Observation {
			cols = append(cols, d.ID)
		}
		cols = append(cols, ValueColumn)
		if t.Columns == nil {
			t.Columns = cols
		} else if !slices.Equal(t.Columns, cols) {
			return nil, errors.Reason("data set %d has columns %v, expected %v",
				i, cols, t.Columns)
		}
		if len(ds.Series) == 0 {
			if err := appendObservations(t, prefix, dims.Observation, ds.Observations); err != nil {
				return nil, errors.Annotate(err, "data set %d", i)
			}
			continue
		}
		keys, err := sortedKeys(ds.Series)
		if err != nil {
			return nil, errors.Annotate(err, "data set %d", i)
		}
		for _, k := range keys {
			ids, err := resolve(dims.Series, k.key)
			if err != nil {
				return nil, errors.Annotate(err, "data set %d series '%s'", i, k.raw)
			}
			pre := append(append([]string(nil), prefix...), ids...)
			obs := ds.Series[k.raw].Observations
			if err := appendObservations(t, pre, dims.Observation, obs); err != nil {
				return nil, errors.Annotate(err, "data set %d series '%s'", i, k.raw)
			}
		}
	}
	return t, nil
}
