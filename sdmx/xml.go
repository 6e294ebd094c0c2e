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
	"encoding/xml"
	"io"

	"github.com/stockparfait/databuilder/fault"
	"github.com/stockparfait/errors"
)

// Pair is a dimension (or attribute) ID with its value.
type Pair struct {
	ID    string
	Value string
}

// plainAttrs returns unqualified attributes of an element, in document order.
// SDMX components are never namespace-qualified, unlike xmlns and xsi.
func plainAttrs(e xml.StartElement) []Pair {
	var res []Pair
	for _, a := range e.Attr {
		if a.Name.Space != "" || a.Name.Local == "xmlns" {
			continue
		}
		res = append(res, Pair{ID: a.Name.Local, Value: a.Value})
	}
	return res
}

func attr(e xml.StartElement, name string) (string, bool) {
	for _, a := range e.Attr {
		if a.Name.Local == name && a.Name.Space == "" {
			return a.Value, true
		}
	}
	return "", false
}

// tableBuilder collects observations with a possibly varying set of columns.
type tableBuilder struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

func newTableBuilder() *tableBuilder {
	return &tableBuilder{index: make(map[string]int)}
}

func (b *tableBuilder) add(pairs ...[]Pair) {
	var row []string
	for _, ps := range pairs {
		for _, p := range ps {
			i, ok := b.index[p.ID]
			if !ok {
				i = len(b.columns)
				b.index[p.ID] = i
				b.columns = append(b.columns, p.ID)
			}
			for len(row) <= i {
				row = append(row, "")
			}
			row[i] = p.Value
		}
	}
	b.rows = append(b.rows, row)
}

func (b *tableBuilder) table() *Table {
	t := &Table{Columns: b.columns, Rows: b.rows}
	for i, row := range t.Rows {
		for len(row) < len(t.Columns) {
			row = append(row, "")
		}
		t.Rows[i] = row
	}
	return t
}

// xmlWalker visits start and end elements while tracking the path of local
// names from the root.
type xmlWalker struct {
	dec  *xml.Decoder
	path []string
}

func newXMLWalker(body []byte) *xmlWalker {
	return &xmlWalker{dec: xml.NewDecoder(bytes.NewReader(bytes.TrimPrefix(body, bom)))}
}

func (w *xmlWalker) parent() string {
	if len(w.path) < 2 {
		return ""
	}
	return w.path[len(w.path)-2]
}

// next returns the next start or end element, or io.EOF.
func (w *xmlWalker) next() (xml.Token, error) {
	for {
		tok, err := w.dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			w.path = append(w.path, t.Name.Local)
			return t, nil
		case xml.EndElement:
			w.path = w.path[:len(w.path)-1]
			return t, nil
		}
	}
}

// parseXML flattens SDMX-ML 2.1 generic or structure specific data, both
// time series and flat observations.
func parseXML(body []byte) (*Table, error) {
	w := newXMLWalker(body)
	b := newTableBuilder()
	var series, obs []Pair
	inObs := false
	attributes := 0 // nesting depth of Attributes elements
	for {
		tok, err := w.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Annotate(err, "failed to decode SDMX-ML")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if attributes > 0 {
				if t.Name.Local == "Attributes" {
					attributes++
				}
				continue
			}
			switch t.Name.Local {
			case "Attributes":
				attributes++
			case "ErrorMessage":
				code, _ := attr(t, "code")
				return nil, errors.Reason("server returned SDMX error message, code %s", code)
			case "Series":
				series = plainAttrs(t)
			case "Obs":
				inObs = true
				obs = plainAttrs(t)
			case "Value":
				id, _ := attr(t, "id")
				v, _ := attr(t, "value")
				switch w.parent() {
				case "SeriesKey":
					series = append(series, Pair{ID: id, Value: v})
				case "ObsKey":
					obs = append(obs, Pair{ID: id, Value: v})
				}
			case "ObsDimension":
				if inObs {
					id, ok := attr(t, "id")
					if !ok {
						id = TimeDimension
					}
					v, _ := attr(t, "value")
					obs = append(obs, Pair{ID: id, Value: v})
				}
			case "ObsValue":
				if inObs {
					v, _ := attr(t, "value")
					obs = append(obs, Pair{ID: ValueColumn, Value: v})
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "Attributes":
				attributes--
			case "Series":
				if attributes == 0 {
					series = nil
				}
			case "Obs":
				if attributes == 0 && inObs {
					b.add(series, obs)
					obs = nil
					inObs = false
				}
			}
		}
	}
	return b.table(), nil
}

// SeriesKey extracts the dimension IDs and values of the first series key in a
// generic SDMX-ML data message, in document order. Attributes of the Series
// element are not part of the key and are ignored.
func SeriesKey(body []byte) ([]Pair, error) {
	if sniff(body) != familyXML {
		return nil, fault.New(fault.Parse, "series key requires an SDMX-ML response")
	}
	w := newXMLWalker(body)
	var key []Pair
	inSeries := false
	for {
		tok, err := w.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fault.Wrap(fault.Parse, err, "failed to decode SDMX-ML")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "Series":
				inSeries = true
				key = nil
			case inSeries && t.Name.Local == "Value" && w.parent() == "SeriesKey":
				id, _ := attr(t, "id")
				v, _ := attr(t, "value")
				key = append(key, Pair{ID: id, Value: v})
			}
		case xml.EndElement:
			if t.Name.Local == "Series" {
				if len(key) > 0 {
					return key, nil
				}
				inSeries = false
			}
		}
	}
	return nil, fault.New(fault.Parse, "no generic series key in the response")
}
