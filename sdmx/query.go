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
	"net/url"
	"strings"
)

// Query is a builder for an SDMX data query. Builder methods always return
// a modified copy, leaving the original intact.
type Query struct {
	baseURL string   // the dataflow URL ending with '/'
	filters []string // series key filter values, in dimension order
	start   string
	end     string
}

// NewQuery creates a query for the dataflow at baseURL with the optional
// series key filter values.
func NewQuery(baseURL string, filters ...string) *Query {
	return &Query{baseURL: baseURL, filters: append([]string(nil), filters...)}
}

// Copy creates a deep copy of the query.
func (q *Query) Copy() *Query {
	q2 := *q
	q2.filters = append([]string(nil), q.filters...)
	return &q2
}

// Key sets the series key filter values, in dimension order. An empty value
// is a wildcard.
func (q *Query) Key(filters ...string) *Query {
	q2 := q.Copy()
	q2.filters = append([]string(nil), filters...)
	return q2
}

// Period restricts the query to the inclusive range of period labels.
func (q *Query) Period(start, end string) *Query {
	q2 := q.Copy()
	q2.start = start
	q2.end = end
	return q2
}

// Path returns the series key filter to append to the base URL.
func (q *Query) Path() string {
	return strings.Join(q.filters, ".")
}

// URL is the request URL without the query string.
func (q *Query) URL() string {
	return q.baseURL + q.Path()
}

// Values returns the query string parameters. Each call creates a new object.
func (q *Query) Values() url.Values {
	v := make(url.Values)
	if q.start != "" {
		v.Set("startPeriod", q.start)
	}
	if q.end != "" {
		v.Set("endPeriod", q.end)
	}
	v.Set("dimensionAtObservation", TimeDimension)
	return v
}

// String is the full request URL.
func (q *Query) String() string {
	return q.URL() + "?" + q.Values().Encode()
}
