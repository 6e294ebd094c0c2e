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

// Package period implements the calendar periods of statistical time series:
// quarters, months and years, their text labels as used by SDMX APIs, and the
// partitioning of a period range into fixed-size chunks.
package period

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/stockparfait/databuilder/fault"
)

// Frequency of a time series. The zero value is not a valid frequency.
type Frequency int

const (
	Quarterly Frequency = iota + 1
	Monthly
	Yearly
)

// ParseFrequency converts an SDMX frequency code into Frequency. Both "Y" and
// "A" (annual) denote Yearly.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "Q":
		return Quarterly, nil
	case "M":
		return Monthly, nil
	case "Y", "A":
		return Yearly, nil
	}
	return 0, fault.New(fault.Config, "unsupported frequency: '%s'", s)
}

// String returns the SDMX frequency code.
func (f Frequency) String() string {
	switch f {
	case Quarterly:
		return "Q"
	case Monthly:
		return "M"
	case Yearly:
		return "Y"
	}
	return "Frequency(" + strconv.Itoa(int(f)) + ")"
}

// Set implements flag.Value.
func (f *Frequency) Set(s string) error {
	v, err := ParseFrequency(s)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Valid checks that f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case Quarterly, Monthly, Yearly:
		return true
	}
	return false
}

// perYear is the number of periods in a year.
func (f Frequency) perYear() (int, error) {
	switch f {
	case Quarterly:
		return 4, nil
	case Monthly:
		return 12, nil
	case Yearly:
		return 1, nil
	}
	return 0, fault.New(fault.Config, "unsupported frequency: %s", f)
}

// Period is a single quarter, month or year. Sub is the 1-based quarter or
// month number within the year, and is always 1 for Yearly.
type Period struct {
	Freq Frequency
	Year int
	Sub  int
}

var (
	quarterRe = regexp.MustCompile(`^(\d{4})-?Q([1-4])$`)
	monthRe   = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
	yearRe    = regexp.MustCompile(`^(\d{4})$`)
)

// Parse a period label in the native format of the frequency: "2019-Q1" (or
// "2019Q1") for Quarterly, "2019-01" for Monthly and "2019" for Yearly.
func Parse(label string, f Frequency) (Period, error) {
	s := strings.ToUpper(strings.TrimSpace(label))
	switch f {
	case Quarterly:
		m := quarterRe.FindStringSubmatch(s)
		if m == nil {
			return Period{}, fault.New(fault.Parse, "not a quarterly label: '%s'", label)
		}
		year, _ := strconv.Atoi(m[1])
		q, _ := strconv.Atoi(m[2])
		return Period{Freq: f, Year: year, Sub: q}, nil
	case Monthly:
		m := monthRe.FindStringSubmatch(s)
		if m == nil {
			return Period{}, fault.New(fault.Parse, "not a monthly label: '%s'", label)
		}
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 {
			return Period{}, fault.New(fault.Parse, "month out of range: '%s'", label)
		}
		return Period{Freq: f, Year: year, Sub: month}, nil
	case Yearly:
		m := yearRe.FindStringSubmatch(s)
		if m == nil {
			return Period{}, fault.New(fault.Parse, "not a yearly label: '%s'", label)
		}
		year, _ := strconv.Atoi(m[1])
		return Period{Freq: f, Year: year, Sub: 1}, nil
	}
	return Period{}, fault.New(fault.Config, "unsupported frequency: %s", f)
}

// String formats the period label accepted by SDMX startPeriod and endPeriod
// query parameters.
func (p Period) String() string {
	switch p.Freq {
	case Quarterly:
		return pad(p.Year, 4) + "-Q" + strconv.Itoa(p.Sub)
	case Monthly:
		return pad(p.Year, 4) + "-" + pad(p.Sub, 2)
	case Yearly:
		return pad(p.Year, 4)
	}
	return ""
}

func pad(n, width int) string {
	s := strconv.Itoa(n)
	for len(s) < width {
		s = "0" + s
	}
	return s
}

// Start is the first instant of the period in UTC.
func (p Period) Start() time.Time {
	month := time.January
	switch p.Freq {
	case Quarterly:
		month = time.Month((p.Sub-1)*3 + 1)
	case Monthly:
		month = time.Month(p.Sub)
	}
	return time.Date(p.Year, month, 1, 0, 0, 0, 0, time.UTC)
}

// index is the ordinal number of the period counted from year 0.
func (p Period) index() int {
	n, err := p.Freq.perYear()
	if err != nil {
		return 0
	}
	return p.Year*n + p.Sub - 1
}

func fromIndex(f Frequency, i int) Period {
	n, err := f.perYear()
	if err != nil {
		return Period{}
	}
	return Period{Freq: f, Year: i / n, Sub: i%n + 1}
}

// Next period of the same frequency.
func (p Period) Next() Period {
	return fromIndex(p.Freq, p.index()+1)
}

// Before compares two periods of the same frequency for strict inequality.
func (p Period) Before(p2 Period) bool {
	return p.index() < p2.index()
}

// StartOf parses the label and returns the first instant of its period.
func StartOf(label string, f Frequency) (time.Time, error) {
	p, err := Parse(label, f)
	if err != nil {
		return time.Time{}, err
	}
	return p.Start(), nil
}
