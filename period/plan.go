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

package period

import (
	"github.com/stockparfait/databuilder/fault"
	"github.com/stockparfait/errors"
)

// Chunk is an inclusive range of periods given by their labels.
type Chunk struct {
	Start string
	End   string
}

// Plan partitions the inclusive period range [start, end] into consecutive
// chunks of at most size periods each. Only the last chunk may be shorter.
func Plan(start, end string, f Frequency, size int) ([]Chunk, error) {
	if !f.Valid() {
		return nil, fault.New(fault.Config, "unsupported frequency: %s", f)
	}
	if size < 1 {
		return nil, fault.New(fault.Config, "chunk size = %d must be >= 1", size)
	}
	if start == "" || end == "" {
		return nil, fault.New(fault.Config, "both start and end periods are required")
	}
	s, err := Parse(start, f)
	if err != nil {
		return nil, fault.Wrap(fault.Config, err, "invalid start period")
	}
	e, err := Parse(end, f)
	if err != nil {
		return nil, fault.Wrap(fault.Config, err, "invalid end period")
	}
	if e.Before(s) {
		return nil, fault.Wrap(fault.Config,
			errors.Reason("%s is after %s", s, e), "invalid period range")
	}
	first, last := s.index(), e.index()
	chunks := make([]Chunk, 0, (last-first)/size+1)
	for i := first; i <= last; i += size {
		j := i + size - 1
		if j > last {
			j = last
		}
		chunks = append(chunks, Chunk{
			Start: fromIndex(f, i).String(),
			End:   fromIndex(f, j).String(),
		})
	}
	return chunks, nil
}
