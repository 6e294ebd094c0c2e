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

// Package builder fetches recipe groups into per-indicator extracts and
// consolidates the extracts into a single dataset keyed by date and country.
package builder

import (
	"time"

	"github.com/stockparfait/databuilder/fault"
	"github.com/stockparfait/databuilder/period"
	"github.com/stockparfait/databuilder/recipe"
	"github.com/stockparfait/databuilder/sdmx"
)

// Defaults for Config.
const (
	DefaultChunkSize       = 100
	DefaultRequestInterval = 5 * time.Second
)

// Config of a fetch run.
type Config struct {
	BaseURL         string // dataflow URL; the filter path is appended to it
	Start           string // first period label, inclusive
	End             string // last period label, inclusive
	Frequency       period.Frequency
	Format          sdmx.Format
	ChunkSize       int           // periods per request
	RequestInterval time.Duration // minimum time between consecutive requests
}

// NewConfig creates a Config with default values for the built-in recipe.
// Start and End must still be set.
func NewConfig() Config {
	return Config{
		BaseURL:         recipe.DefaultBaseURL,
		Frequency:       period.Quarterly,
		Format:          sdmx.CSV,
		ChunkSize:       DefaultChunkSize,
		RequestInterval: DefaultRequestInterval,
	}
}

// Plan validates the config and splits the period range into chunks. All
// errors are fault.Config.
func (c *Config) Plan() ([]period.Chunk, error) {
	if c.BaseURL == "" {
		return nil, fault.New(fault.Config, "base URL is required")
	}
	if _, err := c.Format.Accept(); err != nil {
		return nil, err
	}
	if c.RequestInterval < 0 {
		return nil, fault.New(fault.Config, "request interval must be non-negative: %s",
			c.RequestInterval)
	}
	return period.Plan(c.Start, c.End, c.Frequency, c.ChunkSize)
}
