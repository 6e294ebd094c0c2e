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

package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stockparfait/databuilder/builder"
	"github.com/stockparfait/databuilder/db"
	"github.com/stockparfait/databuilder/period"
	"github.com/stockparfait/databuilder/recipe"
	"github.com/stockparfait/databuilder/sdmx"
	"github.com/stockparfait/databuilder/table"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"

	toml "github.com/pelletier/go-toml/v2"
)

type Flags struct {
	CacheDir  string // default: ~/.databuilder
	Recipe    string // default: <cache>/recipe.json
	Group     string
	Start     string
	End       string
	Frequency period.Frequency
	Format    sdmx.Format
	ChunkSize int
	Interval  time.Duration
	BaseURL   string // overrides config.toml
	LogLevel  logging.Level
	// Exactly one of: fetch and/or merge, check, update-metadata, remove.
	Fetch          bool
	Merge          bool
	Check          bool // fetch a single period of every indicator and merge
	UpdateMetadata string // TOML file with indicator = "sample series URL"
	Remove         string // group to remove
	CSV            bool   // print CSV; default: text
	Summary        bool   // print indicator statistics instead of the dataset
}

func parseFlags(args []string) (*Flags, error) {
	var flags Flags
	fs := flag.NewFlagSet("databuilder", flag.ExitOnError)
	fs.StringVar(&flags.CacheDir, "cache",
		filepath.Join(os.Getenv("HOME"), ".databuilder"),
		"path to the recipe, config and extracts")
	fs.StringVar(&flags.Recipe, "recipe", "", "recipe file; default: <cache>/recipe.json")
	fs.StringVar(&flags.Group, "group", recipe.DefaultGroup, "recipe group")
	fs.StringVar(&flags.Start, "start", "", "first period, e.g. 2019-Q1")
	fs.StringVar(&flags.End, "end", "", "last period, e.g. 2024-Q4")
	flags.Frequency = period.Quarterly
	fs.Var(&flags.Frequency, "freq", "frequency: Q, M or Y")
	flags.Format = sdmx.CSV
	fs.Var(&flags.Format, "format", "response format: csv, json or xml")
	fs.IntVar(&flags.ChunkSize, "chunk", builder.DefaultChunkSize, "periods per request")
	fs.DurationVar(&flags.Interval, "interval", builder.DefaultRequestInterval,
		"minimum time between requests")
	fs.StringVar(&flags.BaseURL, "base-url", "", "dataflow URL")
	flags.LogLevel = logging.Info
	fs.Var(&flags.LogLevel, "log-level", "Log level: debug, info, warning, error")
	fs.BoolVar(&flags.Fetch, "fetch", false, "fetch the group's extracts")
	fs.BoolVar(&flags.Merge, "merge", false, "consolidate the group's extracts and print them")
	fs.BoolVar(&flags.Check, "check", false,
		"test the API and the recipe group on a single period (-start, default: first of 2024)")
	fs.StringVar(&flags.UpdateMetadata, "update-metadata", "",
		"TOML file mapping indicators to sample series URLs")
	fs.StringVar(&flags.Remove, "remove", "", "recipe group to remove")
	fs.BoolVar(&flags.CSV, "csv", false, "print in CSV format; default: text")
	fs.BoolVar(&flags.Summary, "summary", false, "print indicator statistics")

	err := fs.Parse(args)
	if err != nil {
		return nil, err
	}
	if flags.Recipe == "" {
		flags.Recipe = filepath.Join(flags.CacheDir, "recipe.json")
	}
	actions := 0
	if flags.Fetch || flags.Merge {
		actions++
	}
	if flags.Check {
		actions++
	}
	if flags.UpdateMetadata != "" {
		actions++
	}
	if flags.Remove != "" {
		actions++
	}
	if actions != 1 {
		return nil, errors.Reason(
			"expected exactly one of -fetch/-merge, -check, -update-metadata or -remove")
	}
	if flags.Fetch && (flags.Start == "" || flags.End == "") {
		return nil, errors.Reason("-fetch requires -start and -end")
	}
	return &flags, nil
}

type Config struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"` // 0 = default
	Retries        *int   `toml:"retries"`         // nil = default
}

// parseConfig reads <cache>/config.toml. The file is optional.
func parseConfig(cacheDir string) (*Config, error) {
	var c Config
	filePath := filepath.Join(cacheDir, "config.toml")
	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &c, nil
		}
		return nil, errors.Annotate(err, "failed to open config file %s", filePath)
	}
	defer f.Close()

	if err := toml.NewDecoder(f).Decode(&c); err != nil {
		return nil, errors.Annotate(err, "failed to read config file %s", filePath)
	}
	if c.TimeoutSeconds < 0 {
		return nil, errors.Reason("timeout_seconds must be non-negative in %s", filePath)
	}
	if c.Retries != nil && *c.Retries < 0 {
		return nil, errors.Reason("retries must be non-negative in %s", filePath)
	}
	return &c, nil
}

// parseURLs reads a TOML file of indicator = "URL" lines.
func parseURLs(filePath string) (map[string]string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Annotate(err, "failed to open %s", filePath)
	}
	defer f.Close()

	urls := make(map[string]string)
	if err := toml.NewDecoder(f).Decode(&urls); err != nil {
		return nil, errors.Annotate(err, "failed to read %s", filePath)
	}
	return urls, nil
}

func newClient(hc *http.Client, c *Config) *sdmx.Client {
	client := sdmx.NewClient(hc)
	if c.TimeoutSeconds > 0 {
		client.Timeout = time.Duration(c.TimeoutSeconds) * time.Second
	}
	if c.Retries != nil {
		client.Retries = *c.Retries
	}
	return client
}

func builderConfig(flags *Flags, c *Config) builder.Config {
	bc := builder.NewConfig()
	if c.BaseURL != "" {
		bc.BaseURL = c.BaseURL
	}
	if flags.BaseURL != "" {
		bc.BaseURL = flags.BaseURL
	}
	bc.Start = flags.Start
	bc.End = flags.End
	bc.Frequency = flags.Frequency
	bc.Format = flags.Format
	bc.ChunkSize = flags.ChunkSize
	bc.RequestInterval = flags.Interval
	return bc
}

func extractsDir(flags *Flags) string {
	return filepath.Join(flags.CacheDir, "extracts")
}

func fetch(ctx context.Context, flags *Flags, c *Config, client *sdmx.Client, group *recipe.Node) error {
	b := builder.NewBuilder(builderConfig(flags, c), client, db.NewDatabase(extractsDir(flags)))
	results, err := b.Fetch(ctx, group)
	if err != nil {
		return errors.Annotate(err, "failed to fetch group %s", flags.Group)
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return errors.Reason("failed to save %d of %d extracts", failed, len(results))
	}
	return nil
}

func printTable(tbl *table.Table, flags *Flags, w io.Writer) error {
	if flags.CSV {
		if err := tbl.WriteCSV(w, table.Params{}); err != nil {
			return errors.Annotate(err, "failed to print CSV")
		}
		return nil
	}
	if err := tbl.WriteText(w, table.Params{}); err != nil {
		return errors.Annotate(err, "failed to print text")
	}
	return nil
}

func merge(ctx context.Context, flags *Flags, group *recipe.Node, w io.Writer) error {
	d, err := builder.Consolidate(ctx, db.NewDatabase(extractsDir(flags)),
		group.Keys(), flags.Frequency)
	if err != nil {
		return errors.Annotate(err, "failed to consolidate group %s", flags.Group)
	}
	tbl := d.Table()
	if flags.Summary {
		tbl = d.SummaryTable()
	}
	return printTable(tbl, flags, w)
}

// checkYear is the year of the default period fetched by -check.
const checkYear = 2024

// check fetches a single period of every indicator in chunks of one period
// into <cache>/check, consolidates it and prints the summary. It fails when
// no indicator returns any data.
func check(ctx context.Context, flags *Flags, c *Config, client *sdmx.Client, group *recipe.Node, w io.Writer) error {
	bc := builderConfig(flags, c)
	if bc.Start == "" {
		bc.Start = period.Period{Freq: flags.Frequency, Year: checkYear, Sub: 1}.String()
	}
	bc.End = bc.Start
	bc.ChunkSize = 1
	database := db.NewDatabase(filepath.Join(flags.CacheDir, "check"))
	logging.Warningf(ctx, "checking %d indicators of %s on %s only, to stay within the API rate limits",
		group.Len(), flags.Group, bc.Start)

	results, err := builder.NewBuilder(bc, client, database).Fetch(ctx, group)
	if err != nil {
		return errors.Annotate(err, "check of group %s failed", flags.Group)
	}
	var empty []string
	for _, r := range results {
		if r.Err != nil {
			return errors.Annotate(r.Err, "check of group %s failed", flags.Group)
		}
		if r.Rows == 0 {
			empty = append(empty, r.Indicator)
		}
	}
	if len(empty) == len(results) {
		return errors.Reason("check of group %s failed: no indicator returned data", flags.Group)
	}
	if len(empty) > 0 {
		logging.Warningf(ctx, "no data for %s", strings.Join(empty, ", "))
	}
	d, err := builder.Consolidate(ctx, database, group.Keys(), flags.Frequency)
	if err != nil {
		return errors.Annotate(err, "failed to consolidate group %s", flags.Group)
	}
	logging.Infof(ctx, "check of group %s passed: dataset shape is %d x %d",
		flags.Group, len(d.Rows), len(d.Indicators)+2)
	return printTable(d.SummaryTable(), flags, w)
}

func run(ctx context.Context, flags *Flags, hc *http.Client, w io.Writer) error {
	config, err := parseConfig(flags.CacheDir)
	if err != nil {
		return errors.Annotate(err, "failed to parse config")
	}
	store, err := recipe.NewStore(ctx, flags.Recipe, recipe.Defaults())
	if err != nil {
		return errors.Annotate(err, "failed to open recipes")
	}
	client := newClient(hc, config)

	if flags.Remove != "" {
		return store.Remove(flags.Remove)
	}
	if flags.UpdateMetadata != "" {
		urls, err := parseURLs(flags.UpdateMetadata)
		if err != nil {
			return errors.Annotate(err, "failed to read metadata URLs")
		}
		return store.UpdateFromURL(ctx, client, flags.Group, urls)
	}
	group := store.Load(ctx, flags.Group)
	if group.Len() == 0 {
		return errors.Reason("recipe group %s is empty", flags.Group)
	}
	if flags.Check {
		return check(ctx, flags, config, client, group, w)
	}
	if flags.Fetch {
		if err := fetch(ctx, flags, config, client, group); err != nil {
			return err
		}
	}
	if flags.Merge {
		return merge(ctx, flags, group, w)
	}
	return nil
}

func main() {
	ctx := context.Background()
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		ctx = logging.Use(ctx, logging.DefaultGoLogger(logging.Info))
		logging.Errorf(ctx, "failed to parse flags: %s", err.Error())
		os.Exit(1)
	}
	ctx = logging.Use(ctx, logging.DefaultGoLogger(flags.LogLevel))

	if err := run(ctx, flags, http.DefaultClient, os.Stdout); err != nil {
		logging.Errorf(ctx, err.Error())
		os.Exit(1)
	}
}
