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
	"net/http"
	"strings"

	"github.com/stockparfait/databuilder/db"
	"github.com/stockparfait/databuilder/fault"
	"github.com/stockparfait/databuilder/recipe"
	"github.com/stockparfait/databuilder/sdmx"
	"github.com/stockparfait/logging"
	"golang.org/x/time/rate"
)

// Result of fetching a single indicator.
type Result struct {
	Indicator    string
	Chunks       int   // number of requested chunks
	FailedChunks int   // chunks which contributed no rows due to an error
	Rows         int   // observations written to the extract
	Err          error // failure to write the extract
}

// Builder fetches recipe groups into extracts in its database.
type Builder struct {
	config Config
	client recipe.Getter
	db     *db.Database
}

// NewBuilder creates a new Builder. The client is shared by all the requests.
func NewBuilder(config Config, client recipe.Getter, database *db.Database) *Builder {
	return &Builder{config: config, client: client, db: database}
}

// Config of the builder.
func (b *Builder) Config() Config { return b.config }

// limiter returns a limiter whose next token is a full request interval away.
// It is recreated after every chunk, so the interval is the pause between the
// completion of one request and the start of the next one, retries included.
func (b *Builder) limiter() *rate.Limiter {
	if b.config.RequestInterval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	l := rate.NewLimiter(rate.Every(b.config.RequestInterval), 1)
	l.Allow()
	return l
}

// Fetch downloads every indicator of the group, in the recipe order, and
// overwrites its extract. A chunk which fails to download or parse is logged
// and skipped; an indicator with no successful chunks gets an empty extract.
//
// Configuration errors are returned before any request is made. Otherwise the
// error is non-nil only when ctx is cancelled, in which case the results for
// the completed indicators are still returned.
func (b *Builder) Fetch(ctx context.Context, group *recipe.Node) ([]Result, error) {
	chunks, err := b.config.Plan()
	if err != nil {
		return nil, err
	}
	accept, err := b.config.Format.Accept()
	if err != nil {
		return nil, err
	}
	header := http.Header{"Accept": {accept}}
	logging.Infof(ctx, "fetching %d indicators in %d chunks for countries: %s",
		group.Len(), len(chunks), strings.Join(recipe.Countries(group), ", "))

	limiter := rate.NewLimiter(rate.Inf, 1)
	var results []Result
	for _, ind := range group.Keys() {
		spec := group.Get(ind)
		if spec.IsLeaf() {
			logging.Warningf(ctx, "skipping %s: not a filter spec", ind)
			continue
		}
		q := sdmx.NewQuery(b.config.BaseURL, recipe.FilterValues(spec)...)
		res := Result{Indicator: ind, Chunks: len(chunks)}
		var obs []db.Observation
		for _, c := range chunks {
			if err := limiter.Wait(ctx); err != nil {
				return results, fault.Wrap(fault.Network, err, "fetch interrupted at %s", ind)
			}
			rows, err := b.fetchChunk(ctx, q.Period(c.Start, c.End), header)
			limiter = b.limiter()
			if err != nil {
				if ctx.Err() != nil {
					return results, fault.Wrap(fault.Network, ctx.Err(),
						"fetch interrupted at %s", ind)
				}
				logging.Warningf(ctx, "%s [%s, %s]: %s", ind, c.Start, c.End, err.Error())
				res.FailedChunks++
				continue
			}
			obs = append(obs, rows...)
		}
		res.Rows = len(obs)
		if res.Err = b.db.WriteExtract(ind, obs); res.Err != nil {
			logging.Errorf(ctx, "%s: %s", ind, res.Err.Error())
		} else {
			logging.Infof(ctx, "%s: saved %d rows, %d of %d chunks failed",
				ind, res.Rows, res.FailedChunks, res.Chunks)
		}
		results = append(results, res)
	}
	return results, nil
}

func (b *Builder) fetchChunk(ctx context.Context, q *sdmx.Query, header http.Header) ([]db.Observation, error) {
	r, err := b.client.Get(ctx, q.URL(), q.Values(), header)
	if err != nil {
		return nil, err
	}
	t, err := sdmx.Normalize(r.Body, b.config.Format)
	if err != nil {
		return nil, fault.Wrap(fault.Parse, err, "%s", q)
	}
	p, ok := t.Project(sdmx.Canonical...)
	if !ok {
		return nil, fault.New(fault.Parse, "%s: response columns %v lack some of %v",
			q, t.Columns, sdmx.Canonical)
	}
	obs := make([]db.Observation, len(p.Rows))
	for i, row := range p.Rows {
		obs[i] = db.Observation{Area: row[0], Period: row[1], Value: row[2]}
	}
	return obs, nil
}

