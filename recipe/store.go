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

package recipe

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/stockparfait/databuilder/db"
	"github.com/stockparfait/databuilder/fault"
	"github.com/stockparfait/databuilder/sdmx"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Getter fetches a URL. It is implemented by *sdmx.Client.
type Getter interface {
	Get(ctx context.Context, uri string, query url.Values, header http.Header) (*sdmx.Response, error)
}

var _ Getter = &sdmx.Client{}

// Store is a recipe tree persisted as a JSON file: groups of indicators, each
// indicator mapping SDMX dimension IDs to filter values.
//
// Every mutation is written to the file before returning. Groups removed
// through the Store stay removed for its lifetime, even if another writer puts
// them back into the file.
type Store struct {
	path     string
	defaults *Node
	root     *Node
	removed  map[string]struct{}
}

// NewStore opens the recipe file at path. A missing file is created with the
// defaults; a corrupt one is reported and replaced by the defaults.
func NewStore(ctx context.Context, path string, defaults *Node) (*Store, error) {
	s := &Store{
		path:     path,
		defaults: defaults.Copy(),
		removed:  make(map[string]struct{}),
	}
	root, err := s.read()
	switch {
	case err == nil:
		s.root = root
		return s, nil
	case errors.Is(err, os.ErrNotExist):
		logging.Infof(ctx, "creating recipe file %s with defaults", path)
	default:
		logging.Errorf(ctx, "resetting recipe file to defaults: %s", err.Error())
	}
	s.root = s.defaults.Copy()
	if err := s.Save(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path of the recipe file.
func (s *Store) Path() string { return s.path }

func (s *Store) read() (*Node, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Annotate(err, "failed to read recipe file '%s'", s.path)
	}
	n := Branch()
	if err := json.Unmarshal(data, n); err != nil {
		return nil, errors.Annotate(err, "failed to parse recipe file '%s'", s.path)
	}
	if n.IsLeaf() {
		return nil, errors.Reason("recipe file '%s' is not a JSON object", s.path)
	}
	return n, nil
}

// Save writes the current tree to the recipe file.
func (s *Store) Save() error {
	data, err := s.root.MarshalJSON()
	if err != nil {
		return fault.Wrap(fault.Persistence, err, "failed to serialize recipes")
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "    "); err != nil {
		return fault.Wrap(fault.Persistence, err, "failed to format recipes")
	}
	buf.WriteByte('\n')
	err = db.WriteFileAtomic(s.path, func(w io.Writer) error {
		_, err := w.Write(buf.Bytes())
		return err
	})
	if err != nil {
		return fault.Wrap(fault.Persistence, err, "failed to save recipes")
	}
	return nil
}

// Groups lists the names of the groups in the store.
func (s *Store) Groups() []string {
	return s.root.Keys()
}

// Load returns a copy of the group, refreshed from the recipe file: values in
// the file override those in memory. A missing or removed group is empty.
func (s *Store) Load(ctx context.Context, group string) *Node {
	if _, ok := s.removed[group]; ok {
		logging.Warningf(ctx, "recipe group %s has been removed", group)
		return Branch()
	}
	if disk, err := s.read(); err != nil {
		logging.Warningf(ctx, "using in-memory recipes: %s", err.Error())
	} else if g := disk.Get(group); g != nil && !g.IsLeaf() {
		s.root.Set(group, DeepMerge(s.root.Get(group), g))
	}
	g := s.root.Get(group)
	if g == nil || g.IsLeaf() {
		logging.Warningf(ctx, "recipe group %s not found", group)
		return Branch()
	}
	return g.Copy()
}

// Replace the group entirely and persist.
func (s *Store) Replace(group string, tree *Node) error {
	delete(s.removed, group)
	s.root.Set(group, tree.Copy())
	return s.Save()
}

// Merge overrides into the group and persist.
func (s *Store) Merge(group string, overrides *Node) error {
	delete(s.removed, group)
	base := s.root.Get(group)
	if base == nil {
		base = Branch()
	}
	s.root.Set(group, DeepMerge(base, overrides))
	return s.Save()
}

// Remove the group and persist.
func (s *Store) Remove(group string) error {
	s.removed[group] = struct{}{}
	s.root.Delete(group)
	return s.Save()
}

// UpdateFromURL records a sample series URL for each indicator of the group,
// fetches it and stores the dimensions of its series key into the indicator
// spec. Indicators which fail to fetch or parse are logged and skipped. The
// result is persisted.
func (s *Store) UpdateFromURL(ctx context.Context, getter Getter, group string, urls map[string]string) error {
	delete(s.removed, group)
	g := s.root.Get(group)
	if g == nil || g.IsLeaf() {
		g = Branch()
		s.root.Set(group, g)
	}
	accept, err := sdmx.XML.Accept()
	if err != nil {
		return err
	}
	header := http.Header{"Accept": {accept}}

	indicators := maps.Keys(urls)
	slices.Sort(indicators)
	var ctxErr error
	for _, ind := range indicators {
		if ctxErr = ctx.Err(); ctxErr != nil {
			break
		}
		spec := g.Get(ind)
		if spec == nil || spec.IsLeaf() {
			spec = Branch()
			g.Set(ind, spec)
		}
		uri := urls[ind]
		spec.SetLeaf(URLKey, uri)
		r, err := getter.Get(ctx, uri, nil, header)
		if err != nil {
			logging.Warningf(ctx, "skipping metadata for %s: %s", ind, err.Error())
			continue
		}
		key, err := sdmx.SeriesKey(r.Body)
		if err != nil {
			logging.Warningf(ctx, "skipping metadata for %s: %s", ind, err.Error())
			continue
		}
		for _, p := range key {
			spec.SetLeaf(p.ID, p.Value)
		}
		logging.Infof(ctx, "updated metadata for %s: %d dimensions", ind, len(key))
	}
	if err := s.Save(); err != nil {
		return err
	}
	if ctxErr != nil {
		return fault.Wrap(fault.Network, ctxErr, "metadata update interrupted")
	}
	return nil
}
