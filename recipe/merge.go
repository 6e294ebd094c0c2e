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
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Reserved keys of an indicator spec.
const (
	URLKey  = "URL"      // sample series URL recorded by metadata enrichment
	AreaKey = "REF_AREA" // '+'-separated list of countries
)

// DeepMerge returns a new tree with overrides applied on top of base. Branches
// are merged recursively; in any other case the override wins. Neither
// argument is modified.
func DeepMerge(base, overrides *Node) *Node {
	if overrides == nil {
		return base.Copy()
	}
	if base.IsLeaf() || overrides.IsLeaf() {
		return overrides.Copy()
	}
	res := base.Copy()
	for _, k := range overrides.keys {
		o := overrides.children[k]
		if b := res.Get(k); b != nil && !b.IsLeaf() && !o.IsLeaf() {
			res.Set(k, DeepMerge(b, o))
			continue
		}
		res.Set(k, o.Copy())
	}
	return res
}

// FilterValues lists the dimension values of an indicator spec in the
// declared order. The URL key and nested branches are not dimensions and are
// skipped.
func FilterValues(spec *Node) []string {
	var res []string
	for _, k := range spec.Keys() {
		c := spec.Get(k)
		if k == URLKey || !c.IsLeaf() {
			continue
		}
		res = append(res, c.Value())
	}
	return res
}

// FilterPath is the SDMX series key filter of an indicator spec, e.g.
// "Q..USA+GBR.S1".
func FilterPath(spec *Node) string {
	return strings.Join(FilterValues(spec), ".")
}

// Countries is the sorted union of REF_AREA values over all the indicators of
// a group.
func Countries(group *Node) []string {
	set := make(map[string]struct{})
	for _, ind := range group.Keys() {
		area := group.Get(ind).Get(AreaKey)
		if !area.IsLeaf() {
			continue
		}
		for _, c := range strings.Split(area.Value(), "+") {
			if c = strings.TrimSpace(c); c != "" {
				set[c] = struct{}{}
			}
		}
	}
	res := maps.Keys(set)
	slices.Sort(res)
	return res
}
