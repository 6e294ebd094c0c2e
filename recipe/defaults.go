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
	_ "embed"
	"encoding/json"
)

// DefaultGroup is the name of the built-in recipe group.
const DefaultGroup = "QNADATA"

// DefaultBaseURL is the OECD quarterly national accounts dataflow, which the
// built-in group is written for.
const DefaultBaseURL = "https://sdmx.oecd.org/public/rest/data/OECD.SDD.NAD,DSD_NAMAIN1@DF_QNA,1.1/"

//go:embed defaults.json
var defaultsJSON []byte

// Defaults returns a fresh copy of the built-in recipe tree.
func Defaults() *Node {
	n := Branch()
	if err := json.Unmarshal(defaultsJSON, n); err != nil {
		panic(err)
	}
	return n
}
