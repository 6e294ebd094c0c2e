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
	"strconv"
	"strings"

	"github.com/stockparfait/databuilder/fault"
)

// Format of the response body.
type Format int

const (
	CSV          Format = iota + 1 // SDMX-CSV
	JSON                           // SDMX-JSON 2.0
	XML                            // SDMX-ML 2.1 generic data
	StructureXML                   // SDMX-ML 2.1 structure specific data
)

// ParseFormat converts a format name into Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return CSV, nil
	case "json":
		return JSON, nil
	case "xml":
		return XML, nil
	case "structure-xml":
		return StructureXML, nil
	}
	return 0, fault.New(fault.Config,
		"unsupported response format '%s'; must be one of: csv, json, xml", s)
}

func (f Format) String() string {
	switch f {
	case CSV:
		return "csv"
	case JSON:
		return "json"
	case XML:
		return "xml"
	case StructureXML:
		return "structure-xml"
	}
	return "Format(" + strconv.Itoa(int(f)) + ")"
}

// Set implements flag.Value.
func (f *Format) Set(s string) error {
	v, err := ParseFormat(s)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Accept is the value of the Accept header requesting this format.
func (f Format) Accept() (string, error) {
	switch f {
	case CSV:
		return "application/vnd.sdmx.data+csv;charset=utf-8", nil
	case JSON:
		return "application/vnd.sdmx.data+json;charset=utf-8;version=2", nil
	case XML:
		return "application/vnd.sdmx.genericdata+xml;charset=utf-8;version=2.1", nil
	case StructureXML:
		return "application/vnd.sdmx.structurespecificdata+xml;charset=utf-8;version=2.1", nil
	}
	return "", fault.New(fault.Config, "unsupported response format: %s", f)
}

// family is the syntax of the payload, as far as parsing is concerned.
type family int

const (
	familyCSV family = iota + 1
	familyJSON
	familyXML
)

func (f family) String() string {
	switch f {
	case familyCSV:
		return "csv"
	case familyJSON:
		return "json"
	case familyXML:
		return "xml"
	}
	return "unknown"
}

func (f Format) family() (family, error) {
	switch f {
	case CSV:
		return familyCSV, nil
	case JSON:
		return familyJSON, nil
	case XML, StructureXML:
		return familyXML, nil
	}
	return 0, fault.New(fault.Config, "unsupported response format: %s", f)
}

// sniff guesses the payload family from the first significant byte of the
// body. Anything that is neither XML nor JSON is assumed to be CSV.
func sniff(body []byte) family {
	for _, b := range body {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case 0xEF, 0xBB, 0xBF: // UTF-8 BOM
			continue
		case '<':
			return familyXML
		case '{', '[':
			return familyJSON
		}
		return familyCSV
	}
	return familyCSV
}
