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

// Package db stores per-indicator extracts: CSV files with one observation per
// row, keyed by country and period label.
package db

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/stockparfait/databuilder/fault"
	"github.com/stockparfait/errors"
)

// Extract file columns, in the order they are written.
const (
	AreaColumn   = "REF_AREA"
	PeriodColumn = "TIME_PERIOD"
	ValueColumn  = "OBS_VALUE"
)

// Columns of an extract file.
var Columns = []string{AreaColumn, PeriodColumn, ValueColumn}

// Observation is a single row of an extract. The value is kept as text, as
// received from the server; it may be empty.
type Observation struct {
	Area   string
	Period string
	Value  string
}

// Database is a directory of extract files.
type Database struct {
	dir string
}

// NewDatabase creates a Database rooted at dir. The directory is created on
// the first write.
func NewDatabase(dir string) *Database {
	return &Database{dir: dir}
}

// Dir is the root directory of the database.
func (db *Database) Dir() string { return db.dir }

// ExtractPath is the file name of the indicator's extract.
func (db *Database) ExtractPath(indicator string) (string, error) {
	if indicator == "" || indicator == "." || indicator == ".." ||
		strings.ContainsAny(indicator, `/\`) {
		return "", fault.New(fault.Config, "invalid indicator name: '%s'", indicator)
	}
	return filepath.Join(db.dir, indicator+".csv"), nil
}

// WriteFileAtomic writes the file via a temporary file in the same directory,
// which is then renamed to fileName. On any failure the existing file, if any,
// is left unchanged.
func WriteFileAtomic(fileName string, write func(w io.Writer) error) (err error) {
	dir := filepath.Dir(fileName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Annotate(err, "failed to create directory '%s'", dir)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(fileName)+".*.tmp")
	if err != nil {
		return errors.Annotate(err, "failed to create a temporary file in '%s'", dir)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()
	w := bufio.NewWriter(f)
	if err = write(w); err != nil {
		return errors.Annotate(err, "failed to write '%s'", fileName)
	}
	if err = w.Flush(); err != nil {
		return errors.Annotate(err, "failed to write '%s'", fileName)
	}
	if err = f.Chmod(0644); err != nil {
		return errors.Annotate(err, "failed to set permissions of '%s'", tmp)
	}
	if err = f.Sync(); err != nil {
		return errors.Annotate(err, "failed to sync '%s'", tmp)
	}
	if err = f.Close(); err != nil {
		return errors.Annotate(err, "failed to close '%s'", tmp)
	}
	if err = os.Rename(tmp, fileName); err != nil {
		return errors.Annotate(err, "failed to rename '%s' to '%s'", tmp, fileName)
	}
	return nil
}

// WriteExtract overwrites the indicator's extract with the observations.
func (db *Database) WriteExtract(indicator string, obs []Observation) error {
	fileName, err := db.ExtractPath(indicator)
	if err != nil {
		return err
	}
	err = WriteFileAtomic(fileName, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(Columns); err != nil {
			return err
		}
		for _, o := range obs {
			if err := cw.Write([]string{o.Area, o.Period, o.Value}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return fault.Wrap(fault.Persistence, err, "failed to save extract for %s", indicator)
	}
	return nil
}

// mapColumns maps the extract columns to their positions in the header.
func mapColumns(header []string) ([]int, error) {
	m := make([]int, len(Columns))
	for j, c := range Columns {
		m[j] = -1
		for i, h := range header {
			if strings.TrimSpace(h) == c {
				m[j] = i
				break
			}
		}
		if m[j] < 0 {
			return nil, errors.Reason("missing column %s in header %v", c, header)
		}
	}
	return m, nil
}

// ReadExtract loads the indicator's extract. The columns may be in any order,
// and other columns are ignored.
func (db *Database) ReadExtract(indicator string) ([]Observation, error) {
	fileName, err := db.ExtractPath(indicator)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fileName)
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, err,
			"failed to open file for reading: '%s'", fileName)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, err,
			"failed to read header from '%s'", fileName)
	}
	m, err := mapColumns(header)
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, err, "invalid extract '%s'", fileName)
	}
	var res []Observation
	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fault.Wrap(fault.Persistence, err,
				"failed to read line %d of '%s'", line, fileName)
		}
		get := func(j int) string {
			if m[j] < len(row) {
				return row[m[j]]
			}
			return ""
		}
		res = append(res, Observation{Area: get(0), Period: get(1), Value: get(2)})
	}
	return res, nil
}
