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

package table

import (
	"bytes"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTable(t *testing.T) {
	t.Parallel()

	Convey("Table works", t, func() {
		tbl := NewTable("date", "country", "real_gdp")
		tbl.AddRow(Cells{"2024-01-01", "USA", "100"}, Cells{"2024-04-01", "GBR", ""})
		headless := NewTable()
		headless.AddRow(tbl.Rows...)

		Convey("as CSV", func() {
			var buf bytes.Buffer
			So(tbl.WriteCSV(&buf, Params{}), ShouldBeNil)
			So("\n"+buf.String(), ShouldEqual, `
date,country,real_gdp
2024-01-01,USA,100
2024-04-01,GBR,
`)
		})

		Convey("as CSV with a limit and no header", func() {
			var buf bytes.Buffer
			So(tbl.WriteCSV(&buf, Params{Rows: 1, NoHeader: true}), ShouldBeNil)
			So(buf.String(), ShouldEqual, "2024-01-01,USA,100\n")
		})

		Convey("as text", func() {
			var buf bytes.Buffer
			So(tbl.WriteText(&buf, Params{}), ShouldBeNil)
			So("\n"+buf.String(), ShouldEqual, `
      date | country | real_gdp
---------- | ------- | --------
2024-01-01 |     USA |      100
2024-04-01 |     GBR |         
`)
		})

		Convey("as headless clipped text", func() {
			var buf bytes.Buffer
			So(headless.WriteText(&buf, Params{Rows: 1, MaxColWidth: 4}), ShouldBeNil)
			So(buf.String(), ShouldEqual, "20.. | USA | 100\n")
		})

		Convey("rejects a bad width", func() {
			var buf bytes.Buffer
			So(tbl.WriteText(&buf, Params{MaxColWidth: 2}), ShouldNotBeNil)
		})

		Convey("rejects ragged rows", func() {
			tbl.AddRow(Cells{"too", "short"})
			var buf bytes.Buffer
			So(tbl.WriteCSV(&buf, Params{}), ShouldNotBeNil)
			So(tbl.WriteText(&buf, Params{}), ShouldNotBeNil)
		})

		Convey("empty table writes nothing", func() {
			var buf bytes.Buffer
			So(NewTable().WriteText(&buf, Params{}), ShouldBeNil)
			So(buf.Len(), ShouldEqual, 0)
		})
	})
}
