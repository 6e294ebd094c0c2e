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
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stockparfait/databuilder/period"
	"github.com/stockparfait/databuilder/recipe"
	"github.com/stockparfait/databuilder/sdmx"
	"github.com/stockparfait/logging"
	"github.com/stockparfait/testutil"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(t *testing.T) {
	t.Parallel()

	tmpdir, tmpdirErr := os.MkdirTemp("", "test_databuilder")
	defer os.RemoveAll(tmpdir)

	Convey("Setup succeeded", t, func() {
		So(tmpdirErr, ShouldBeNil)
	})

	Convey("parseFlags", t, func() {
		Convey("with all the flags", func() {
			flags, err := parseFlags([]string{
				"-cache", "path/to/cache", "-group", "G", "-start", "2019-01",
				"-end", "2020-12", "-freq", "M", "-format", "json", "-chunk", "12",
				"-interval", "1s", "-base-url", "http://x/", "-log-level", "warning",
				"-fetch", "-merge", "-csv", "-summary"})
			So(err, ShouldBeNil)
			So(flags.CacheDir, ShouldEqual, "path/to/cache")
			So(flags.Recipe, ShouldEqual, filepath.Join("path/to/cache", "recipe.json"))
			So(flags.Group, ShouldEqual, "G")
			So(flags.Frequency, ShouldEqual, period.Monthly)
			So(flags.Format, ShouldEqual, sdmx.JSON)
			So(flags.ChunkSize, ShouldEqual, 12)
			So(flags.Interval, ShouldEqual, time.Second)
			So(flags.BaseURL, ShouldEqual, "http://x/")
			So(flags.LogLevel, ShouldEqual, logging.Warning)
			So(flags.Fetch && flags.Merge && flags.CSV && flags.Summary, ShouldBeTrue)
		})

		Convey("with defaults", func() {
			flags, err := parseFlags([]string{"-merge", "-recipe", "r.json"})
			So(err, ShouldBeNil)
			So(flags.Recipe, ShouldEqual, "r.json")
			So(flags.Group, ShouldEqual, recipe.DefaultGroup)
			So(flags.Frequency, ShouldEqual, period.Quarterly)
			So(flags.Format, ShouldEqual, sdmx.CSV)
			So(flags.ChunkSize, ShouldEqual, 100)
			So(flags.Interval, ShouldEqual, 5*time.Second)
		})

		Convey("rejects conflicting actions", func() {
			_, err := parseFlags([]string{"-merge", "-remove", "G"})
			So(err, ShouldNotBeNil)
			_, err = parseFlags([]string{})
			So(err, ShouldNotBeNil)
		})

		Convey("check is an action of its own", func() {
			flags, err := parseFlags([]string{"-check"})
			So(err, ShouldBeNil)
			So(flags.Check, ShouldBeTrue)
			_, err = parseFlags([]string{"-check", "-merge"})
			So(err, ShouldNotBeNil)
		})

		Convey("requires the range for fetch", func() {
			_, err := parseFlags([]string{"-fetch", "-start", "2020-Q1"})
			So(err, ShouldNotBeNil)
		})
	})

	Convey("parseConfig", t, func() {
		Convey("missing file means defaults", func() {
			c, err := parseConfig(filepath.Join(tmpdir, "nonexistent"))
			So(err, ShouldBeNil)
			So(c, ShouldResemble, &Config{})
		})

		Convey("reads the values", func() {
			dir := filepath.Join(tmpdir, "config")
			So(os.MkdirAll(dir, 0755), ShouldBeNil)
			So(testutil.WriteFile(filepath.Join(dir, "config.toml"), `base_url = "http://x/"
timeout_seconds = 3
retries = 0
`), ShouldBeNil)
			c, err := parseConfig(dir)
			So(err, ShouldBeNil)
			So(c.BaseURL, ShouldEqual, "http://x/")
			client := newClient(nil, c)
			So(client.Timeout, ShouldEqual, 3*time.Second)
			So(client.Retries, ShouldEqual, 0)
		})

		Convey("rejects bad values", func() {
			dir := filepath.Join(tmpdir, "badconfig")
			So(os.MkdirAll(dir, 0755), ShouldBeNil)
			So(testutil.WriteFile(filepath.Join(dir, "config.toml"), "retries = -1\n"), ShouldBeNil)
			_, err := parseConfig(dir)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("run", t, func() {
		ctx := context.Background()
		server := testutil.NewTestServer()
		defer server.Close()

		cache := filepath.Join(tmpdir, "run")
		So(os.MkdirAll(cache, 0755), ShouldBeNil)
		So(testutil.WriteFile(filepath.Join(cache, "config.toml"),
			`base_url = "`+server.URL()+`/data/"`+"\nretries = 0\n"), ShouldBeNil)
		recipeFile := filepath.Join(cache, "recipe.json")
		So(testutil.WriteFile(recipeFile, `{
  "TEST": {
    "gdp": {"FREQ": "Q", "REF_AREA": "USA+GBR"},
    "pop": {"FREQ": "Q", "REF_AREA": "USA"}
  }
}`), ShouldBeNil)

		Convey("fetch and merge", func() {
			server.ResponseBody = []string{
				"REF_AREA,TIME_PERIOD,OBS_VALUE\nUSA,2024-Q1,100\nGBR,2024-Q2,50\n",
				"REF_AREA,TIME_PERIOD,OBS_VALUE\nUSA,2024-Q1,3\n",
			}
			flags, err := parseFlags([]string{"-cache", cache, "-group", "TEST",
				"-start", "2024-Q1", "-end", "2024-Q2", "-interval", "0",
				"-fetch", "-merge", "-csv"})
			So(err, ShouldBeNil)
			var buf bytes.Buffer
			So(run(ctx, flags, server.Client(), &buf), ShouldBeNil)
			So(server.RequestPath, ShouldEqual, "/data/Q.USA")
			So("\n"+buf.String(), ShouldEqual, `
date,country,gdp,pop
2024-01-01,USA,100,3
2024-04-01,GBR,50,
`)

			Convey("and then summarize", func() {
				flags, err := parseFlags([]string{"-cache", cache, "-group", "TEST",
					"-merge", "-summary", "-csv"})
				So(err, ShouldBeNil)
				var buf bytes.Buffer
				So(run(ctx, flags, server.Client(), &buf), ShouldBeNil)
				So("\n"+buf.String(), ShouldEqual, `
indicator,count,missing,mean,min,max
gdp,2,0,75,50,100
pop,1,1,3,3,3
`)
			})
		})

		Convey("check the group on a single period", func() {
			server.ResponseBody = []string{"REF_AREA,TIME_PERIOD,OBS_VALUE\nUSA,2024-Q1,100\n"}
			flags, err := parseFlags([]string{"-cache", cache, "-group", "TEST",
				"-interval", "0", "-check", "-csv"})
			So(err, ShouldBeNil)
			var buf bytes.Buffer
			So(run(ctx, flags, server.Client(), &buf), ShouldBeNil)
			So(server.RequestPath, ShouldEqual, "/data/Q.USA")
			So(server.RequestQuery.Get("startPeriod"), ShouldEqual, "2024-Q1")
			So(server.RequestQuery.Get("endPeriod"), ShouldEqual, "2024-Q1")
			So("\n"+buf.String(), ShouldEqual, `
indicator,count,missing,mean,min,max
gdp,1,0,100,100,100
pop,1,0,100,100,100
`)
			_, err = os.Stat(filepath.Join(cache, "check", "gdp.csv"))
			So(err, ShouldBeNil)
		})

		Convey("check fails when no indicator has data", func() {
			server.ResponseStatus = []int{http.StatusNotFound}
			flags, err := parseFlags([]string{"-cache", cache, "-group", "TEST",
				"-interval", "0", "-check", "-start", "2023-Q4"})
			So(err, ShouldBeNil)
			err = run(ctx, flags, server.Client(), &bytes.Buffer{})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "no indicator returned data")
			So(server.RequestQuery.Get("startPeriod"), ShouldEqual, "2023-Q4")
		})

		Convey("update metadata", func() {
			server.ResponseBody = []string{`<Root><Series><SeriesKey>` +
				`<Value id="FREQ" value="A"/><Value id="SECTOR" value="S1"/>` +
				`</SeriesKey></Series></Root>`}
			urlsFile := filepath.Join(cache, "urls.toml")
			So(testutil.WriteFile(urlsFile, `gdp = "`+server.URL()+`/sample"`+"\n"), ShouldBeNil)
			flags, err := parseFlags([]string{"-cache", cache, "-group", "TEST",
				"-update-metadata", urlsFile})
			So(err, ShouldBeNil)
			So(run(ctx, flags, server.Client(), &bytes.Buffer{}), ShouldBeNil)

			s, err := recipe.NewStore(ctx, recipeFile, recipe.Branch())
			So(err, ShouldBeNil)
			gdp := s.Load(ctx, "TEST").Get("gdp")
			So(recipe.FilterPath(gdp), ShouldEqual, "A.USA+GBR.S1")
			So(gdp.Get(recipe.URLKey).Value(), ShouldEqual, server.URL()+"/sample")
		})

		Convey("remove a group", func() {
			flags, err := parseFlags([]string{"-cache", cache, "-remove", "TEST"})
			So(err, ShouldBeNil)
			So(run(ctx, flags, server.Client(), &bytes.Buffer{}), ShouldBeNil)

			s, err := recipe.NewStore(ctx, recipeFile, recipe.Branch())
			So(err, ShouldBeNil)
			So(s.Load(ctx, "TEST").Len(), ShouldEqual, 0)

			flags, err = parseFlags([]string{"-cache", cache, "-group", "TEST", "-merge"})
			So(err, ShouldBeNil)
			So(run(ctx, flags, server.Client(), &bytes.Buffer{}), ShouldNotBeNil)
		})
	})
}
