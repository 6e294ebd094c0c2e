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
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stockparfait/databuilder/db"
	"github.com/stockparfait/databuilder/fault"
	"github.com/stockparfait/databuilder/period"
	"github.com/stockparfait/databuilder/recipe"
	"github.com/stockparfait/databuilder/sdmx"
	"github.com/stockparfait/testutil"

	. "github.com/smartystreets/goconvey/convey"
)

func testGroup(js string) *recipe.Node {
	n := recipe.Branch()
	if err := n.UnmarshalJSON([]byte(js)); err != nil {
		panic(err)
	}
	return n
}

func testConfig(baseURL string) Config {
	c := NewConfig()
	c.BaseURL = baseURL
	c.Start = "2024-Q1"
	c.End = "2024-Q2"
	c.ChunkSize = 1
	c.RequestInterval = 0
	return c
}

func testClient(hc *http.Client) *sdmx.Client {
	c := sdmx.NewClient(hc)
	c.Retries = 0
	return c
}

// recorder is an httptest handler recording request URLs and times, and
// answering with the body for the request path, or 404.
type recorder struct {
	mu     sync.Mutex
	bodies map[string]string
	urls   []string
	times  []time.Time
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.urls = append(r.urls, req.URL.String())
	r.times = append(r.times, time.Now())
	body, ok := r.bodies[req.URL.Path]
	r.mu.Unlock()
	if !ok {
		http.NotFound(w, req)
		return
	}
	w.Write([]byte(body))
}

func TestFetch(t *testing.T) {
	t.Parallel()
	tmpdir, tmpdirErr := ioutil.TempDir("", "testfetch")
	defer os.RemoveAll(tmpdir)

	Convey("Test setup succeeded", t, func() {
		So(tmpdirErr, ShouldBeNil)
	})

	Convey("Fetch works", t, func() {
		ctx := context.Background()
		group := testGroup(`{
  "gdp": {"FREQ": "Q", "REF_AREA": "USA", "URL": "ignored"},
  "pop": {"FREQ": "Q", "REF_AREA": "GBR+JPN", "SECTOR": ""}
}`)

		Convey("with the test server", func() {
			server := testutil.NewTestServer()
			defer server.Close()
			server.ResponseBody = []string{
				"REF_AREA,TIME_PERIOD,OBS_VALUE\nUSA,2024-Q1,100\n",
				"FOO,BAR\n1,2\n",
				"<Root/>",
				"DATAFLOW,REF_AREA,TIME_PERIOD,OBS_VALUE\nDF,GBR,2024-Q2,5\nDF,JPN,2024-Q2,NaN\n",
			}
			database := db.NewDatabase(filepath.Join(tmpdir, "testserver"))
			b := NewBuilder(testConfig(server.URL()+"/data/"), testClient(server.Client()), database)
			res, err := b.Fetch(ctx, group)
			So(err, ShouldBeNil)
			So(res, ShouldResemble, []Result{
				{Indicator: "gdp", Chunks: 2, FailedChunks: 1, Rows: 1},
				{Indicator: "pop", Chunks: 2, FailedChunks: 1, Rows: 2},
			})
			So(server.RequestPath, ShouldEqual, "/data/Q.GBR+JPN.")
			So(server.RequestQuery.Get("startPeriod"), ShouldEqual, "2024-Q2")
			So(server.RequestQuery.Get("endPeriod"), ShouldEqual, "2024-Q2")
			So(server.RequestQuery.Get("dimensionAtObservation"), ShouldEqual, "TIME_PERIOD")

			gdp, err := database.ReadExtract("gdp")
			So(err, ShouldBeNil)
			So(gdp, ShouldResemble, []db.Observation{{Area: "USA", Period: "2024-Q1", Value: "100"}})
			pop, err := database.ReadExtract("pop")
			So(err, ShouldBeNil)
			So(pop, ShouldResemble, []db.Observation{
				{Area: "GBR", Period: "2024-Q2", Value: "5"},
				{Area: "JPN", Period: "2024-Q2", Value: "NaN"},
			})
		})

		rec := &recorder{bodies: map[string]string{
			"/data/Q.USA": "REF_AREA,TIME_PERIOD,OBS_VALUE\nUSA,2024-Q1,1\n",
		}}
		server := httptest.NewServer(rec)
		defer server.Close()
		database := db.NewDatabase(filepath.Join(tmpdir, "httptest"))
		cfg := testConfig(server.URL + "/data/")

		Convey("writes an empty extract when all chunks fail", func() {
			b := NewBuilder(cfg, testClient(server.Client()), database)
			res, err := b.Fetch(ctx, group)
			So(err, ShouldBeNil)
			So(res[1], ShouldResemble, Result{Indicator: "pop", Chunks: 2, FailedChunks: 2})
			fileName, err := database.ExtractPath("pop")
			So(err, ShouldBeNil)
			data, err := os.ReadFile(fileName)
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "REF_AREA,TIME_PERIOD,OBS_VALUE\n")
		})

		Convey("sends the Accept header of the format", func() {
			var accept string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				accept = r.Header.Get("Accept")
				w.Write([]byte(`{"dataSets": [], "structure": {}}`))
			}))
			defer server.Close()
			cfg := testConfig(server.URL + "/")
			cfg.Format = sdmx.JSON
			cfg.End = cfg.Start
			b := NewBuilder(cfg, testClient(server.Client()), database)
			res, err := b.Fetch(ctx, testGroup(`{"one": {"FREQ": "Q"}}`))
			So(err, ShouldBeNil)
			So(accept, ShouldEqual, "application/vnd.sdmx.data+json;charset=utf-8;version=2")
			So(res[0].FailedChunks, ShouldEqual, 1) // no canonical columns
		})

		Convey("paces the requests", func() {
			cfg.RequestInterval = 40 * time.Millisecond
			b := NewBuilder(cfg, testClient(server.Client()), database)
			_, err := b.Fetch(ctx, group)
			So(err, ShouldBeNil)
			So(len(rec.times), ShouldEqual, 4)
			for i := 1; i < len(rec.times); i++ {
				So(rec.times[i].Sub(rec.times[i-1]), ShouldBeGreaterThanOrEqualTo, 30*time.Millisecond)
			}
		})

		Convey("pauses after slow requests", func() {
			var mu sync.Mutex
			var arrivals []time.Time
			slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				arrivals = append(arrivals, time.Now())
				mu.Unlock()
				time.Sleep(50 * time.Millisecond)
				w.Write([]byte("REF_AREA,TIME_PERIOD,OBS_VALUE\nUSA,2024-Q1,1\n"))
			}))
			defer slow.Close()

			cfg := testConfig(slow.URL + "/data/")
			cfg.RequestInterval = 40 * time.Millisecond
			b := NewBuilder(cfg, testClient(slow.Client()), database)
			_, err := b.Fetch(ctx, testGroup(`{"one": {"FREQ": "Q"}}`))
			So(err, ShouldBeNil)
			So(len(arrivals), ShouldEqual, 2)
			So(arrivals[1].Sub(arrivals[0]), ShouldBeGreaterThanOrEqualTo, 80*time.Millisecond)
		})

		Convey("rejects invalid configs before any request", func() {
			for _, f := range []func(c *Config){
				func(c *Config) { c.BaseURL = "" },
				func(c *Config) { c.Frequency = period.Frequency(0) },
				func(c *Config) { c.Format = sdmx.Format(0) },
				func(c *Config) { c.Start = "" },
				func(c *Config) { c.Start, c.End = c.End, c.Start },
				func(c *Config) { c.ChunkSize = 0 },
				func(c *Config) { c.RequestInterval = -time.Second },
			} {
				c := cfg
				f(&c)
				_, err := NewBuilder(c, testClient(server.Client()), database).Fetch(ctx, group)
				So(fault.Is(err, fault.Config), ShouldBeTrue)
			}
			So(len(rec.urls), ShouldEqual, 0)
		})

		Convey("stops when cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			b := NewBuilder(cfg, testClient(server.Client()), database)
			res, err := b.Fetch(cctx, group)
			So(fault.Is(err, fault.Network), ShouldBeTrue)
			So(len(res), ShouldEqual, 0)
		})

		Convey("reports extract write failures per indicator", func() {
			blocker := filepath.Join(tmpdir, "blocker")
			So(testutil.WriteFile(blocker, "file"), ShouldBeNil)
			b := NewBuilder(cfg, testClient(server.Client()), db.NewDatabase(blocker))
			res, err := b.Fetch(ctx, group)
			So(err, ShouldBeNil)
			So(len(res), ShouldEqual, 2)
			So(fault.Is(res[0].Err, fault.Persistence), ShouldBeTrue)
			So(res[0].Rows, ShouldEqual, 1)
			So(strings.Join(rec.urls, " "), ShouldContainSubstring, "/data/Q.USA?")
		})
	})
}
