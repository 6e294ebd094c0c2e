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

// Package sdmx implements a minimal client for SDMX REST data APIs, such as
// the OECD Data Explorer at https://sdmx.oecd.org/public/rest/data/ .
//
// A data query selects a dataflow (part of the base URL) and a series key
// filter: a dot-separated list of dimension values in the order of the
// dataflow's data structure, where an empty value is a wildcard and '+'
// separates alternatives, e.g. "Q..USA+GBR.S1". The time range is given by the
// startPeriod and endPeriod query parameters.
//
// The server returns data in one of several formats selected by the Accept
// header: SDMX-CSV, SDMX-JSON or SDMX-ML. Normalize converts any of them into a
// flat Table with one row per observation, which is then projected onto the
// Canonical columns.
//
// Large requests are rate limited and may time out on the server side, so
// callers are expected to split the time range into chunks and pace their
// requests. The Client transparently retries transient failures.
package sdmx
