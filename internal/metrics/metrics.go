package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for the crawler and HTTP surface.
// This is intentionally minimal and in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	jobsTotal    = make(map[string]int64)
	fetchesTotal = make(map[fetchKey]int64)
	indexTotal   = make(map[indexKey]int64)
	seedsTotal   int64
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type fetchKey struct {
	Engine  string
	Success string
}

type indexKey struct {
	ContentType string
	Accepted    string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordJob counts a job reaching a terminal status.
func RecordJob(status string) {
	mu.Lock()
	defer mu.Unlock()
	jobsTotal[status]++
}

// RecordFetch counts a page fetch by engine and outcome.
func RecordFetch(engine string, success bool) {
	mu.Lock()
	defer mu.Unlock()
	fetchesTotal[fetchKey{Engine: engine, Success: boolLabel(success)}]++
}

// RecordIndex counts a quality-gate decision by content type.
func RecordIndex(contentType string, accepted bool) {
	mu.Lock()
	defer mu.Unlock()
	indexTotal[indexKey{ContentType: contentType, Accepted: boolLabel(accepted)}]++
}

// RecordSeeds counts discovery seed jobs created.
func RecordSeeds(count int) {
	if count <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	seedsTotal += int64(count)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP hakken_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE hakken_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		v := requestsTotal[k]
		fmt.Fprintf(&b, "hakken_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, v)
	}

	b.WriteString("# HELP hakken_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE hakken_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP hakken_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE hakken_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		fmt.Fprintf(&b, "hakken_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "hakken_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsCount[k])
	}

	b.WriteString("# HELP hakken_jobs_total Jobs reaching a terminal status\n")
	b.WriteString("# TYPE hakken_jobs_total counter\n")

	var statuses []string
	for s := range jobsTotal {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(&b, "hakken_jobs_total{status=\"%s\"} %d\n", s, jobsTotal[s])
	}

	b.WriteString("# HELP hakken_fetches_total Page fetches by engine and outcome\n")
	b.WriteString("# TYPE hakken_fetches_total counter\n")

	var fetchKeys []fetchKey
	for k := range fetchesTotal {
		fetchKeys = append(fetchKeys, k)
	}
	sort.Slice(fetchKeys, func(i, j int) bool {
		if fetchKeys[i].Engine != fetchKeys[j].Engine {
			return fetchKeys[i].Engine < fetchKeys[j].Engine
		}
		return fetchKeys[i].Success < fetchKeys[j].Success
	})
	for _, k := range fetchKeys {
		fmt.Fprintf(&b, "hakken_fetches_total{engine=\"%s\",success=\"%s\"} %d\n",
			k.Engine, k.Success, fetchesTotal[k])
	}

	b.WriteString("# HELP hakken_index_decisions_total Quality gate decisions by content type\n")
	b.WriteString("# TYPE hakken_index_decisions_total counter\n")

	var indexKeys []indexKey
	for k := range indexTotal {
		indexKeys = append(indexKeys, k)
	}
	sort.Slice(indexKeys, func(i, j int) bool {
		if indexKeys[i].ContentType != indexKeys[j].ContentType {
			return indexKeys[i].ContentType < indexKeys[j].ContentType
		}
		return indexKeys[i].Accepted < indexKeys[j].Accepted
	})
	for _, k := range indexKeys {
		fmt.Fprintf(&b, "hakken_index_decisions_total{content_type=\"%s\",accepted=\"%s\"} %d\n",
			k.ContentType, k.Accepted, indexTotal[k])
	}

	b.WriteString("# HELP hakken_discovery_seeds_total Seed jobs created by discovery\n")
	b.WriteString("# TYPE hakken_discovery_seeds_total counter\n")
	fmt.Fprintf(&b, "hakken_discovery_seeds_total %d\n", seedsTotal)

	return b.String()
}
