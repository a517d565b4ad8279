// Command report_parity replays report requests against two deployments and
// reports any divergence in the computed averages, letters or ranks.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// volatileKeys never take part in the comparison.
var volatileKeys = map[string]struct{}{
	"generated_at":       {},
	"meta":               {},
	"processing_time_ms": {},
}

type target struct {
	Path     string `json:"path"`
	Critical bool   `json:"critical"`
}

type config struct {
	Targets []target `json:"targets"`
}

type comparison struct {
	Target            target
	BaselineStatus    int
	CandidateStatus   int
	StatusMatch       bool
	Diffs             []string
	Error             error
	DurationBaseline  time.Duration
	DurationCandidate time.Duration
}

func main() {
	var (
		baselineBase  string
		candidateBase string
		targetsPath   string
		token         string
		tolerance     float64
		timeout       time.Duration
	)

	flag.StringVar(&baselineBase, "baseline", "http://localhost:8080/api/v1", "Baseline API base URL")
	flag.StringVar(&candidateBase, "candidate", "http://localhost:8081/api/v1", "Candidate API base URL")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "report_parity", "targets.json"), "Path to JSON targets file")
	flag.StringVar(&token, "token", os.Getenv("REPORT_PARITY_TOKEN"), "Bearer token sent to both deployments")
	flag.Float64Var(&tolerance, "tolerance", 1e-6, "Maximum absolute difference between two scores")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	var (
		comparisons  []comparison
		breaking     int
		optionalDiff int
	)

	for _, t := range targets {
		comp := compareTarget(client, baselineBase, candidateBase, token, tolerance, t)
		if comp.Error != nil || !comp.StatusMatch || len(comp.Diffs) > 0 {
			if t.Critical {
				breaking++
			} else {
				optionalDiff++
			}
		}
		comparisons = append(comparisons, comp)
	}

	printReport(comparisons)

	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optionalDiff)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return cfg.Targets, nil
}

func compareTarget(client *http.Client, baselineBase, candidateBase, token string, tolerance float64, tgt target) comparison {
	comp := comparison{Target: tgt}

	baseBody, baseStatus, baseDur, err := fetch(client, baselineBase, token, tgt.Path)
	if err != nil {
		comp.Error = fmt.Errorf("baseline request failed: %w", err)
		return comp
	}
	candBody, candStatus, candDur, err := fetch(client, candidateBase, token, tgt.Path)
	if err != nil {
		comp.Error = fmt.Errorf("candidate request failed: %w", err)
		return comp
	}

	comp.BaselineStatus = baseStatus
	comp.CandidateStatus = candStatus
	comp.DurationBaseline = baseDur
	comp.DurationCandidate = candDur
	comp.StatusMatch = baseStatus == candStatus

	var baseline, candidate interface{}
	if err := json.Unmarshal(baseBody, &baseline); err != nil {
		comp.Error = fmt.Errorf("decode baseline body: %w", err)
		return comp
	}
	if err := json.Unmarshal(candBody, &candidate); err != nil {
		comp.Error = fmt.Errorf("decode candidate body: %w", err)
		return comp
	}

	comp.Diffs = diffValues("$", baseline, candidate, tolerance)
	return comp
}

func fetch(client *http.Client, base, token, path string) ([]byte, int, time.Duration, error) {
	if client == nil {
		return nil, 0, 0, errors.New("nil client")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(base, "/")+path, nil)
	if err != nil {
		return nil, 0, 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, 0, err
	}
	return body, resp.StatusCode, time.Since(start), nil
}

// diffValues walks two decoded JSON documents and returns the paths that differ.
func diffValues(path string, a, b interface{}, tolerance float64) []string {
	switch av := a.(type) {
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok {
			return []string{fmt.Sprintf("%s: type mismatch", path)}
		}
		var diffs []string
		for _, key := range unionKeys(av, bv) {
			if _, skip := volatileKeys[key]; skip {
				continue
			}
			left, inA := av[key]
			right, inB := bv[key]
			if !inA || !inB {
				diffs = append(diffs, fmt.Sprintf("%s.%s: present on one side only", path, key))
				continue
			}
			diffs = append(diffs, diffValues(path+"."+key, left, right, tolerance)...)
		}
		return diffs
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok {
			return []string{fmt.Sprintf("%s: type mismatch", path)}
		}
		if len(av) != len(bv) {
			return []string{fmt.Sprintf("%s: length %d != %d", path, len(av), len(bv))}
		}
		var diffs []string
		for i := range av {
			diffs = append(diffs, diffValues(fmt.Sprintf("%s[%d]", path, i), av[i], bv[i], tolerance)...)
		}
		return diffs
	case float64:
		bv, ok := b.(float64)
		if !ok || math.Abs(av-bv) > tolerance {
			return []string{fmt.Sprintf("%s: %v != %v", path, a, b)}
		}
		return nil
	default:
		if a != b {
			return []string{fmt.Sprintf("%s: %v != %v", path, a, b)}
		}
		return nil
	}
}

func unionKeys(a, b map[string]interface{}) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printReport(results []comparison) {
	fmt.Println("Report Parity")
	fmt.Println("=============")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.StatusMatch || len(res.Diffs) > 0 {
			status = "DIFF"
		}
		fmt.Printf("[%s] GET %s\n", status, res.Target.Path)
		fmt.Printf("  Baseline: %d (%s)\n", res.BaselineStatus, res.DurationBaseline)
		fmt.Printf("  Candidate: %d (%s)\n", res.CandidateStatus, res.DurationCandidate)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
			continue
		}
		for _, d := range res.Diffs {
			fmt.Printf("  - %s\n", d)
		}
	}
}
