// Load generator for the placecached /places endpoint. Query points follow a
// Zipf distribution over a pool of coordinates scattered around a few city
// centers, so a small set of grid buckets stays hot the way real foot traffic
// does. Per-request samples go to CSV, the run summary to JSON.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

type Config struct {
	TargetURL      string
	Concurrency    int
	Duration       time.Duration
	ZipfS          float64
	ZipfV          float64
	PointCount     int
	RadiusMeters   int
	ForceRatio     float64
	OutputPrefix   string
	RequestTimeout time.Duration
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.TargetURL, "target", "http://localhost:8090/places", "placecached /places URL")
	flag.IntVar(&cfg.Concurrency, "concurrency", 32, "Concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 60*time.Second, "Test duration")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.IntVar(&cfg.PointCount, "points", 128, "Distinct query points in pool")
	flag.IntVar(&cfg.RadiusMeters, "radius", 3000, "Search radius in meters")
	flag.Float64Var(&cfg.ForceRatio, "force-ratio", 0.0, "Fraction of requests sent with force=true")
	flag.StringVar(&cfg.OutputPrefix, "out", "results/placecache", "Output file prefix (JSON/CSV)")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 15*time.Second, "Per-request timeout")
	flag.Parse()
	return cfg
}

type queryPoint struct{ Lat, Lng float64 }

func (p queryPoint) String() string {
	return fmt.Sprintf("%.5f,%.5f", p.Lat, p.Lng)
}

// makePoints builds a mix of hot points clustered near city centers and cold
// points scattered in a wide ring around them.
func makePoints(count int, r *rand.Rand) []queryPoint {
	centers := []orb.Point{
		{-122.4194, 37.7749}, // San Francisco
		{-122.2711, 37.8044}, // Oakland
		{-121.8863, 37.3382}, // San Jose
		{-122.2730, 37.8715}, // Berkeley
	}
	points := make([]queryPoint, 0, count)

	hotCount := int(math.Max(8, float64(count/4)))

	for i := 0; i < hotCount; i++ {
		c := centers[i%len(centers)]
		// scatter within ~1.5 km of the center
		p := geo.PointAtBearingAndDistance(c, r.Float64()*360, r.Float64()*1500)
		points = append(points, queryPoint{Lat: p.Lat(), Lng: p.Lon()})
	}

	for len(points) < count {
		c := centers[r.Intn(len(centers))]
		// cold points land 2 to 30 km out
		p := geo.PointAtBearingAndDistance(c, r.Float64()*360, 2000+r.Float64()*28000)
		points = append(points, queryPoint{Lat: p.Lat(), Lng: p.Lon()})
	}
	return points
}

type sample struct {
	Timestamp time.Time
	Latency   time.Duration
	Status    int
	ErrorMsg  string
	PointIdx  int
	Point     string
	Count     int
}

type summary struct {
	StartTime     time.Time `json:"start"`
	EndTime       time.Time `json:"end"`
	DurationSec   float64   `json:"duration_sec"`
	TotalRequests int64     `json:"total"`
	SuccessCount  int64     `json:"success"`
	ErrorCount    int64     `json:"errors"`
	ThroughputRPS float64   `json:"throughput_rps"`
	P50Ms         float64   `json:"p50_ms"`
	P95Ms         float64   `json:"p95_ms"`
	P99Ms         float64   `json:"p99_ms"`
	Concurrency   int       `json:"concurrency"`
	ZipfS         float64   `json:"zipf_s"`
	ZipfV         float64   `json:"zipf_v"`
	Points        int       `json:"points"`
	RadiusMeters  int       `json:"radius_m"`
	ForceRatio    float64   `json:"force_ratio"`
	TargetURL     string    `json:"target"`
}

type aggregatedResult struct {
	total   int64
	success int64
	errors  int64
	latMs   []float64
}

type placesResponse struct {
	Count int `json:"count"`
}

func main() {
	cfg := loadConfig()
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPrefix), 0o750); err != nil {
		log.Fatalf("mkdir results: %v", err)
	}
	prefix := fmt.Sprintf("%s_%s", cfg.OutputPrefix, time.Now().UTC().Format("20060102_150405Z"))

	seed := time.Now().UnixNano()
	r := rand.New(rand.NewSource(seed))

	points := makePoints(cfg.PointCount, r)
	if len(points) == 0 {
		log.Fatalf("no query points generated")
	}
	imax := uint64(len(points)) - 1

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 4 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:          1024,
			MaxIdleConnsPerHost:   256,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   4 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Timeout: cfg.RequestTimeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	csvPath := prefix + "_samples.csv"
	jsonPath := prefix + "_summary.json"
	csvFile, err := os.Create(filepath.Clean(csvPath))
	if err != nil {
		log.Printf("open csv: %v", err)
		return
	}
	defer func() { _ = csvFile.Close() }()
	csvWriter := csv.NewWriter(csvFile)

	samplesChan := make(chan sample, 4096)
	resultsChan := make(chan aggregatedResult, 1)
	go func() {
		_ = csvWriter.Write([]string{"timestamp", "latency_ms", "status", "error", "point_idx", "point", "places"})
		var total, successCount, errorCount int64
		latencies := make([]float64, 0, 1<<20)
		for s := range samplesChan {
			total++
			if s.ErrorMsg == "" && s.Status >= 200 && s.Status < 300 {
				successCount++
				latencies = append(latencies, float64(s.Latency.Microseconds())/1000.0)
			} else {
				errorCount++
			}
			_ = csvWriter.Write([]string{
				s.Timestamp.UTC().Format(time.RFC3339Nano),
				fmt.Sprintf("%.3f", float64(s.Latency.Microseconds())/1000.0),
				strconv.Itoa(s.Status),
				s.ErrorMsg,
				strconv.Itoa(s.PointIdx),
				s.Point,
				strconv.Itoa(s.Count),
			})
		}
		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			log.Printf("csv flush error: %v", err)
		}
		resultsChan <- aggregatedResult{total: total, success: successCount, errors: errorCount, latMs: latencies}
	}()

	startTime := time.Now()
	log.Printf("loadgen start target=%s dur=%s conc=%d zipf(s=%.2f,v=%.2f) points=%d radius=%dm force=%.2f",
		cfg.TargetURL, cfg.Duration, cfg.Concurrency, cfg.ZipfS, cfg.ZipfV, cfg.PointCount, cfg.RadiusMeters, cfg.ForceRatio)

	var wg sync.WaitGroup
	wg.Add(cfg.Concurrency)
	for workerID := 0; workerID < cfg.Concurrency; workerID++ {
		go func(id int) {
			defer wg.Done()

			rWorker := rand.New(rand.NewSource(seed + int64(id) + 1))
			zipfDist := rand.NewZipf(rWorker, cfg.ZipfS, cfg.ZipfV, imax)
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				v := zipfDist.Uint64()
				if v > uint64(math.MaxInt) {
					continue
				}
				idx := int(v)
				if idx >= len(points) {
					continue
				}
				pt := points[idx]

				u, _ := url.Parse(cfg.TargetURL)
				q := u.Query()
				q.Set("lat", strconv.FormatFloat(pt.Lat, 'f', 5, 64))
				q.Set("lng", strconv.FormatFloat(pt.Lng, 'f', 5, 64))
				q.Set("radius", strconv.Itoa(cfg.RadiusMeters))
				if cfg.ForceRatio > 0 && rWorker.Float64() < cfg.ForceRatio {
					q.Set("force", "true")
				}
				u.RawQuery = q.Encode()

				startReq := time.Now()
				req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
				req.Header.Set("Accept", "application/json")
				resp, err := httpClient.Do(req)
				latency := time.Since(startReq)

				result := sample{
					Timestamp: startReq,
					Latency:   latency,
					PointIdx:  idx,
					Point:     pt.String(),
				}

				if err != nil {
					result.ErrorMsg = err.Error()
				} else {
					result.Status = resp.StatusCode
					var pr placesResponse
					if decErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&pr); decErr == nil {
						result.Count = pr.Count
					}
					_, _ = io.Copy(io.Discard, resp.Body)
					_ = resp.Body.Close()
					if resp.StatusCode < 200 || resp.StatusCode >= 300 {
						result.ErrorMsg = fmt.Sprintf("status=%d", resp.StatusCode)
					}
				}

				select {
				case samplesChan <- result:
				case <-ctx.Done():
					return
				}
			}
		}(workerID)
	}

	go func() {
		<-ctx.Done()
		wg.Wait()
		close(samplesChan)
	}()

	aggResult := <-resultsChan
	endTime := time.Now()
	elapsed := endTime.Sub(startTime).Seconds()

	sort.Float64s(aggResult.latMs)
	p50 := percentile(aggResult.latMs, 50)
	p95 := percentile(aggResult.latMs, 95)
	p99 := percentile(aggResult.latMs, 99)

	runSummary := summary{
		StartTime:     startTime.UTC(),
		EndTime:       endTime.UTC(),
		DurationSec:   elapsed,
		TotalRequests: aggResult.total,
		SuccessCount:  aggResult.success,
		ErrorCount:    aggResult.errors,
		ThroughputRPS: float64(aggResult.total) / elapsed,
		P50Ms:         p50,
		P95Ms:         p95,
		P99Ms:         p99,
		Concurrency:   cfg.Concurrency,
		ZipfS:         cfg.ZipfS,
		ZipfV:         cfg.ZipfV,
		Points:        cfg.PointCount,
		RadiusMeters:  cfg.RadiusMeters,
		ForceRatio:    cfg.ForceRatio,
		TargetURL:     cfg.TargetURL,
	}

	jsonFile, err := os.Create(filepath.Clean(jsonPath))
	if err == nil {
		enc := json.NewEncoder(jsonFile)
		enc.SetIndent("", "  ")
		_ = enc.Encode(runSummary)
		_ = jsonFile.Close()
	}

	log.Printf("done: total=%d succ=%d err=%d thr=%.2f rps p50=%.1fms p95=%.1fms p99=%.1fms",
		aggResult.total, aggResult.success, aggResult.errors, runSummary.ThroughputRPS, p50, p95, p99)
	log.Printf("wrote %s and %s", jsonPath, csvPath)
}

func percentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sortedValues[0]
	}
	if p >= 100 {
		return sortedValues[len(sortedValues)-1]
	}
	k := (p / 100.0) * float64(len(sortedValues)-1)
	f := math.Floor(k)
	i := int(f)
	if i >= len(sortedValues)-1 {
		return sortedValues[len(sortedValues)-1]
	}
	d := k - f
	return sortedValues[i]*(1-d) + sortedValues[i+1]*d
}
