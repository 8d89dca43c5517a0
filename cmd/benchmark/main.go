// Benchmark tool for replaying monthly report datasets against Gradometer.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/reports.csv -url http://localhost:8080
//
// This tool:
//   1. Reads labeled monthly report rows (with expected risk tiers)
//   2. Sends each report to Gradometer for classification
//   3. Compares Gradometer's tier with the expected label
//   4. Calculates per-tier accuracy and throughput
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ReportRow represents one labeled row from the dataset
type ReportRow struct {
	ProjectName        string
	ProjectCode        string
	ReportPeriod       string
	SMRCompletion      float64
	GPRDelayPercent    float64
	GPRDelayDays       int
	DDUPayments        []float64
	GuaranteeExtension bool
	ExpectedTier       string
}

// ReportRequest is the Gradometer API request format
type ReportRequest struct {
	ProjectInfo ProjectInfo `json:"projectInfo"`
	Metrics     Metrics     `json:"metrics"`
}

type ProjectInfo struct {
	FullName     string `json:"fullName"`
	Code         string `json:"code"`
	ReportPeriod string `json:"reportPeriod"`
}

type Metrics struct {
	SMRCompletion      float64   `json:"smrCompletion"`
	GPRDelayPercent    float64   `json:"gprDelayPercent"`
	GPRDelayDays       int       `json:"gprDelayDays"`
	DDUPaymentsPercent []float64 `json:"dduPaymentsPercent,omitempty"`
	GuaranteeExtension bool      `json:"guaranteeExtension,omitempty"`
}

// IngestResponse is the Gradometer API response format
type IngestResponse struct {
	Month          string `json:"month"`
	Classification struct {
		Tier        string  `json:"tier"`
		Probability float64 `json:"probability"`
	} `json:"classification"`
}

// Stats tracks benchmark results
type Stats struct {
	Matched    int64 // Tier agreed with the label
	Mismatched int64

	CriticalExpected int64
	CriticalFound    int64
	WarningExpected  int64
	WarningFound     int64

	TotalProcessed   int64
	TotalErrors      int64
	ProcessingTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled reports CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Gradometer base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum reports to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each report result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/reports.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        GRADOMETER BENCHMARK - Report Classification           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:       %s\n", *csvPath)
	fmt.Printf("Gradometer URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:      %s\n", *tenantID)
	fmt.Printf("Workers:        %d\n", *workers)
	fmt.Printf("Limit:          %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Gradometer not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Gradometer is running:")
		fmt.Println("  go run cmd/gradometer/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Gradometer is healthy")

	fmt.Printf("\nReading report data from %s...\n", *csvPath)
	rows, err := readReportsCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d reports\n", len(rows))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	stats := runBenchmark(rows, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(stats, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Expected columns: project_name, project_code, report_period, smr,
// gpr_delay_percent, gpr_delay_days, ddu_m1, ddu_m2, ddu_m3,
// guarantee_extension, expected_tier
func readReportsCSV(path string, limit int) ([]ReportRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	field := func(record []string, name string) string {
		i, ok := colIndex[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []ReportRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		smr, _ := strconv.ParseFloat(field(record, "smr"), 64)
		delayPct, _ := strconv.ParseFloat(field(record, "gpr_delay_percent"), 64)
		delayDays, _ := strconv.Atoi(field(record, "gpr_delay_days"))

		var payments []float64
		for _, col := range []string{"ddu_m1", "ddu_m2", "ddu_m3"} {
			if v := field(record, col); v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					payments = append(payments, f)
				}
			}
		}

		rows = append(rows, ReportRow{
			ProjectName:        field(record, "project_name"),
			ProjectCode:        field(record, "project_code"),
			ReportPeriod:       field(record, "report_period"),
			SMRCompletion:      smr,
			GPRDelayPercent:    delayPct,
			GPRDelayDays:       delayDays,
			DDUPayments:        payments,
			GuaranteeExtension: field(record, "guarantee_extension") == "1",
			ExpectedTier:       strings.ToLower(field(record, "expected_tier")),
		})

		if limit > 0 && len(rows) >= limit {
			break
		}
	}

	return rows, nil
}

func runBenchmark(rows []ReportRow, baseURL, tenantID string, numWorkers int, verbose bool) *Stats {
	stats := &Stats{}

	work := make(chan ReportRow, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for row := range work {
				start := time.Now()
				result, err := ingestReport(client, baseURL, tenantID, row)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&stats.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&stats.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&stats.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", row.ProjectName, err)
					}
					continue
				}

				got := result.Classification.Tier
				switch row.ExpectedTier {
				case "critical":
					atomic.AddInt64(&stats.CriticalExpected, 1)
				case "warning":
					atomic.AddInt64(&stats.WarningExpected, 1)
				}
				switch got {
				case "critical":
					atomic.AddInt64(&stats.CriticalFound, 1)
				case "warning":
					atomic.AddInt64(&stats.WarningFound, 1)
				}

				if row.ExpectedTier == "" || got == row.ExpectedTier {
					atomic.AddInt64(&stats.Matched, 1)
				} else {
					atomic.AddInt64(&stats.Mismatched, 1)
				}

				if verbose {
					mark := "✓"
					if row.ExpectedTier != "" && got != row.ExpectedTier {
						mark = "✗"
					}
					name := row.ProjectName
					if len(name) > 20 {
						name = name[:20]
					}
					fmt.Printf("%s %-20s | SMR: %5.1f%% | Delay: %5.1f%% | Expected: %-8s | Got: %-8s (p=%.2f)\n",
						mark,
						name,
						row.SMRCompletion,
						row.GPRDelayPercent,
						row.ExpectedTier,
						got,
						result.Classification.Probability,
					)
				}
			}
		}()
	}

	for _, row := range rows {
		work <- row
	}
	close(work)

	wg.Wait()

	return stats
}

func ingestReport(client *http.Client, baseURL, tenantID string, row ReportRow) (*IngestResponse, error) {
	req := ReportRequest{
		ProjectInfo: ProjectInfo{
			FullName:     row.ProjectName,
			Code:         row.ProjectCode,
			ReportPeriod: row.ReportPeriod,
		},
		Metrics: Metrics{
			SMRCompletion:      row.SMRCompletion,
			GPRDelayPercent:    row.GPRDelayPercent,
			GPRDelayDays:       row.GPRDelayDays,
			DDUPaymentsPercent: row.DDUPayments,
			GuaranteeExtension: row.GuaranteeExtension,
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/reports", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result IngestResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(s *Stats, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:   %d\n", s.TotalProcessed)
	fmt.Printf("   Errors:            %d\n", s.TotalErrors)
	fmt.Printf("   Expected Critical: %d (got %d)\n", s.CriticalExpected, s.CriticalFound)
	fmt.Printf("   Expected Warning:  %d (got %d)\n", s.WarningExpected, s.WarningFound)

	fmt.Printf("\n📈 CLASSIFICATION AGREEMENT\n")
	fmt.Printf("   Matched:    %d\n", s.Matched)
	fmt.Printf("   Mismatched: %d\n", s.Mismatched)
	graded := s.Matched + s.Mismatched
	if graded > 0 {
		fmt.Printf("   Accuracy:   %.2f%%\n", 100*float64(s.Matched)/float64(graded))
	}

	fmt.Printf("\n⏱  PERFORMANCE\n")
	fmt.Printf("   Wall Time:     %s\n", duration.Round(time.Millisecond))
	if s.TotalProcessed > 0 {
		fmt.Printf("   Throughput:    %.1f reports/sec\n", float64(s.TotalProcessed)/duration.Seconds())
		fmt.Printf("   Mean Latency:  %.1f ms\n", float64(s.ProcessingTimeMs)/float64(s.TotalProcessed))
	}
	fmt.Println()
}
