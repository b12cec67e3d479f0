package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	idempotencyHeader = "Idempotency-Key"
	operatorHeader    = "X-Operator"
	defaultPriceMinor = int64(3500)

	// Тела ответов регистратора, которые воспроизводит нагрузочный сценарий:
	// успешная регистрация и неоднозначный ответ, порождающий pending-запись.
	successBody   = `{"status":"success","entityid":"981190"}`
	ambiguousBody = `{"status":"error","message":"Order locked for processing"}`
)

type loadMode string

const (
	modeAttempt       loadMode = "attempt"
	modeAttemptFetch  loadMode = "attempt-fetch"
	modeAttemptVerify loadMode = "attempt-verify"
)

type config struct {
	addr          string
	total         int
	totalSet      bool
	duration      time.Duration
	concurrency   int
	connections   int
	timeout       time.Duration
	mode          loadMode
	ambiguousRate int
	verifyRate    int
	tld           string
	priceMinor    int64
	currency      string
	customerTag   string
	outputPath    string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

type methodStats struct {
	calls     int64
	success   int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{
		methods: make(map[string]*methodStats),
	}
}

// record учитывает один вызов: status 0 означает транспортную ошибку,
// удачей считается любой ответ ниже 400.
func (c *collector) record(method string, latency time.Duration, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[method]
	if !ok {
		stats = &methodStats{
			codes: make(map[string]int64),
		}
		c.methods[method] = stats
	}

	stats.calls++
	if statusOK(status) {
		stats.success++
	} else {
		stats.failed++
	}
	stats.codes[codeLabel(status)]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) snapshot(name string) (methodReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[name]
	if !ok {
		return methodReport{}, false
	}

	codesCopy := make(map[string]int64, len(stats.codes))
	for code, count := range stats.codes {
		codesCopy[code] = count
	}

	return methodReport{
		Calls:     stats.calls,
		Success:   stats.success,
		Failed:    stats.failed,
		ErrorRate: ratio(stats.failed, stats.calls),
		Codes:     codesCopy,
		LatencyMs: buildLatencySummary(stats.latencies),
	}, true
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}

	scenarioStats := c.methods["scenario"]
	if scenarioStats != nil {
		result.TotalScenarios = scenarioStats.calls
		result.SuccessScenarios = scenarioStats.success
		result.FailedScenarios = scenarioStats.failed
		result.ErrorRate = ratio(scenarioStats.failed, scenarioStats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenarioStats.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		codesCopy := make(map[string]int64, len(stats.codes))
		for code, count := range stats.codes {
			codesCopy[code] = count
		}
		result.Methods[name] = methodReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Codes:     codesCopy,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

func parseConfig() (config, error) {
	var cfg config
	var modeValue string
	var timeoutValue string
	var durationValue string

	flag.StringVar(&cfg.addr, "addr", "http://localhost:8080", "base URL of the reconciliation HTTP API")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.IntVar(&cfg.connections, "connections", 20, "number of HTTP clients with independent connection pools")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	flag.StringVar(&modeValue, "mode", string(modeAttempt), "load mode: attempt | attempt-fetch | attempt-verify")
	flag.IntVar(&cfg.ambiguousRate, "ambiguous-rate", 50, "share of attempts with an ambiguous registrar response in percent (0..100)")
	flag.IntVar(&cfg.verifyRate, "verify-rate", 0, "verify probability in percent for attempt-fetch mode (0..100)")
	flag.StringVar(&cfg.tld, "tld", "com", "TLD of generated domain names")
	flag.Int64Var(&cfg.priceMinor, "price-minor", defaultPriceMinor, "domain price in minor units")
	flag.StringVar(&cfg.currency, "currency", "USD", "domain price currency")
	flag.StringVar(&cfg.customerTag, "customer-tag", "load", "order id prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.connections <= 0 {
		return cfg, errors.New("connections must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.priceMinor <= 0 {
		return cfg, errors.New("price-minor must be > 0")
	}
	if cfg.ambiguousRate < 0 || cfg.ambiguousRate > 100 {
		return cfg, errors.New("ambiguous-rate must be between 0 and 100")
	}
	if cfg.verifyRate < 0 || cfg.verifyRate > 100 {
		return cfg, errors.New("verify-rate must be between 0 and 100")
	}
	if strings.TrimSpace(cfg.addr) == "" {
		return cfg, errors.New("addr is required")
	}
	if strings.TrimSpace(cfg.tld) == "" {
		return cfg, errors.New("tld is required")
	}
	if strings.TrimSpace(cfg.currency) == "" {
		return cfg, errors.New("currency is required")
	}
	if strings.TrimSpace(cfg.customerTag) == "" {
		return cfg, errors.New("customer-tag is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeAttempt:
		return modeAttempt, nil
	case modeAttemptFetch:
		return modeAttemptFetch, nil
	case modeAttemptVerify:
		return modeAttemptVerify, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	clients := make([]*http.Client, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		clients = append(clients, &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: cfg.concurrency,
			},
		})
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		client := clients[workerID%len(clients)]
		go func(cli *http.Client) {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(cli, cfg, id, runID, col); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}(client)
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(startedAt, duration)
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

type registrarResponsePayload struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
}

type attemptPayload struct {
	OrderID           string                   `json:"order_id"`
	DomainName        string                   `json:"domain_name"`
	PriceMinor        int64                    `json:"price_minor"`
	Currency          string                   `json:"currency"`
	RegistrationYears int32                    `json:"registration_years"`
	CustomerID        string                   `json:"customer_id"`
	ContactID         string                   `json:"contact_id"`
	Response          registrarResponsePayload `json:"response"`
}

type attemptReply struct {
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason"`
	PendingID string `json:"pending_id"`
}

type verifyPayload struct {
	IDs []string `json:"ids"`
}

func runScenario(
	client *http.Client,
	cfg config,
	index int,
	runID string,
	col *collector,
) error {
	scenarioStart := time.Now()
	scenarioStatus := http.StatusOK
	defer func() {
		col.record("scenario", time.Since(scenarioStart), scenarioStatus)
	}()

	ambiguous := isAmbiguousScenario(index, cfg.ambiguousRate)
	response := registrarResponsePayload{StatusCode: 200, Body: successBody}
	if ambiguous {
		response = registrarResponsePayload{StatusCode: 200, Body: ambiguousBody}
	}

	payload := attemptPayload{
		OrderID:           fmt.Sprintf("%s-%s-%d", cfg.customerTag, runID, index),
		DomainName:        fmt.Sprintf("lt-%s-%d.%s", runID, index, cfg.tld),
		PriceMinor:        cfg.priceMinor,
		Currency:          cfg.currency,
		RegistrationYears: 1,
		CustomerID:        fmt.Sprintf("%s-customer", cfg.customerTag),
		ContactID:         fmt.Sprintf("%s-contact", cfg.customerTag),
		Response:          response,
	}

	attemptKey := fmt.Sprintf("lt-attempt-%s-%d", runID, index)
	reply, status, err := callRecordAttempt(client, cfg, payload, attemptKey, col)
	if err != nil || !statusOK(status) {
		scenarioStatus = status
		if err != nil {
			return err
		}
		return fmt.Errorf("record attempt returned status %d", status)
	}
	if ambiguous && reply.PendingID == "" {
		scenarioStatus = 0
		return errors.New("ambiguous attempt returned empty pending id")
	}

	if cfg.mode == modeAttempt || reply.PendingID == "" {
		return nil
	}

	if status, err := callGetPending(client, cfg, reply.PendingID, col); err != nil || !statusOK(status) {
		scenarioStatus = status
		if err != nil {
			return err
		}
		return fmt.Errorf("get pending returned status %d", status)
	}

	if cfg.mode == modeAttemptVerify || (cfg.mode == modeAttemptFetch && shouldVerifyScenario(index, cfg.verifyRate)) {
		if status, err := callVerify(client, cfg, []string{reply.PendingID}, col); err != nil || !statusOK(status) {
			scenarioStatus = status
			if err != nil {
				return err
			}
			return fmt.Errorf("verify returned status %d", status)
		}
	}

	return nil
}

func callRecordAttempt(
	client *http.Client,
	cfg config,
	payload attemptPayload,
	key string,
	col *collector,
) (attemptReply, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return attemptReply{}, 0, err
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.addr+"/api/v1/attempts", bytes.NewReader(body))
	if err != nil {
		return attemptReply{}, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(idempotencyHeader, key)

	resp, err := client.Do(req)
	if err != nil {
		col.record("RecordAttempt", time.Since(start), 0)
		return attemptReply{}, 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	col.record("RecordAttempt", time.Since(start), resp.StatusCode)

	var reply attemptReply
	if statusOK(resp.StatusCode) {
		if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
			return attemptReply{}, 0, fmt.Errorf("decode attempt response: %w", err)
		}
	}
	return reply, resp.StatusCode, nil
}

func callGetPending(
	client *http.Client,
	cfg config,
	pendingID string,
	col *collector,
) (int, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.addr+"/api/v1/pending/"+pendingID, nil)
	if err != nil {
		return 0, err
	}

	resp, err := client.Do(req)
	if err != nil {
		col.record("GetPending", time.Since(start), 0)
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	col.record("GetPending", time.Since(start), resp.StatusCode)
	return resp.StatusCode, nil
}

func callVerify(
	client *http.Client,
	cfg config,
	ids []string,
	col *collector,
) (int, error) {
	body, err := json.Marshal(verifyPayload{IDs: ids})
	if err != nil {
		return 0, err
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.addr+"/api/v1/verify", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(operatorHeader, "loadtest")

	resp, err := client.Do(req)
	if err != nil {
		col.record("VerifyBatch", time.Since(start), 0)
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	col.record("VerifyBatch", time.Since(start), resp.StatusCode)
	return resp.StatusCode, nil
}

func statusOK(status int) bool {
	return status >= 200 && status < 400
}

func codeLabel(status int) string {
	if status == 0 {
		return "transport_error"
	}
	return strconv.Itoa(status)
}

func isAmbiguousScenario(index, ambiguousRate int) bool {
	if ambiguousRate <= 0 {
		return false
	}
	if ambiguousRate >= 100 {
		return true
	}
	return index%100 < ambiguousRate
}

func shouldVerifyScenario(index, verifyRate int) bool {
	if verifyRate <= 0 {
		return false
	}
	if verifyRate >= 100 {
		return true
	}
	return index%100 < verifyRate
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(result report, cfg config) {
	fmt.Println("Load test summary")
	fmt.Printf("mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
	)
	fmt.Printf("duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Printf("scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	methodNames := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name == "scenario" {
			continue
		}
		methodNames = append(methodNames, name)
	}
	sort.Strings(methodNames)
	for _, name := range methodNames {
		stats := result.Methods[name]
		fmt.Printf(
			"%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
