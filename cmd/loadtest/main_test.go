package main

import (
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fakeAPIServer имитирует intake/admin HTTP API для проверок нагрузочного клиента.
type fakeAPIServer struct {
	attempts    atomic.Int64
	gets        atomic.Int64
	verifies    atomic.Int64
	attemptFail bool
	emptyID     bool
}

func (f *fakeAPIServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/attempts", func(w http.ResponseWriter, r *http.Request) {
		f.attempts.Add(1)
		if r.Header.Get(idempotencyHeader) == "" {
			t.Errorf("attempt request without idempotency key")
		}

		var payload attemptPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode attempt payload: %v", err)
		}
		if payload.OrderID == "" || payload.DomainName == "" {
			t.Errorf("attempt payload misses identifiers: %+v", payload)
		}

		if f.attemptFail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		reply := attemptReply{Outcome: "success"}
		if strings.Contains(payload.Response.Body, "error") {
			reply = attemptReply{Outcome: "ambiguous_pending", PendingID: "pd-" + payload.OrderID}
		}
		if f.emptyID {
			reply.PendingID = ""
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply)
	})

	mux.HandleFunc("GET /api/v1/pending/", func(w http.ResponseWriter, r *http.Request) {
		f.gets.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pd-1","status":"pending","timeline":[]}`))
	})

	mux.HandleFunc("POST /api/v1/verify", func(w http.ResponseWriter, r *http.Request) {
		f.verifies.Add(1)
		var payload verifyPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode verify payload: %v", err)
		}
		if len(payload.IDs) == 0 {
			t.Errorf("verify payload without ids")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"selected":1,"resolved":0,"inconclusive":1,"skipped":0,"errors":0}`))
	})

	return mux
}

func withCLIArgs(t *testing.T, args []string, fn func()) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine

	os.Args = append([]string{"loadtest"}, args...)
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flag.CommandLine = fs

	defer func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	fn()
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    loadMode
		wantErr string
	}{
		{name: "attempt", input: "attempt", want: modeAttempt},
		{name: "attempt-fetch", input: "attempt-fetch", want: modeAttemptFetch},
		{name: "attempt-verify", input: "attempt-verify", want: modeAttemptVerify},
		{name: "unsupported", input: "bad", wantErr: "unsupported mode"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseMode(tc.input)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("unexpected mode: got %q want %q", got, tc.want)
			}
		})
	}
}

func TestParseConfig(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		withCLIArgs(t, []string{
			"-addr=http://127.0.0.1:8080",
			"-mode=attempt-fetch",
			"-total=12",
			"-concurrency=3",
			"-connections=2",
			"-timeout=2s",
			"-ambiguous-rate=80",
			"-verify-rate=10",
			"-currency=EUR",
			"-tld=io",
			"-price-minor=99",
			"-customer-tag=stage",
			"-output=/tmp/out.json",
		}, func() {
			cfg, err := parseConfig()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !cfg.totalSet {
				t.Fatalf("expected totalSet=true")
			}
			if cfg.duration != 0 {
				t.Fatalf("expected zero duration, got %s", cfg.duration)
			}
			if cfg.mode != modeAttemptFetch {
				t.Fatalf("unexpected mode: %s", cfg.mode)
			}
			if cfg.total != 12 || cfg.concurrency != 3 || cfg.connections != 2 {
				t.Fatalf("unexpected numeric config: %+v", cfg)
			}
			if cfg.ambiguousRate != 80 || cfg.verifyRate != 10 {
				t.Fatalf("unexpected rates: %+v", cfg)
			}
			if cfg.timeout != 2*time.Second {
				t.Fatalf("unexpected timeout: %s", cfg.timeout)
			}
		})
	})

	t.Run("duration mode", func(t *testing.T) {
		withCLIArgs(t, []string{
			"-duration=3s",
			"-concurrency=2",
			"-connections=1",
		}, func() {
			cfg, err := parseConfig()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.duration != 3*time.Second {
				t.Fatalf("unexpected duration: %s", cfg.duration)
			}
			if cfg.totalSet {
				t.Fatalf("expected totalSet=false when -total was not provided")
			}
		})
	})

	t.Run("validation errors", func(t *testing.T) {
		tests := []struct {
			name    string
			args    []string
			wantErr string
		}{
			{name: "invalid duration", args: []string{"-duration=bad"}, wantErr: "parse duration"},
			{name: "negative duration", args: []string{"-duration=-1s"}, wantErr: "duration must be >= 0"},
			{name: "invalid ambiguous rate", args: []string{"-ambiguous-rate=101"}, wantErr: "ambiguous-rate must be between 0 and 100"},
			{name: "invalid verify rate", args: []string{"-verify-rate=-1"}, wantErr: "verify-rate must be between 0 and 100"},
			{name: "empty total", args: []string{"-duration=0s", "-total=0"}, wantErr: "total must be > 0"},
			{name: "empty tld", args: []string{"-tld= "}, wantErr: "tld is required"},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				withCLIArgs(t, tc.args, func() {
					_, err := parseConfig()
					if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
						t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
					}
				})
			})
		}
	})
}

func TestDispatchJobs(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(jobs, config{total: 5})

		var got []int
		for v := range jobs {
			got = append(got, v)
		}
		if !slices.Equal(got, []int{0, 1, 2, 3, 4}) {
			t.Fatalf("unexpected jobs sequence: %v", got)
		}
	})

	t.Run("duration mode", func(t *testing.T) {
		jobs := make(chan int, 32)
		done := make(chan struct{})
		go func() {
			dispatchJobs(jobs, config{duration: 20 * time.Millisecond})
			close(done)
		}()

		count := 0
		for range jobs {
			count++
		}
		<-done
		if count == 0 {
			t.Fatalf("expected non-zero jobs for duration mode")
		}
	})

	t.Run("duration with explicit max total", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(jobs, config{duration: time.Second, total: 3, totalSet: true})
		count := 0
		for range jobs {
			count++
		}
		if count != 3 {
			t.Fatalf("expected 3 jobs, got %d", count)
		}
	})
}

func TestCollectorAndReport(t *testing.T) {
	c := newCollector()
	c.record("scenario", 10*time.Millisecond, http.StatusOK)
	c.record("scenario", 20*time.Millisecond, http.StatusInternalServerError)
	c.record("RecordAttempt", 15*time.Millisecond, http.StatusOK)

	snap, ok := c.snapshot("scenario")
	if !ok {
		t.Fatalf("scenario snapshot missing")
	}
	if snap.Calls != 2 || snap.Success != 1 || snap.Failed != 1 {
		t.Fatalf("unexpected scenario snapshot: %+v", snap)
	}
	if snap.Codes["200"] != 1 || snap.Codes["500"] != 1 {
		t.Fatalf("unexpected codes: %+v", snap.Codes)
	}

	r := c.buildReport(time.Now(), 2*time.Second)
	if r.TotalScenarios != 2 || r.FailedScenarios != 1 {
		t.Fatalf("unexpected report totals: %+v", r)
	}
	if r.RPS <= 0 {
		t.Fatalf("expected positive rps, got %f", r.RPS)
	}
	if _, ok := r.Methods["RecordAttempt"]; !ok {
		t.Fatalf("expected RecordAttempt stats in report")
	}
}

func TestUtilityFunctions(t *testing.T) {
	if !statusOK(http.StatusOK) || !statusOK(http.StatusNoContent) {
		t.Fatalf("2xx must count as success")
	}
	if statusOK(0) || statusOK(http.StatusBadGateway) {
		t.Fatalf("transport errors and 5xx must count as failures")
	}
	if got := codeLabel(0); got != "transport_error" {
		t.Fatalf("unexpected transport label: %s", got)
	}
	if got := codeLabel(http.StatusConflict); got != "409" {
		t.Fatalf("unexpected code label: %s", got)
	}

	if got := ratio(1, 4); got != 0.25 {
		t.Fatalf("ratio mismatch: %f", got)
	}
	if got := ratio(1, 0); got != 0 {
		t.Fatalf("ratio with zero total must be 0, got %f", got)
	}

	if isAmbiguousScenario(5, 0) {
		t.Fatalf("zero rate must never be ambiguous")
	}
	if !isAmbiguousScenario(99, 100) {
		t.Fatalf("full rate must always be ambiguous")
	}
	if !isAmbiguousScenario(10, 50) || isAmbiguousScenario(60, 50) {
		t.Fatalf("deterministic rate split broken")
	}
	if shouldVerifyScenario(10, 0) || !shouldVerifyScenario(10, 100) {
		t.Fatalf("verify rate edge cases broken")
	}

	values := []float64{10, 20, 30, 40}
	summary := buildLatencySummary(values)
	if summary.P50 <= 0 || summary.P95 <= 0 || summary.Max != 40 {
		t.Fatalf("unexpected latency summary: %+v", summary)
	}
	if p := percentile(values, 95); p <= 0 {
		t.Fatalf("unexpected percentile: %f", p)
	}

	if got := runTarget(config{total: 50}); got != "count:50" {
		t.Fatalf("unexpected run target: %s", got)
	}
	if got := runTarget(config{duration: 2 * time.Second}); got != "duration:2s" {
		t.Fatalf("unexpected duration run target: %s", got)
	}
	if got := runTarget(config{duration: 2 * time.Second, total: 10, totalSet: true}); got != "duration:2s,max-total:10" {
		t.Fatalf("unexpected capped duration run target: %s", got)
	}
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")

	sample := report{TotalScenarios: 2, SuccessScenarios: 2}
	if err := writeJSONReport(path, sample); err != nil {
		t.Fatalf("writeJSONReport error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}

	var decoded report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.TotalScenarios != 2 || decoded.SuccessScenarios != 2 {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}
}

func TestRunScenario(t *testing.T) {
	baseCfg := config{
		timeout:     time.Second,
		tld:         "com",
		priceMinor:  100,
		currency:    "USD",
		customerTag: "load",
	}

	t.Run("attempt mode stops after intake", func(t *testing.T) {
		fake := &fakeAPIServer{}
		srv := httptest.NewServer(fake.handler(t))
		defer srv.Close()

		cfg := baseCfg
		cfg.addr = srv.URL
		cfg.mode = modeAttempt
		cfg.ambiguousRate = 100

		c := newCollector()
		if err := runScenario(srv.Client(), cfg, 1, "run-1", c); err != nil {
			t.Fatalf("runScenario failed: %v", err)
		}
		if fake.attempts.Load() != 1 || fake.gets.Load() != 0 || fake.verifies.Load() != 0 {
			t.Fatalf("unexpected calls: attempts=%d gets=%d verifies=%d",
				fake.attempts.Load(), fake.gets.Load(), fake.verifies.Load())
		}
	})

	t.Run("attempt-verify mode walks all endpoints", func(t *testing.T) {
		fake := &fakeAPIServer{}
		srv := httptest.NewServer(fake.handler(t))
		defer srv.Close()

		cfg := baseCfg
		cfg.addr = srv.URL
		cfg.mode = modeAttemptVerify
		cfg.ambiguousRate = 100

		c := newCollector()
		if err := runScenario(srv.Client(), cfg, 2, "run-2", c); err != nil {
			t.Fatalf("runScenario failed: %v", err)
		}
		if fake.gets.Load() != 1 || fake.verifies.Load() != 1 {
			t.Fatalf("expected fetch and verify, got gets=%d verifies=%d", fake.gets.Load(), fake.verifies.Load())
		}

		snap, ok := c.snapshot("VerifyBatch")
		if !ok || snap.Calls != 1 {
			t.Fatalf("VerifyBatch metric missing: %+v", snap)
		}
	})

	t.Run("success outcome skips pending steps", func(t *testing.T) {
		fake := &fakeAPIServer{}
		srv := httptest.NewServer(fake.handler(t))
		defer srv.Close()

		cfg := baseCfg
		cfg.addr = srv.URL
		cfg.mode = modeAttemptVerify
		cfg.ambiguousRate = 0

		c := newCollector()
		if err := runScenario(srv.Client(), cfg, 3, "run-3", c); err != nil {
			t.Fatalf("runScenario failed: %v", err)
		}
		if fake.gets.Load() != 0 || fake.verifies.Load() != 0 {
			t.Fatalf("success attempt must not touch pending endpoints")
		}
	})

	t.Run("server error fails the scenario", func(t *testing.T) {
		fake := &fakeAPIServer{attemptFail: true}
		srv := httptest.NewServer(fake.handler(t))
		defer srv.Close()

		cfg := baseCfg
		cfg.addr = srv.URL
		cfg.mode = modeAttempt
		cfg.ambiguousRate = 0

		c := newCollector()
		err := runScenario(srv.Client(), cfg, 4, "run-4", c)
		if err == nil || !strings.Contains(err.Error(), "status 500") {
			t.Fatalf("expected status error, got %v", err)
		}
	})

	t.Run("ambiguous reply without pending id fails", func(t *testing.T) {
		fake := &fakeAPIServer{emptyID: true}
		srv := httptest.NewServer(fake.handler(t))
		defer srv.Close()

		cfg := baseCfg
		cfg.addr = srv.URL
		cfg.mode = modeAttempt
		cfg.ambiguousRate = 100

		c := newCollector()
		err := runScenario(srv.Client(), cfg, 5, "run-5", c)
		if err == nil || !strings.Contains(err.Error(), "empty pending id") {
			t.Fatalf("expected empty pending id error, got %v", err)
		}
	})
}

func TestPrintReport(t *testing.T) {
	r := report{
		TotalScenarios:   2,
		SuccessScenarios: 2,
		Methods: map[string]methodReport{
			"scenario":      {Calls: 2, Success: 2},
			"RecordAttempt": {Calls: 2, Success: 2},
		},
	}

	out := captureStdout(t, func() {
		printReport(r, config{mode: modeAttempt, total: 2})
	})

	if !strings.Contains(out, "Load test summary") {
		t.Fatalf("expected summary header, got: %s", out)
	}
	if !strings.Contains(out, "RecordAttempt") {
		t.Fatalf("expected method section, got: %s", out)
	}
}

func TestMainSmoke(t *testing.T) {
	fake := &fakeAPIServer{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	dir := t.TempDir()
	outPath := filepath.Join(dir, "main-report.json")

	out := captureStdout(t, func() {
		withCLIArgs(t, []string{
			"-addr=" + srv.URL,
			"-mode=attempt",
			"-total=5",
			"-concurrency=2",
			"-connections=1",
			"-timeout=2s",
			"-output=" + outPath,
		}, func() {
			main()
		})
	})

	if !strings.Contains(out, "Load test summary") {
		t.Fatalf("expected summary output, got: %s", out)
	}
	if fake.attempts.Load() != 5 {
		t.Fatalf("expected 5 attempts, got %d", fake.attempts.Load())
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("expected report file from main: %v", err)
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = oldStdout

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read captured output: %v", err)
	}
	_ = r.Close()

	return string(data)
}
