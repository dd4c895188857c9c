// README: Smoke cases for the booking desk: infra checks, fare config, estimates, booking flow, races and throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"cabdesk/internal/infra"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"
)

var (
	kissimmee = map[string]any{"lat": 28.2919557, "lng": -81.4075713}
	airport   = map[string]any{"lat": 28.4312, "lng": -81.3081}
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// bookingID carries the booking created by the flow cases into the later ones.
	bookingID string
}

type Result struct {
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := infra.NewDB(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		if rdb, err := infra.NewRedis(ctx, r.cfg.RedisAddr); err == nil {
			r.redis = rdb
		}
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	op := "?operator=" + r.cfg.Operator
	return []TestCase{
		{
			Name: "Env: Postgres schema",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: StatusSkip, Note: "db not reachable"}
				}
				for _, table := range []string{"fare_configs", "flat_rates", "drivers", "bookings", "booking_events"} {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)", table,
					).Scan(&exists)
					if err != nil {
						return Result{Status: StatusFail, Note: err.Error()}
					}
					if !exists {
						return Result{Status: StatusFail, Note: "missing table: " + table}
					}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name: "Env: Redis roster index",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: StatusSkip, Note: "redis not reachable"}
				}
				n, err := r.redis.ZCard(ctx, "roster:drivers").Result()
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass, Note: fmt.Sprintf("indexed=%d", n)}
			},
		},
		httpCase("API: health", http.MethodGet, base+"/health", nil, http.StatusOK),

		httpCase("Pricing: save fare config", http.MethodPut, base+"/api/fare-config"+op, map[string]any{
			"fare_per_mile":             2.5,
			"extra_pass":                1,
			"wait_time_per_minute":      0.5,
			"minimum_fare":              15,
			"wait_trigger_speed_mph":    5,
			"idle_grace_period_seconds": 120,
			"meter_rounding_mode":       "nearest_0.5",
			"other_fees":                []map[string]any{{"name": "Airport", "amount": 3}},
		}, http.StatusOK),
		httpCase("Pricing: negative rate -> 400", http.MethodPut, base+"/api/fare-config"+op, map[string]any{
			"fare_per_mile": -1,
		}, http.StatusBadRequest),
		httpCase("Pricing: list flat rates", http.MethodGet, base+"/api/flat-rates"+op+"&active=true", nil, http.StatusOK),

		httpCase("Estimate: manual coordinates", http.MethodPost, base+"/api/estimates", map[string]any{
			"pickup": kissimmee, "dropoff": airport, "passengers": 2,
		}, http.StatusOK),
		httpCase("Estimate: missing dropoff is partial", http.MethodPost, base+"/api/estimates", map[string]any{
			"pickup": kissimmee,
		}, http.StatusOK),
		httpCase("Nearby: drivers around pickup", http.MethodGet, base+"/api/drivers/nearby?lat=28.2919557&lng=-81.4075713", nil, http.StatusOK),
		httpCase("Nearby: bad latitude -> 400", http.MethodGet, base+"/api/drivers/nearby?lat=123&lng=-81.4", nil, http.StatusBadRequest),

		{
			Name: "Booking: create meter booking",
			Run: func(ctx context.Context, r *Runner) Result {
				var out struct {
					Booking struct {
						ID     string `json:"id"`
						Status string `json:"status"`
					} `json:"booking"`
				}
				res := r.call(ctx, http.MethodPost, base+"/api/bookings", map[string]any{
					"pickup": kissimmee, "dropoff": airport, "passengers": 1,
				}, http.StatusCreated, &out)
				if res.Status == StatusPass {
					r.bookingID = out.Booking.ID
					if out.Booking.Status != "pending" {
						return Result{Status: StatusFail, Note: "status=" + out.Booking.Status}
					}
				}
				return res
			},
		},
		httpCase("Booking: missing dropoff -> 400", http.MethodPost, base+"/api/bookings", map[string]any{
			"pickup": kissimmee,
		}, http.StatusBadRequest),
		r.bookingCase("Booking: get", http.MethodGet, "", nil, http.StatusOK),
		r.bookingCase("Booking: complete before assignment -> 409", http.MethodPost, "/status", map[string]any{
			"status": "completed",
		}, http.StatusConflict),
		r.bookingCase("Booking: manual assign", http.MethodPost, "/assign", map[string]any{
			"method": "manual", "driver_id": r.cfg.DriverID, "cab_number": "B-1",
		}, http.StatusOK),
		{
			Name: "Concurrency: racing status changes",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.racingStatus(ctx)
			},
		},
		r.bookingCase("Booking: cancel", http.MethodPost, "/status", map[string]any{
			"status": "cancelled", "reason": "bench",
		}, http.StatusOK),
		r.bookingCase("Booking: cancelled is terminal -> 409", http.MethodPost, "/status", map[string]any{
			"status": "picked_up",
		}, http.StatusConflict),
		httpCase("Booking: reassignment queue", http.MethodGet, base+"/api/bookings/reassignment", nil, http.StatusOK),
		httpCase("Booking: unknown id -> 404", http.MethodGet, base+"/api/bookings/00000000-0000-0000-0000-000000000000", nil, http.StatusNotFound),

		{
			Name: "Perf: driver location throughput",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, http.MethodPut, base+"/api/drivers/"+r.cfg.DriverID+"/location", func() any {
					return map[string]any{"lat": 28.2919557, "lng": -81.4075713, "availability": "online"}
				})
			},
		},
		{
			Name: "Perf: estimate throughput",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, http.MethodPost, base+"/api/estimates", func() any {
					return map[string]any{"pickup": kissimmee, "dropoff": airport}
				})
			},
		},
	}
}

func httpCase(name, method, url string, body any, want int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			return r.call(ctx, method, url, body, want, nil)
		},
	}
}

// bookingCase targets the booking created earlier in the run.
func (r *Runner) bookingCase(name, method, suffix string, body any, want int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			if r.bookingID == "" {
				return Result{Status: StatusSkip, Note: "no booking created"}
			}
			return r.call(ctx, method, r.cfg.BaseURL+"/api/bookings/"+r.bookingID+suffix, body, want, nil)
		},
	}
}

func (r *Runner) call(ctx context.Context, method, url string, body any, want int, out any) Result {
	resp, latency, err := r.do(ctx, method, url, body)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	defer resp.Body.Close()
	note := fmt.Sprintf("status=%d", resp.StatusCode)
	if resp.StatusCode != want {
		return Result{Status: StatusFail, Latency: latency, Note: note}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return Result{Status: StatusFail, Latency: latency, Note: "decode: " + err.Error()}
		}
	}
	return Result{Status: StatusPass, Latency: latency, Note: note}
}

func (r *Runner) do(ctx context.Context, method, url string, body any) (*http.Response, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	start := time.Now()
	resp, err := r.httpc.Do(req)
	return resp, time.Since(start), err
}

// racingStatus sends the same forward move concurrently. The version check must let exactly
// one through; the rest see 409.
func (r *Runner) racingStatus(ctx context.Context) Result {
	if r.bookingID == "" {
		return Result{Status: StatusSkip, Note: "no booking created"}
	}
	url := r.cfg.BaseURL + "/api/bookings/" + r.bookingID + "/status"
	var ok, conflict atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, _, err := r.do(ctx, http.MethodPost, url, map[string]any{"status": "en_route"})
			if err != nil {
				return
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			switch resp.StatusCode {
			case http.StatusOK:
				ok.Add(1)
			case http.StatusConflict:
				conflict.Add(1)
			}
		}()
	}
	wg.Wait()

	note := fmt.Sprintf("success=%d conflict=%d", ok.Load(), conflict.Load())
	if ok.Load() == 1 {
		return Result{Status: StatusPass, Note: note}
	}
	return Result{Status: StatusFail, Note: note}
}

func perfLoad(ctx context.Context, r *Runner, method, url string, payload func() any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				resp, _, err := r.do(ctx, method, url, payload())
				if err != nil {
					errCount.Add(1)
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				if resp.StatusCode >= 500 {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: StatusFail, Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: StatusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}
