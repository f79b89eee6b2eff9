// README: Bench cases: environment, schema, seed data, the order flow over HTTP, a claim race and position throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	benchMerchant = "bench-resto"
	benchProduct  = "bench-ndole"
	benchClient   = "bench-client"
)

var (
	merchantLat, merchantLng = 3.8480, 11.5021
	deliveryLat, deliveryLng = 3.8600, 11.5150
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	runID    string
	couriers []string
	orderID  string
	otp      string
	winner   string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	r := &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
		runID: fmt.Sprintf("%d", time.Now().Unix()),
	}
	for i := 0; i < cfg.Concurrency; i++ {
		r.couriers = append(r.couriers, fmt.Sprintf("bench-%s-k%d", r.runID, i))
	}
	return r
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
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
	return []TestCase{
		{Name: "Env: Postgres connect", Run: pingDB},
		{Name: "Env: Redis connect", Run: pingRedis},
		{Name: "Migration: apply (optional)", Run: applyMigration},
		{Name: "Migration: tables exist", Run: tablesExist},
		{Name: "Seed: merchant, product and couriers", Run: seed},
		{Name: "API: health", Run: health},
		{Name: "Auth: missing token -> 401", Run: missingToken},
		{Name: "Order: invalid quantity -> 400", Run: invalidOrder},
		{Name: "Order: client creates order", Run: createOrder},
		{Name: "Order: merchant accepts, prepares, marks ready", Run: merchantSteps},
		{Name: "Courier: position updates", Run: courierPositions},
		{Name: "Courier: order is listed as available", Run: availableOrders},
		{Name: "Concurrency: one claim wins", Run: claimRace},
		{Name: "Courier: pickup and delivery steps", Run: courierSteps},
		{Name: "Delivery: wrong code -> 409", Run: wrongCode},
		{Name: "Delivery: correct code delivers", Run: deliver},
		{Name: "Earnings: today includes the delivery", Run: earningsToday},
		{Name: "Rating: client rates once, second rating -> 409", Run: rateDelivery},
		{Name: "Consistency: events follow status_version", Run: eventsConsistent},
		{Name: "Perf: position update throughput", Run: positionLoad},
	}
}

func pingDB(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func pingRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusFail, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func applyMigration(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: statusSkip, Note: "apply-migration=false"}
	}
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	sql, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, s := range splitSQL(string(sql)) {
		if _, err := r.db.Exec(ctx, s); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
	}
	return Result{Status: statusPass}
}

func tablesExist(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: statusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("tables=%d", len(tables))}
}

func seed(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	if _, err := r.db.Exec(ctx, `
		INSERT INTO merchants (id, kind, name, address, lat, lng, base_delivery_fee, is_open, active)
		VALUES ($1, 'restaurant', 'Bench Kitchen', 'Rue Nachtigal', $2, $3, 500, TRUE, TRUE)
		ON CONFLICT (id) DO UPDATE SET is_open = TRUE, active = TRUE`,
		benchMerchant, merchantLat, merchantLng,
	); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if _, err := r.db.Exec(ctx, `
		INSERT INTO products (id, merchant_id, name, price, available)
		VALUES ($1, $2, 'Ndole', 1500, TRUE)
		ON CONFLICT (id) DO UPDATE SET available = TRUE`,
		benchProduct, benchMerchant,
	); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, id := range r.couriers {
		if _, err := r.db.Exec(ctx, `
			INSERT INTO couriers (id, status, action_radius_km)
			VALUES ($1, 'idle', 10)
			ON CONFLICT (id) DO NOTHING`,
			id,
		); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("couriers=%d", len(r.couriers))}
}

func health(ctx context.Context, r *Runner) Result {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+"/health", nil)
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return expect(resp.StatusCode, time.Since(start), http.StatusOK)
}

func missingToken(ctx context.Context, r *Runner) Result {
	status, _, latency, err := r.call(ctx, http.MethodGet, "/api/orders", "", nil)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return expect(status, latency, http.StatusUnauthorized)
}

func orderBody(quantity int) map[string]any {
	return map[string]any{
		"merchant_id":      benchMerchant,
		"merchant_kind":    "restaurant",
		"items":            []map[string]any{{"product_id": benchProduct, "quantity": quantity}},
		"delivery_lat":     deliveryLat,
		"delivery_lon":     deliveryLng,
		"delivery_address": "Bastos",
		"payment_mode":     "cash",
	}
}

func invalidOrder(ctx context.Context, r *Runner) Result {
	tok, err := r.token(benchClient, "client", nil)
	if err != nil {
		return Result{Status: statusSkip, Note: err.Error()}
	}
	status, _, latency, err := r.call(ctx, http.MethodPost, "/api/orders", tok, orderBody(0))
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return expect(status, latency, http.StatusBadRequest)
}

func createOrder(ctx context.Context, r *Runner) Result {
	tok, err := r.token(benchClient, "client", nil)
	if err != nil {
		return Result{Status: statusSkip, Note: err.Error()}
	}
	status, body, latency, err := r.call(ctx, http.MethodPost, "/api/orders", tok, orderBody(2))
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if status != http.StatusCreated {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d body=%v", status, body)}
	}
	r.orderID, _ = body["id"].(string)
	r.otp, _ = body["otp_code"].(string)
	return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("order=%s number=%v", r.orderID, body["number"])}
}

func merchantSteps(ctx context.Context, r *Runner) Result {
	if r.orderID == "" {
		return Result{Status: statusSkip, Note: "no order"}
	}
	tok, err := r.token("bench-owner", "restaurant", map[string]any{"merchant_id": benchMerchant})
	if err != nil {
		return Result{Status: statusSkip, Note: err.Error()}
	}
	var total time.Duration
	for _, step := range []string{"accept", "prepare", "ready"} {
		status, body, latency, err := r.call(ctx, http.MethodPost, "/api/merchant/orders/"+r.orderID+"/"+step, tok, nil)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		total += latency
		if status != http.StatusOK {
			return Result{Status: statusFail, Note: fmt.Sprintf("%s: status=%d body=%v", step, status, body)}
		}
	}
	return Result{Status: statusPass, Latency: total}
}

func (r *Runner) courierToken(id string) (string, error) {
	return r.token(id, "courier", map[string]any{"approved": true})
}

func courierPositions(ctx context.Context, r *Runner) Result {
	var total time.Duration
	for i, id := range r.couriers {
		tok, err := r.courierToken(id)
		if err != nil {
			return Result{Status: statusSkip, Note: err.Error()}
		}
		pos := map[string]any{"lat": merchantLat + 0.001*float64(i+1), "lon": merchantLng + 0.001}
		status, body, latency, err := r.call(ctx, http.MethodPost, "/api/couriers/me/position", tok, pos)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		total += latency
		if status != http.StatusOK {
			return Result{Status: statusFail, Note: fmt.Sprintf("%s: status=%d body=%v", id, status, body)}
		}
	}
	return Result{Status: statusPass, Latency: total}
}

func availableOrders(ctx context.Context, r *Runner) Result {
	if r.orderID == "" || len(r.couriers) == 0 {
		return Result{Status: statusSkip, Note: "no order"}
	}
	tok, err := r.courierToken(r.couriers[0])
	if err != nil {
		return Result{Status: statusSkip, Note: err.Error()}
	}
	status, body, latency, err := r.call(ctx, http.MethodGet, "/api/couriers/me/available-orders", tok, nil)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if status != http.StatusOK {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
	}
	orders, _ := body["orders"].([]any)
	for _, o := range orders {
		if m, ok := o.(map[string]any); ok && m["id"] == r.orderID {
			return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("listed=%d", len(orders))}
		}
	}
	return Result{Status: statusFail, Latency: latency, Note: "order not listed"}
}

func claimRace(ctx context.Context, r *Runner) Result {
	if r.orderID == "" {
		return Result{Status: statusSkip, Note: "no order"}
	}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []string
		conflict int
	)
	for _, id := range r.couriers {
		tok, err := r.courierToken(id)
		if err != nil {
			return Result{Status: statusSkip, Note: err.Error()}
		}
		wg.Add(1)
		go func(id, tok string) {
			defer wg.Done()
			status, _, _, err := r.call(ctx, http.MethodPost, "/api/couriers/me/orders/"+r.orderID+"/claim", tok, nil)
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case status == http.StatusOK:
				winners = append(winners, id)
			case status == http.StatusConflict:
				conflict++
			}
		}(id, tok)
	}
	wg.Wait()

	if len(winners) != 1 {
		return Result{Status: statusFail, Note: fmt.Sprintf("winners=%d conflicts=%d", len(winners), conflict)}
	}
	r.winner = winners[0]
	return Result{Status: statusPass, Note: fmt.Sprintf("winner=%s conflicts=%d", r.winner, conflict)}
}

func courierSteps(ctx context.Context, r *Runner) Result {
	if r.winner == "" {
		return Result{Status: statusSkip, Note: "no assigned courier"}
	}
	tok, err := r.courierToken(r.winner)
	if err != nil {
		return Result{Status: statusSkip, Note: err.Error()}
	}
	var total time.Duration
	for _, step := range []string{"en-route", "collected", "in-delivery"} {
		status, body, latency, err := r.call(ctx, http.MethodPost, "/api/couriers/me/orders/"+r.orderID+"/"+step, tok, nil)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		total += latency
		if status != http.StatusOK {
			return Result{Status: statusFail, Note: fmt.Sprintf("%s: status=%d body=%v", step, status, body)}
		}
	}
	return Result{Status: statusPass, Latency: total}
}

func wrongCode(ctx context.Context, r *Runner) Result {
	if r.winner == "" || r.otp == "" {
		return Result{Status: statusSkip, Note: "no order in delivery"}
	}
	tok, err := r.courierToken(r.winner)
	if err != nil {
		return Result{Status: statusSkip, Note: err.Error()}
	}
	wrong := "000000"
	if r.otp == wrong {
		wrong = "111111"
	}
	status, _, latency, err := r.call(ctx, http.MethodPost, "/api/couriers/me/orders/"+r.orderID+"/deliver", tok, map[string]any{"otp_code": wrong})
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return expect(status, latency, http.StatusConflict)
}

func deliver(ctx context.Context, r *Runner) Result {
	if r.winner == "" || r.otp == "" {
		return Result{Status: statusSkip, Note: "no order in delivery"}
	}
	tok, err := r.courierToken(r.winner)
	if err != nil {
		return Result{Status: statusSkip, Note: err.Error()}
	}
	status, body, latency, err := r.call(ctx, http.MethodPost, "/api/couriers/me/orders/"+r.orderID+"/deliver", tok, map[string]any{"otp_code": r.otp})
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if status != http.StatusOK {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d body=%v", status, body)}
	}
	return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("courier_earnings=%v", body["courier_earnings"])}
}

func earningsToday(ctx context.Context, r *Runner) Result {
	if r.winner == "" {
		return Result{Status: statusSkip, Note: "no delivery"}
	}
	tok, err := r.courierToken(r.winner)
	if err != nil {
		return Result{Status: statusSkip, Note: err.Error()}
	}
	status, body, latency, err := r.call(ctx, http.MethodGet, "/api/couriers/me/earnings", tok, nil)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if status != http.StatusOK {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
	}
	today, _ := body["today"].(map[string]any)
	if n, _ := today["deliveries"].(float64); n < 1 {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("today=%v", today)}
	}
	return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("today=%v", today)}
}

func rateDelivery(ctx context.Context, r *Runner) Result {
	if r.winner == "" || r.orderID == "" {
		return Result{Status: statusSkip, Note: "no delivery"}
	}
	tok, err := r.token(benchClient, "client", nil)
	if err != nil {
		return Result{Status: statusSkip, Note: err.Error()}
	}
	path := "/api/orders/" + r.orderID + "/rating"
	status, body, latency, err := r.call(ctx, http.MethodPost, path, tok, map[string]any{"rating": 5, "comment": "bench"})
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if status != http.StatusCreated {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d body=%v", status, body)}
	}
	status, _, _, err = r.call(ctx, http.MethodPost, path, tok, map[string]any{"rating": 1})
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if status != http.StatusConflict {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("second rating status=%d", status)}
	}
	return Result{Status: statusPass, Latency: latency}
}

func eventsConsistent(ctx context.Context, r *Runner) Result {
	if r.db == nil || r.orderID == "" {
		return Result{Status: statusSkip, Note: "no db or order"}
	}
	var status string
	var version, events int
	err := r.db.QueryRow(ctx, `
		SELECT o.status, o.status_version, (SELECT count(*) FROM order_state_events e WHERE e.order_id = o.id)
		FROM orders o WHERE o.id = $1`, r.orderID,
	).Scan(&status, &version, &events)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if events != version+1 {
		return Result{Status: statusFail, Note: fmt.Sprintf("status=%s version=%d events=%d", status, version, events)}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("status=%s version=%d", status, version)}
}

func positionLoad(ctx context.Context, r *Runner) Result {
	if len(r.couriers) == 0 {
		return Result{Status: statusSkip, Note: "no couriers"}
	}
	end := time.Now().Add(r.cfg.Duration)
	var (
		count    int64
		errCount int64
		mu       sync.Mutex
		wg       sync.WaitGroup
	)
	for i, id := range r.couriers {
		tok, err := r.courierToken(id)
		if err != nil {
			return Result{Status: statusSkip, Note: err.Error()}
		}
		wg.Add(1)
		go func(i int, tok string) {
			defer wg.Done()
			for step := 0; time.Now().Before(end) && ctx.Err() == nil; step++ {
				pos := map[string]any{
					"lat": merchantLat + 0.0001*float64(step%50),
					"lon": merchantLng + 0.001*float64(i),
				}
				status, _, _, err := r.call(ctx, http.MethodPost, "/api/couriers/me/position", tok, pos)
				mu.Lock()
				if err != nil || status != http.StatusOK {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}(i, tok)
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: statusFail, Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

// token mints an HS256 token the API accepts in jwt auth mode.
func (r *Runner) token(subject, role string, extra map[string]any) (string, error) {
	if r.cfg.JWTSecret == "" {
		return "", fmt.Errorf("jwt-secret not set")
	}
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(r.cfg.JWTSecret))
}

func (r *Runner) call(ctx context.Context, method, path, token string, body any) (int, map[string]any, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	latency := time.Since(start)
	if err != nil {
		return resp.StatusCode, nil, latency, err
	}
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out, latency, nil
}

func expect(status int, latency time.Duration, want int) Result {
	if status == want {
		return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
	}
	return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d want=%d", status, want)}
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	cleaned := strings.Join(filtered, "\n")
	parts := strings.Split(cleaned, ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
