// README: Smoke and load runner against a live API; mints HS256 tokens, seeds Postgres and walks an order end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"dispatch/internal/config"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

// Config holds the bench settings. Connection settings default to the ones
// the API reads, so a bench started next to the API needs no flags.
type Config struct {
	BaseURL        string
	DSN            string
	RedisAddr      string
	JWTSecret      string
	MigrationPath  string
	ApplyMigration bool
	Strict         bool
	Timeout        time.Duration
	Concurrency    int
	Duration       time.Duration
}

func main() {
	cfg := parseFlags(config.Read(), os.Args[1:])

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	results := NewRunner(cfg).RunAll(ctx)
	t := tallyResults(results)
	fmt.Printf("\n== Summary ==\n%s\n", t)
	if t.failed(cfg.Strict) {
		os.Exit(1)
	}
}

func parseFlags(svc config.Config, args []string) Config {
	cfg := Config{
		BaseURL:       baseURLFor(svc.HTTP.Addr),
		DSN:           svc.DB.DSN,
		RedisAddr:     svc.Redis.Addr,
		JWTSecret:     svc.Auth.JWTSecret,
		MigrationPath: "migrations/0001_init.sql",
		Timeout:       time.Minute,
		Concurrency:   8,
		Duration:      10 * time.Second,
	}
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "API base URL")
	fs.StringVar(&cfg.DSN, "dsn", cfg.DSN, "Postgres DSN")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "HS256 secret shared with the API")
	fs.StringVar(&cfg.MigrationPath, "migration", cfg.MigrationPath, "Migration SQL path")
	fs.BoolVar(&cfg.ApplyMigration, "apply-migration", false, "Apply migration SQL before the cases")
	fs.BoolVar(&cfg.Strict, "strict", false, "Exit non-zero when a case is skipped")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Total timeout")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Couriers racing for a claim and position writers")
	fs.DurationVar(&cfg.Duration, "duration", cfg.Duration, "Duration of the position load case")
	_ = fs.Parse(args)

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Concurrency < 2 {
		cfg.Concurrency = 2
	}
	return cfg
}

// baseURLFor turns the API listen address into a URL the bench can dial.
func baseURLFor(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://localhost:8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// tally counts results by status and keeps the slowest case.
type tally struct {
	counts  map[string]int
	slowest Result
}

func tallyResults(results []Result) tally {
	t := tally{counts: make(map[string]int)}
	for _, r := range results {
		t.counts[r.Status]++
		if r.Latency > t.slowest.Latency {
			t.slowest = r
		}
	}
	return t
}

func (t tally) failed(strict bool) bool {
	return t.counts[statusFail] > 0 || (strict && t.counts[statusSkip] > 0)
}

func (t tally) String() string {
	s := fmt.Sprintf("%s=%d %s=%d %s=%d",
		statusPass, t.counts[statusPass], statusFail, t.counts[statusFail], statusSkip, t.counts[statusSkip])
	if t.slowest.Latency > 0 {
		s += fmt.Sprintf(" slowest=%q (%s)", t.slowest.Name, t.slowest.Latency)
	}
	return s
}
