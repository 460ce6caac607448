// Load generator for a running Kestrel server.
//
// Usage:
//
//	go run ./cmd/loadgen -url http://localhost:8080 -transactions 5000 -loans 500
//	go run ./cmd/loadgen -csv /path/to/paysim.csv -limit 10000
//
// The tool opens a pool of accounts, drives transactions and loan applications
// through the HTTP API concurrently, and reports flag and approval rates,
// score distributions and latency. With -csv, transaction types and amounts
// are replayed from a PaySim export and the flag decision is compared with
// the dataset's fraud label.
package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type account struct {
	ID      string  `json:"id"`
	Balance float64 `json:"balance"`
	userID  string
}

type fraudAnalysis struct {
	Score        float64 `json:"score"`
	IsFraudulent bool    `json:"isFraudulent"`
}

type transactionResponse struct {
	Message       string         `json:"message"`
	Error         string         `json:"error"`
	FraudAnalysis *fraudAnalysis `json:"fraudAnalysis"`
}

type loanResponse struct {
	ApprovalResult struct {
		Approved bool    `json:"approved"`
		Score    float64 `json:"score"`
	} `json:"approvalResult"`
}

// sample is one transaction to drive. Fraud is the dataset label when
// replaying, and unknown otherwise.
type sample struct {
	Type    string
	Amount  float64
	Fraud   bool
	Labeled bool
}

// Metrics tracks results across workers.
type Metrics struct {
	mu sync.Mutex

	Completed     int
	Flagged       int
	Rejected      int // insufficient funds and other 4xx
	Errors        int
	LoansApproved int
	LoansRejected int

	// Confusion matrix, labeled samples only.
	TruePositives  int
	FalsePositives int
	TrueNegatives  int
	FalseNegatives int

	FraudScores []float64
	LoanScores  []float64
	Latencies   []time.Duration
}

func (m *Metrics) observe(latency time.Duration, f func(m *Metrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Latencies = append(m.Latencies, latency)
	f(m)
}

type client struct {
	http    *http.Client
	baseURL string
	tenant  string
}

func (c *client) do(ctx context.Context, method, path, userID string, body, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", c.tenant)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "loadgen", "Tenant ID for requests")
	users := flag.Int("users", 20, "Number of synthetic users")
	accountsPerUser := flag.Int("accounts", 2, "Accounts opened per user")
	transactions := flag.Int("transactions", 2000, "Transactions to submit")
	loans := flag.Int("loans", 200, "Loan applications to submit")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	csvPath := flag.String("csv", "", "Optional PaySim CSV to replay")
	limit := flag.Int("limit", 10000, "Maximum CSV rows to replay (0 = all)")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
	flag.Parse()

	rng := rand.New(rand.NewPCG(*seed, *seed>>1))
	c := &client{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(*baseURL, "/"),
		tenant:  *tenantID,
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                    KESTREL LOAD GENERATOR                     ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL: %s\n", c.baseURL)
	fmt.Printf("Tenant ID:   %s\n", c.tenant)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Seed:        %d\n", *seed)
	fmt.Println()

	ctx := context.Background()

	if status, err := c.do(ctx, http.MethodGet, "/health", "", nil, nil); err != nil || status != http.StatusOK {
		fmt.Printf("ERROR: Kestrel not reachable at %s (status %d): %v\n", c.baseURL, status, err)
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	var samples []sample
	if *csvPath != "" {
		var err error
		samples, err = readPaySimCSV(*csvPath, *limit)
		if err != nil {
			fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Loaded %d transactions from %s\n", len(samples), *csvPath)
	} else {
		samples = syntheticSamples(rng, *transactions)
	}

	accounts, err := openAccounts(ctx, c, rng, *users, *accountsPerUser)
	if err != nil {
		fmt.Printf("ERROR: Failed to open accounts: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Opened %d accounts for %d users\n", len(accounts), *users)

	fmt.Printf("\nRunning %d transactions and %d loan applications...\n", len(samples), *loans)
	start := time.Now()
	metrics := run(ctx, c, rng, accounts, samples, *loans, *workers)
	printResults(metrics, time.Since(start))
}

var syntheticTypes = []string{"deposit", "withdrawal", "transfer", "payment"}

func syntheticSamples(rng *rand.Rand, n int) []sample {
	out := make([]sample, n)
	for i := range out {
		amount := 10 + rng.Float64()*990
		// One in twenty is large enough to trip the amount rule.
		if rng.IntN(20) == 0 {
			amount = 5000 + rng.Float64()*20000
		}
		out[i] = sample{
			Type:   syntheticTypes[rng.IntN(len(syntheticTypes))],
			Amount: float64(int(amount*100)) / 100,
		}
	}
	return out
}

func openAccounts(ctx context.Context, c *client, rng *rand.Rand, users, perUser int) ([]account, error) {
	var accounts []account
	for u := 0; u < users; u++ {
		userID := fmt.Sprintf("loadgen-user-%03d", u)
		for a := 0; a < perUser; a++ {
			var acct account
			status, err := c.do(ctx, http.MethodPost, "/accounts", userID, map[string]any{
				"accountType":    "checking",
				"initialBalance": 1000 + float64(rng.IntN(50000)),
			}, &acct)
			if err != nil {
				return nil, err
			}
			if status != http.StatusCreated {
				return nil, fmt.Errorf("open account: status %d", status)
			}
			acct.userID = userID
			accounts = append(accounts, acct)
		}
	}
	if len(accounts) < 2 {
		return nil, fmt.Errorf("need at least two accounts, got %d", len(accounts))
	}
	return accounts, nil
}

func run(ctx context.Context, c *client, rng *rand.Rand, accounts []account, samples []sample, loans, workers int) *Metrics {
	metrics := &Metrics{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	// rng is not safe for concurrent use; draw everything up front.
	type job struct {
		from, to account
		tx       *sample
		loanAmt  float64
		term     int
		credit   int
	}
	jobs := make([]job, 0, len(samples)+loans)
	pick := func() (account, account) {
		i := rng.IntN(len(accounts))
		j := (i + 1 + rng.IntN(len(accounts)-1)) % len(accounts)
		return accounts[i], accounts[j]
	}
	for i := range samples {
		from, to := pick()
		jobs = append(jobs, job{from: from, to: to, tx: &samples[i]})
	}
	for i := 0; i < loans; i++ {
		from, _ := pick()
		jobs = append(jobs, job{
			from:    from,
			loanAmt: float64(1000 * (1 + rng.IntN(50))),
			term:    []int{12, 24, 36, 60}[rng.IntN(4)],
			credit:  300 + rng.IntN(551),
		})
	}
	rng.Shuffle(len(jobs), func(i, j int) { jobs[i], jobs[j] = jobs[j], jobs[i] })

	for _, j := range jobs {
		g.Go(func() error {
			if j.tx != nil {
				submitTransaction(gctx, c, metrics, j.from, j.to, *j.tx)
			} else {
				submitLoan(gctx, c, metrics, j.from, j.loanAmt, j.term, j.credit)
			}
			return nil
		})
	}
	g.Wait()

	return metrics
}

func submitTransaction(ctx context.Context, c *client, m *Metrics, from, to account, s sample) {
	body := map[string]any{
		"accountId":       from.ID,
		"transactionType": s.Type,
		"amount":          s.Amount,
		"description":     "loadgen " + s.Type,
	}
	if s.Type == "transfer" {
		body["receiverAccountId"] = to.ID
	}

	var resp transactionResponse
	start := time.Now()
	status, err := c.do(ctx, http.MethodPost, "/transactions", from.userID, body, &resp)
	latency := time.Since(start)

	m.observe(latency, func(m *Metrics) {
		if err != nil {
			m.Errors++
			return
		}

		flagged := false
		switch {
		case status == http.StatusCreated:
			m.Completed++
		case status == http.StatusAccepted:
			m.Completed++
			return
		case status == http.StatusBadRequest && resp.FraudAnalysis != nil:
			m.Flagged++
			flagged = true
		case status >= 400 && status < 500:
			m.Rejected++
			return
		default:
			m.Errors++
			return
		}

		if resp.FraudAnalysis != nil {
			m.FraudScores = append(m.FraudScores, resp.FraudAnalysis.Score)
		}
		if !s.Labeled {
			return
		}
		switch {
		case flagged && s.Fraud:
			m.TruePositives++
		case flagged && !s.Fraud:
			m.FalsePositives++
		case !flagged && !s.Fraud:
			m.TrueNegatives++
		default:
			m.FalseNegatives++
		}
	})
}

func submitLoan(ctx context.Context, c *client, m *Metrics, acct account, amount float64, term, credit int) {
	var resp loanResponse
	start := time.Now()
	status, err := c.do(ctx, http.MethodPost, "/loans/apply", acct.userID, map[string]any{
		"accountId":   acct.ID,
		"loanType":    "personal",
		"amount":      amount,
		"term":        term,
		"purpose":     "loadgen",
		"creditScore": credit,
	}, &resp)
	latency := time.Since(start)

	m.observe(latency, func(m *Metrics) {
		if err != nil || (status != http.StatusCreated && status != http.StatusAccepted) {
			m.Errors++
			return
		}
		if status == http.StatusAccepted {
			return
		}
		if resp.ApprovalResult.Approved {
			m.LoansApproved++
		} else {
			m.LoansRejected++
		}
		m.LoanScores = append(m.LoanScores, resp.ApprovalResult.Score)
	})
}

// paySimTypes maps PaySim transaction types onto Kestrel's.
var paySimTypes = map[string]string{
	"CASH_IN":  "deposit",
	"CASH_OUT": "withdrawal",
	"DEBIT":    "withdrawal",
	"PAYMENT":  "payment",
	"TRANSFER": "transfer",
}

func readPaySimCSV(path string, limit int) ([]sample, error) {
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
		colIndex[strings.ToLower(col)] = i
	}
	for _, col := range []string{"type", "amount", "isfraud"} {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var samples []sample
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		txType, ok := paySimTypes[record[colIndex["type"]]]
		if !ok {
			continue
		}
		amount, err := strconv.ParseFloat(record[colIndex["amount"]], 64)
		if err != nil || amount <= 0 {
			continue
		}

		samples = append(samples, sample{
			Type:    txType,
			Amount:  amount,
			Fraud:   record[colIndex["isfraud"]] == "1",
			Labeled: true,
		})

		if limit > 0 && len(samples) >= limit {
			break
		}
	}

	return samples, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                       LOAD TEST RESULTS                       ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	scored := m.Completed + m.Flagged
	fmt.Printf("\n📊 TRANSACTIONS\n")
	fmt.Printf("   Completed:        %d\n", m.Completed)
	fmt.Printf("   Flagged:          %d (%.2f%%)\n", m.Flagged, pct(m.Flagged, scored))
	fmt.Printf("   Rejected:         %d\n", m.Rejected)
	fmt.Printf("   Errors:           %d\n", m.Errors)
	printHistogram("Fraud score", m.FraudScores)

	decided := m.LoansApproved + m.LoansRejected
	fmt.Printf("\n🏦 LOANS\n")
	fmt.Printf("   Approved:         %d (%.2f%%)\n", m.LoansApproved, pct(m.LoansApproved, decided))
	fmt.Printf("   Rejected:         %d\n", m.LoansRejected)
	printHistogram("Approval score", m.LoanScores)

	labeled := m.TruePositives + m.FalsePositives + m.TrueNegatives + m.FalseNegatives
	if labeled > 0 {
		fmt.Printf("\n📈 CONFUSION MATRIX\n")
		fmt.Printf("                    Predicted\n")
		fmt.Printf("                  FLAG      PASS\n")
		fmt.Printf("   Actual FRAUD   %-8d  %-8d\n", m.TruePositives, m.FalseNegatives)
		fmt.Printf("   Actual LEGIT   %-8d  %-8d\n", m.FalsePositives, m.TrueNegatives)

		precision := ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
		recall := ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
		f1 := 0.0
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		fmt.Printf("\n   Precision: %.4f  Recall: %.4f  F1: %.4f\n", precision, recall, f1)
	}

	fmt.Printf("\n⏱  LATENCY\n")
	fmt.Printf("   Duration:         %v\n", duration.Round(time.Millisecond))
	if n := len(m.Latencies); n > 0 {
		slices.Sort(m.Latencies)
		var total time.Duration
		for _, l := range m.Latencies {
			total += l
		}
		fmt.Printf("   Requests:         %d (%.1f/s)\n", n, float64(n)/duration.Seconds())
		fmt.Printf("   Mean:             %v\n", (total / time.Duration(n)).Round(time.Microsecond))
		fmt.Printf("   p50:              %v\n", m.Latencies[n/2].Round(time.Microsecond))
		fmt.Printf("   p95:              %v\n", m.Latencies[n*95/100].Round(time.Microsecond))
		fmt.Printf("   p99:              %v\n", m.Latencies[n*99/100].Round(time.Microsecond))
	}
	fmt.Println()
}

// printHistogram prints scores in tenths.
func printHistogram(label string, scores []float64) {
	if len(scores) == 0 {
		return
	}
	var buckets [10]int
	for _, s := range scores {
		i := int(s * 10)
		buckets[min(max(i, 0), 9)]++
	}
	fmt.Printf("   %s distribution:\n", label)
	for i, n := range buckets {
		bar := strings.Repeat("█", int(40*float64(n)/float64(len(scores))))
		fmt.Printf("     %.1f-%.1f %6d %s\n", float64(i)/10, float64(i+1)/10, n, bar)
	}
}

func pct(n, total int) float64 {
	return 100 * ratio(n, total)
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}
