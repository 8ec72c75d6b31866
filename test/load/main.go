package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	gateway "github.com/nimasrn/school-payment/internal/gateways"
)

// LoadTestConfig drives a webhook storm: every order gets Redeliveries
// identical signed notifications, sent concurrently.
type LoadTestConfig struct {
	URL               string
	ServerKey         string
	Orders            []string
	GrossAmount       string
	Status            string
	Redeliveries      int
	ConcurrentWorkers int
}

type Stats struct {
	successCount  atomic.Int64
	errorCount    atomic.Int64
	statusCodes   sync.Map
	responseTimes []float64
	mu            sync.Mutex
}

func (s *Stats) addResponseTime(duration float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responseTimes = append(s.responseTimes, duration)
}

func (s *Stats) getResponseTimes() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	times := make([]float64, len(s.responseTimes))
	copy(times, s.responseTimes)
	return times
}

func (s *Stats) countStatus(code int) {
	v, _ := s.statusCodes.LoadOrStore(code, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
}

func notification(config LoadTestConfig, orderID string) []byte {
	statusCode := "200"
	if config.Status == "pending" {
		statusCode = "201"
	}
	return []byte(fmt.Sprintf(`{"order_id":%q,"status_code":%q,"gross_amount":%q,"transaction_status":%q,"fraud_status":"accept","payment_type":"bank_transfer","transaction_time":%q,"signature_key":%q}`,
		orderID, statusCode, config.GrossAmount, config.Status,
		time.Now().Format("2006-01-02 15:04:05"),
		gateway.Sign(orderID, statusCode, config.GrossAmount, config.ServerKey)))
}

func sendRequest(client *http.Client, config LoadTestConfig, payload []byte, stats *Stats) {
	start := time.Now()

	req, err := http.NewRequest(http.MethodPost, config.URL, bytes.NewReader(payload))
	if err != nil {
		stats.errorCount.Add(1)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		stats.errorCount.Add(1)
		stats.addResponseTime(time.Since(start).Seconds())
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	stats.addResponseTime(time.Since(start).Seconds())
	stats.countStatus(resp.StatusCode)

	if resp.StatusCode == http.StatusOK {
		stats.successCount.Add(1)
	} else {
		stats.errorCount.Add(1)
	}
}

func worker(client *http.Client, config LoadTestConfig, stats *Stats, jobs <-chan []byte, wg *sync.WaitGroup) {
	defer wg.Done()

	for payload := range jobs {
		sendRequest(client, config, payload, stats)
	}
}

func calculatePercentile(times []float64, percentile float64) float64 {
	if len(times) == 0 {
		return 0
	}

	sorted := make([]float64, len(times))
	copy(sorted, times)
	sort.Float64s(sorted)

	index := int(float64(len(sorted)) * percentile)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func main() {
	config := LoadTestConfig{
		URL:               getEnvOrDefault("TARGET_URL", "http://localhost:8080/api/v1/gateway/callback"),
		ServerKey:         getEnvOrDefault("GATEWAY_SERVER_KEY", ""),
		Orders:            strings.Split(getEnvOrDefault("ORDER_IDS", ""), ","),
		GrossAmount:       getEnvOrDefault("GROSS_AMOUNT", "150000.00"),
		Status:            getEnvOrDefault("TRANSACTION_STATUS", "settlement"),
		Redeliveries:      getEnvIntOrDefault("REDELIVERIES", 50),
		ConcurrentWorkers: getEnvIntOrDefault("CONCURRENT_WORKERS", 100),
	}
	if config.ServerKey == "" || config.Orders[0] == "" {
		fmt.Fprintln(os.Stderr, "GATEWAY_SERVER_KEY and ORDER_IDS (comma separated) are required")
		os.Exit(2)
	}

	total := len(config.Orders) * config.Redeliveries

	fmt.Println("Starting webhook redelivery test...")
	fmt.Printf("Target: %s\n", config.URL)
	fmt.Printf("Orders: %d\n", len(config.Orders))
	fmt.Printf("Deliveries per order: %d\n", config.Redeliveries)
	fmt.Printf("Total requests: %d\n", total)
	fmt.Printf("Concurrent workers: %d\n", config.ConcurrentWorkers)
	fmt.Println(strings.Repeat("-", 50))

	stats := &Stats{}

	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        config.ConcurrentWorkers,
			MaxIdleConnsPerHost: config.ConcurrentWorkers,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: 60 * time.Second,
	}

	jobs := make(chan []byte, config.ConcurrentWorkers)

	var wg sync.WaitGroup
	for i := 0; i < config.ConcurrentWorkers; i++ {
		wg.Add(1)
		go worker(client, config, stats, jobs, &wg)
	}

	startTime := time.Now()

	// interleave orders so redeliveries of one order race each other
	payloads := make([][]byte, len(config.Orders))
	for i, orderID := range config.Orders {
		payloads[i] = notification(config, strings.TrimSpace(orderID))
	}
	for round := 0; round < config.Redeliveries; round++ {
		for _, p := range payloads {
			jobs <- p
		}
	}

	close(jobs)
	wg.Wait()

	duration := time.Since(startTime).Seconds()

	success := stats.successCount.Load()
	errors := stats.errorCount.Load()
	done := success + errors

	times := stats.getResponseTimes()
	var avgResponseTime, minTime, maxTime float64
	if len(times) > 0 {
		sum := 0.0
		minTime = times[0]
		maxTime = times[0]
		for _, t := range times {
			sum += t
			minTime = min(minTime, t)
			maxTime = max(maxTime, t)
		}
		avgResponseTime = sum / float64(len(times))
	}

	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("WEBHOOK REDELIVERY RESULTS")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Duration: %.2f seconds\n", duration)
	fmt.Printf("Total requests: %d\n", done)
	fmt.Printf("Acknowledged: %d\n", success)
	fmt.Printf("Failed: %d\n", errors)
	stats.statusCodes.Range(func(k, v any) bool {
		fmt.Printf("  HTTP %d: %d\n", k.(int), v.(*atomic.Int64).Load())
		return true
	})
	if duration > 0 {
		fmt.Printf("\nActual RPS: %.2f\n", float64(done)/duration)
	}
	fmt.Printf("\nResponse times:\n")
	fmt.Printf("  Average: %.2f ms\n", avgResponseTime*1000)
	fmt.Printf("  P50: %.2f ms\n", calculatePercentile(times, 0.50)*1000)
	fmt.Printf("  P95: %.2f ms\n", calculatePercentile(times, 0.95)*1000)
	fmt.Printf("  P99: %.2f ms\n", calculatePercentile(times, 0.99)*1000)
	fmt.Printf("  Min: %.2f ms\n", minTime*1000)
	fmt.Printf("  Max: %.2f ms\n", maxTime*1000)
	fmt.Println("\nEach invoice must be credited once; check paid_amount and receipts.")
}
