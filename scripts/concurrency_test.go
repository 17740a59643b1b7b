//go:build ignore
// +build ignore

// Package main is a manual stress test for the borrow API against a running server.
//
// Usage:
//
//	BOOK_ID=<uuid> STAFF_TOKEN=<jwt> MEMBER_TOKENS=<jwt1>,<jwt2>,... go run ./scripts/concurrency_test.go
//
// What it does:
//  1. Every member requests the same book at the same moment. Each member
//     must end up with at most one request.
//  2. The staff token accepts all created requests at the same moment.
//  3. Reads the book back and checks that accepts never exceeded the copies
//     that were available and that available never went negative.
//
// Prerequisites:
//   - Server must be running and reachable at SERVER_ADDR (default http://localhost:8080).
//   - The book must exist and have at least one available copy.
//   - Rate limiting should be disabled or set high enough for the burst.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultServerAddr = "http://localhost:8080"

var client = &http.Client{Timeout: 10 * time.Second}

type callResult struct {
	Label      string
	StatusCode int
	Body       map[string]any
	Err        error
}

type book struct {
	ID        string `json:"id"`
	Copies    int    `json:"copies"`
	Available int    `json:"available"`
}

func main() {
	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}
	bookID := os.Getenv("BOOK_ID")
	staffToken := os.Getenv("STAFF_TOKEN")
	var memberTokens []string
	for _, tok := range strings.Split(os.Getenv("MEMBER_TOKENS"), ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			memberTokens = append(memberTokens, tok)
		}
	}
	if bookID == "" || staffToken == "" || len(memberTokens) == 0 {
		log.Fatal("Usage: BOOK_ID=<uuid> STAFF_TOKEN=<jwt> MEMBER_TOKENS=<jwt1>,<jwt2>,... go run ./scripts/concurrency_test.go")
	}

	before, err := getBook(serverAddr, bookID)
	if err != nil {
		log.Fatalf("failed to load book: %v", err)
	}

	fmt.Printf("=== Borrow Concurrency Test ===\n")
	fmt.Printf("Server    : %s\n", serverAddr)
	fmt.Printf("Book      : %s (copies=%d, available=%d)\n", bookID, before.Copies, before.Available)
	fmt.Printf("Members   : %d\n\n", len(memberTokens))

	// Phase 1: every member requests the book, twice, all at once.
	var calls []func() callResult
	for i, tok := range memberTokens {
		for attempt := 0; attempt < 2; attempt++ {
			label := fmt.Sprintf("member-%d/%d", i, attempt)
			tok := tok
			calls = append(calls, func() callResult {
				return call(label, http.MethodPost, serverAddr+"/api/borrow/request", tok, map[string]string{"book_id": bookID})
			})
		}
	}
	fmt.Println("Firing borrow requests simultaneously...")
	created := fire(calls)

	var requestIDs []string
	var duplicates int
	for _, r := range created {
		switch r.StatusCode {
		case http.StatusCreated:
			if req, ok := r.Body["request"].(map[string]any); ok {
				requestIDs = append(requestIDs, fmt.Sprint(req["id"]))
			}
		case http.StatusConflict:
			duplicates++
		default:
			fmt.Printf("  [FAIL] %-14s status=%d err=%v body=%v\n", r.Label, r.StatusCode, r.Err, r.Body)
		}
	}
	fmt.Printf("Created   : %d\n", len(requestIDs))
	fmt.Printf("Conflicts : %d\n\n", duplicates)

	// Phase 2: staff accepts every created request at once.
	calls = calls[:0]
	for _, id := range requestIDs {
		id := id
		calls = append(calls, func() callResult {
			return call(id, http.MethodPatch, fmt.Sprintf("%s/api/borrow/requests/%s/status", serverAddr, id), staffToken, map[string]string{"status": "accepted"})
		})
	}
	fmt.Println("Firing accepts simultaneously...")
	accepted := fire(calls)

	var accepts, rejected, failures int
	for _, r := range accepted {
		switch r.StatusCode {
		case http.StatusOK:
			accepts++
		case http.StatusConflict, http.StatusBadRequest:
			rejected++
		default:
			failures++
			fmt.Printf("  [FAIL] %s status=%d err=%v body=%v\n", r.Label, r.StatusCode, r.Err, r.Body)
		}
	}

	after, err := getBook(serverAddr, bookID)
	if err != nil {
		log.Fatalf("failed to reload book: %v", err)
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Accepted        : %d\n", accepts)
	fmt.Printf("Refused         : %d\n", rejected)
	fmt.Printf("Failures        : %d\n", failures)
	fmt.Printf("Available after : %d\n\n", after.Available)

	fmt.Println("--- Invariant Check ---")
	ok := true
	if len(requestIDs) > len(memberTokens) {
		fmt.Printf("[FAIL] %d requests created for %d members: duplicate active requests\n", len(requestIDs), len(memberTokens))
		ok = false
	}
	if accepts > before.Available {
		fmt.Printf("[FAIL] %d accepts with only %d copies available\n", accepts, before.Available)
		ok = false
	}
	if after.Available < 0 || after.Available != before.Available-accepts {
		fmt.Printf("[FAIL] available=%d, expected %d\n", after.Available, before.Available-accepts)
		ok = false
	}
	if !ok || failures > 0 {
		os.Exit(1)
	}
	fmt.Println("OK: no duplicate holds, no over-lending, counter consistent.")
}

// fire runs all calls behind a barrier and waits for them.
func fire(calls []func() callResult) []callResult {
	results := make([]callResult, len(calls))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, fn := range calls {
		wg.Add(1)
		go func(idx int, fn func() callResult) {
			defer wg.Done()
			<-start // wait for the barrier
			results[idx] = fn()
		}(i, fn)
	}
	close(start)
	wg.Wait()
	return results
}

func call(label, method, url, token string, payload any) callResult {
	var body io.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return callResult{Label: label, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return callResult{Label: label, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return callResult{Label: label, StatusCode: resp.StatusCode, Err: fmt.Errorf("bad JSON: %s", raw)}
	}
	return callResult{Label: label, StatusCode: resp.StatusCode, Body: parsed}
}

func getBook(serverAddr, id string) (*book, error) {
	resp, err := client.Get(fmt.Sprintf("%s/api/physical-books/%s", serverAddr, id))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var b book
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		return nil, err
	}
	return &b, nil
}
