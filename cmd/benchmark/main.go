// Benchmark tool for testing Kestrel's ring detection against synthetic
// fraud data.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -users 500 -rings 10
//
// This tool:
//  1. Generates a synthetic population with planted fraud rings (groups of
//     users sharing devices, IPs and addresses) plus organic background users
//  2. Uploads a toy classifier artifact and pushes events and profiles
//  3. Triggers a scoring epoch and waits for it to publish
//  4. Compares detected ring membership with the planted ground truth and
//     reports precision, recall and F1
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"time"
)

type event struct {
	UserID       string    `json:"userId"`
	ResourceType string    `json:"resourceType"`
	ResourceID   string    `json:"resourceId"`
	Timestamp    time.Time `json:"timestamp"`
}

type profile struct {
	UserID          string    `json:"userId"`
	CreatedAt       time.Time `json:"createdAt"`
	ReturnCount     float64   `json:"returnCount"`
	ReturnFrequency float64   `json:"returnFrequency"`
	AvgReturnValue  float64   `json:"avgReturnValue"`
	MaxReturnValue  float64   `json:"maxReturnValue"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type epochStatus struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Error   string `json:"error"`
	Rings   int    `json:"ringsDetected"`
	Scored  int    `json:"usersScored"`
	Started string `json:"startedAt"`
}

type ringMember struct {
	UserID string `json:"userId"`
}

type ring struct {
	ID           string       `json:"id"`
	CenterUserID string       `json:"centerUserId"`
	Members      []ringMember `json:"members"`
	RiskLevel    string       `json:"riskLevel"`
}

type ringList struct {
	Rings []ring `json:"rings"`
}

func main() {
	url := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	users := flag.Int("users", 500, "number of background users")
	rings := flag.Int("rings", 10, "number of planted fraud rings")
	ringSize := flag.Int("ring-size", 5, "users per planted ring")
	seed := flag.Int64("seed", 42, "dataset generation seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	now := time.Now().UTC()

	var events []event
	var profiles []profile
	planted := make(map[string]bool)

	// Background users: each with their own device/IP/address, light
	// return behavior, mature accounts.
	for i := 0; i < *users; i++ {
		userID := fmt.Sprintf("user-%04d", i)
		events = append(events,
			event{userID, "device", fmt.Sprintf("dev-%04d", i), now},
			event{userID, "ip", fmt.Sprintf("ip-%04d", i), now},
			event{userID, "address", fmt.Sprintf("addr-%04d", i), now},
		)
		profiles = append(profiles, profile{
			UserID:          userID,
			CreatedAt:       now.AddDate(0, 0, -(90 + rng.Intn(600))),
			ReturnCount:     float64(rng.Intn(4)),
			ReturnFrequency: rng.Float64() * 1.5,
			AvgReturnValue:  20 + rng.Float64()*60,
			MaxReturnValue:  50 + rng.Float64()*100,
			UpdatedAt:       now,
		})
	}

	// Planted rings: every member reuses the ring's shared device, IP and
	// address, heavy return behavior, fresh accounts.
	for r := 0; r < *rings; r++ {
		sharedDev := fmt.Sprintf("ring%02d-dev", r)
		sharedIP := fmt.Sprintf("ring%02d-ip", r)
		sharedAddr := fmt.Sprintf("ring%02d-addr", r)

		for m := 0; m < *ringSize; m++ {
			userID := fmt.Sprintf("fraud-%02d-%02d", r, m)
			planted[userID] = true
			events = append(events,
				event{userID, "device", sharedDev, now},
				event{userID, "device", sharedDev, now}, // repeated use
				event{userID, "ip", sharedIP, now},
				event{userID, "address", sharedAddr, now},
			)
			profiles = append(profiles, profile{
				UserID:          userID,
				CreatedAt:       now.AddDate(0, 0, -(5 + rng.Intn(20))),
				ReturnCount:     float64(8 + rng.Intn(15)),
				ReturnFrequency: 5 + rng.Float64()*10,
				AvgReturnValue:  150 + rng.Float64()*300,
				MaxReturnValue:  400 + rng.Float64()*600,
				UpdatedAt:       now,
			})
		}
	}

	fmt.Printf("Generated %d events, %d profiles (%d planted fraud users)\n",
		len(events), len(profiles), len(planted))

	if err := post(*url+"/models/classifier", http.MethodPut, toyModel()); err != nil {
		fatal("upload model", err)
	}
	if err := post(*url+"/events", http.MethodPost, map[string]any{"events": events}); err != nil {
		fatal("ingest events", err)
	}
	if err := post(*url+"/profiles", http.MethodPost, map[string]any{"profiles": profiles}); err != nil {
		fatal("save profiles", err)
	}
	if err := post(*url+"/epochs", http.MethodPost, map[string]any{}); err != nil {
		fatal("trigger epoch", err)
	}

	epoch, err := waitForEpoch(*url, 5*time.Minute)
	if err != nil {
		fatal("wait for epoch", err)
	}
	fmt.Printf("Epoch %s published: %d users scored, %d rings detected\n",
		epoch.ID, epoch.Scored, epoch.Rings)

	detected, err := fetchRingUsers(*url)
	if err != nil {
		fatal("fetch rings", err)
	}

	report(planted, detected)
}

// toyModel is a two-tree GBDT splitting on return frequency and shared
// devices, enough for the benchmark's separation of planted vs organic.
func toyModel() map[string]any {
	leaf := func(v float64) map[string]any { return map[string]any{"leaf": v} }
	return map[string]any{
		"version":       "bench-v1",
		"kind":          "gbdt",
		"schemaVersion": "v1",
		"featureSchema": []string{
			"return_count", "return_frequency", "avg_return_value",
			"max_return_value", "account_age_days", "shared_device_count",
			"shared_ip_count", "shared_address_count",
		},
		"payload": map[string]any{
			"baseScore": 0.0,
			"trees": []map[string]any{
				{"nodes": []map[string]any{
					{"feature": "return_frequency", "threshold": 4.0, "left": 1, "right": 2},
					leaf(-1.2),
					leaf(1.4),
				}},
				{"nodes": []map[string]any{
					{"feature": "shared_device_count", "threshold": 1.0, "left": 1, "right": 2},
					leaf(-0.8),
					leaf(1.1),
				}},
			},
			"calibration":      map[string]any{"a": -1.0, "b": 0.0},
			"optimalThreshold": 0.5,
		},
	}
}

func waitForEpoch(url string, timeout time.Duration) (*epochStatus, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/epochs/current")
		if err != nil {
			return nil, err
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			var epoch epochStatus
			if err := json.Unmarshal(body, &epoch); err != nil {
				return nil, err
			}
			switch epoch.Status {
			case "published":
				return &epoch, nil
			case "failed", "aborted":
				return nil, fmt.Errorf("epoch %s %s: %s", epoch.ID, epoch.Status, epoch.Error)
			}
		}
		time.Sleep(2 * time.Second)
	}
	return nil, fmt.Errorf("timed out after %s", timeout)
}

func fetchRingUsers(url string) (map[string]bool, error) {
	resp, err := http.Get(url + "/rings")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var list ringList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, err
	}

	users := make(map[string]bool)
	for _, r := range list.Rings {
		users[r.CenterUserID] = true
		for _, m := range r.Members {
			users[m.UserID] = true
		}
	}
	return users, nil
}

func report(planted, detected map[string]bool) {
	var tp, fp, fn int
	for u := range detected {
		if planted[u] {
			tp++
		} else {
			fp++
		}
	}
	for u := range planted {
		if !detected[u] {
			fn++
		}
	}

	precision := safeDiv(float64(tp), float64(tp+fp))
	recall := safeDiv(float64(tp), float64(tp+fn))
	f1 := safeDiv(2*precision*recall, precision+recall)

	fmt.Println()
	fmt.Println("=== Ring Detection Benchmark ===")
	fmt.Printf("  Planted fraud users:  %d\n", len(planted))
	fmt.Printf("  Users in rings:       %d\n", len(detected))
	fmt.Printf("  True positives:       %d\n", tp)
	fmt.Printf("  False positives:      %d\n", fp)
	fmt.Printf("  False negatives:      %d\n", fn)
	fmt.Printf("  Precision:            %.3f\n", precision)
	fmt.Printf("  Recall:               %.3f\n", recall)
	fmt.Printf("  F1:                   %.3f\n", f1)
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func post(url, method string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, msg)
	}
	return nil
}

func fatal(stage string, err error) {
	fmt.Fprintf(os.Stderr, "benchmark failed at %s: %v\n", stage, err)
	os.Exit(1)
}
