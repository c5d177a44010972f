//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel trust engine.
//
// These tests exercise the COMPLETE scoring pipeline over HTTP:
//
//	Events + Profiles → Graph → Epoch (embed, score, detect) → Trust + Rings
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. BEHAVIOR EVENT: A user touching a shared resource (device, IP, address).
//    Events build the co-occurrence graph.
//
// 2. BEHAVIOR PROFILE: Per-user return aggregates pushed by the ETL
//    collaborator. Profiles feed the classifier's behavioral features.
//
// 3. EPOCH: A batch recompute. Triggered via POST /epochs, runs
//    asynchronously, and atomically publishes trust records and rings
//    when it completes.
//
// 4. TRUST RECORD: trust = 1 - (0.6*fraudProbability + 0.4*(1-graphSignal)),
//    mapped to a tier (Highly Trusted ... Banned) by inclusive floors.
//
// 5. RING: A fraud cluster around a center user, found by embedding
//    similarity corroborated by shared infrastructure.
//
// REQUIRED SETUP: a running Kestrel server (default http://localhost:8080,
// override with KESTREL_TEST_URL). The server must point at an empty or
// disposable database; the test uploads its own classifier artifact.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{BaseURL: baseURL}
}

// ============================================================================
// API Request/Response Types (matching Kestrel's API contract)
// ============================================================================

type Event struct {
	UserID       string    `json:"userId"`
	ResourceType string    `json:"resourceType"`
	ResourceID   string    `json:"resourceId"`
	Timestamp    time.Time `json:"timestamp"`
}

type Profile struct {
	UserID          string    `json:"userId"`
	CreatedAt       time.Time `json:"createdAt"`
	ReturnCount     float64   `json:"returnCount"`
	ReturnFrequency float64   `json:"returnFrequency"`
	AvgReturnValue  float64   `json:"avgReturnValue"`
	MaxReturnValue  float64   `json:"maxReturnValue"`
}

type IngestResponse struct {
	Accepted int `json:"accepted"`
	Rejected []struct {
		Index  int    `json:"index"`
		Reason string `json:"reason"`
	} `json:"rejected"`
	GraphVersion int64 `json:"graphVersion"`
}

type Epoch struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	ModelVersion  string `json:"modelVersion"`
	UsersScored   int    `json:"usersScored"`
	RingsDetected int    `json:"ringsDetected"`
	Exceptions    struct {
		FeatureIncomplete    []string `json:"featureIncomplete"`
		EmbeddingUnavailable []string `json:"embeddingUnavailable"`
	} `json:"exceptions"`
}

type TrustRecord struct {
	UserID           string  `json:"userId"`
	EpochID          string  `json:"epochId"`
	FraudProbability float64 `json:"fraudProbability"`
	GraphSignal      float64 `json:"graphSignal"`
	TrustScore       float64 `json:"trustScore"`
	Tier             string  `json:"tier"`
}

type Ring struct {
	ID           string `json:"id"`
	EpochID      string `json:"epochId"`
	CenterUserID string `json:"centerUserId"`
	Members      []struct {
		UserID          string  `json:"userId"`
		Similarity      float64 `json:"similarity"`
		SharedResources int     `json:"sharedResources"`
	} `json:"members"`
	RiskLevel     string  `json:"riskLevel"`
	TotalExposure float64 `json:"totalExposure"`
}

type RingsResponse struct {
	EpochID string `json:"epochId"`
	Rings   []Ring `json:"rings"`
}

type Assessment struct {
	UserID           string   `json:"user_id"`
	TrustScore       float64  `json:"trust_score"`
	Tier             string   `json:"tier"`
	FraudProbability float64  `json:"fraud_probability"`
	RingIDs          []string `json:"ring_ids"`
	RiskFactors      []string `json:"risk_factors"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func call(t *testing.T, config TestConfig, method, path string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequest(method, config.BaseURL+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	if out != nil && resp.StatusCode < 300 {
		if err := json.Unmarshal(respBody, out); err != nil {
			t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
		}
	}
	return resp.StatusCode
}

var featureSchema = []string{
	"return_count", "return_frequency", "avg_return_value", "max_return_value",
	"account_age_days", "shared_device_count", "shared_ip_count", "shared_address_count",
}

// uploadModel activates a hand-built two-tree artifact. Split values route
// right when the feature value is at or above the threshold, so the trees
// reward high return frequency and device sharing with positive margins.
func uploadModel(t *testing.T, config TestConfig, version string) {
	t.Helper()

	leaf := func(v float64) map[string]any {
		return map[string]any{"leaf": v}
	}
	payload := map[string]any{
		"baseScore": 0.0,
		"trees": []map[string]any{
			{"nodes": []map[string]any{
				{"feature": "return_frequency", "threshold": 4.0, "left": 1, "right": 2},
				leaf(-1.2), leaf(1.4),
			}},
			{"nodes": []map[string]any{
				{"feature": "shared_device_count", "threshold": 2.0, "left": 1, "right": 2},
				leaf(-0.8), leaf(1.1),
			}},
		},
		"calibration":      map[string]any{"a": -1.0, "b": 0.0},
		"optimalThreshold": 0.5,
	}

	req := map[string]any{
		"version":       version,
		"kind":          "gbdt",
		"schemaVersion": "v1",
		"featureSchema": featureSchema,
		"payload":       payload,
	}
	if status := call(t, config, http.MethodPut, "/models/classifier", req, nil); status != http.StatusOK {
		t.Fatalf("Model upload failed with HTTP %d", status)
	}
}

func waitForEpoch(t *testing.T, config TestConfig, modelVersion string) Epoch {
	t.Helper()

	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		var epoch Epoch
		status := call(t, config, http.MethodGet, "/epochs/current", nil, &epoch)
		if status == http.StatusOK && epoch.Status == "published" && epoch.ModelVersion == modelVersion {
			return epoch
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatal("Timed out waiting for epoch to publish")
	return Epoch{}
}

// ============================================================================
// SCENARIO 1: Full Epoch Flow (Ingest → Score → Query)
// ============================================================================

func TestFullEpochFlow(t *testing.T) {
	/*
	   SCENARIO: Three users share a device and an IP (a textbook fraud
	   cluster) while a fourth user sits alone on private infrastructure.
	   Profiles mark the cluster as heavy returners on fresh accounts and
	   the loner as a long-standing light returner.

	   EXPECTED BEHAVIOR:
	   - All four users receive current trust records after the epoch
	   - The cluster's fraud probabilities exceed the clean user's
	   - At least one High-risk ring covers the cluster
	   - The assessment handoff exposes score, ring memberships and factors
	*/
	config := getTestConfig()
	modelVersion := fmt.Sprintf("it-model-%d", time.Now().UnixNano())
	uploadModel(t, config, modelVersion)

	now := time.Now().UTC()
	run := now.UnixNano()
	fraudsters := []string{
		fmt.Sprintf("it-fraud-a-%d", run),
		fmt.Sprintf("it-fraud-b-%d", run),
		fmt.Sprintf("it-fraud-c-%d", run),
	}
	clean := fmt.Sprintf("it-clean-%d", run)
	sharedDevice := fmt.Sprintf("it-dev-%d", run)
	sharedIP := fmt.Sprintf("it-ip-%d", run)

	var events []Event
	for _, id := range fraudsters {
		events = append(events,
			Event{UserID: id, ResourceType: "device", ResourceID: sharedDevice, Timestamp: now},
			Event{UserID: id, ResourceType: "ip", ResourceID: sharedIP, Timestamp: now},
		)
	}
	events = append(events,
		Event{UserID: clean, ResourceType: "device", ResourceID: "it-dev-own-" + clean, Timestamp: now},
		Event{UserID: clean, ResourceType: "ip", ResourceID: "it-ip-own-" + clean, Timestamp: now},
	)

	var ingest IngestResponse
	if status := call(t, config, http.MethodPost, "/events", map[string]any{"events": events}, &ingest); status != http.StatusOK {
		t.Fatalf("Event ingest failed with HTTP %d", status)
	}
	if ingest.Accepted != len(events) {
		t.Fatalf("Expected %d accepted events, got %d (rejected: %v)", len(events), ingest.Accepted, ingest.Rejected)
	}

	var profiles []Profile
	for _, id := range fraudsters {
		profiles = append(profiles, Profile{
			UserID:          id,
			CreatedAt:       now.AddDate(0, 0, -7),
			ReturnCount:     12,
			ReturnFrequency: 9,
			AvgReturnValue:  180,
			MaxReturnValue:  400,
		})
	}
	profiles = append(profiles, Profile{
		UserID:          clean,
		CreatedAt:       now.AddDate(-2, 0, 0),
		ReturnCount:     1,
		ReturnFrequency: 0.2,
		AvgReturnValue:  25,
		MaxReturnValue:  25,
	})
	if status := call(t, config, http.MethodPost, "/profiles", map[string]any{"profiles": profiles}, nil); status != http.StatusOK {
		t.Fatalf("Profile upsert failed with HTTP %d", status)
	}

	if status := call(t, config, http.MethodPost, "/epochs", nil, nil); status != http.StatusAccepted {
		t.Fatalf("Expected 202 from epoch trigger, got %d", status)
	}

	epoch := waitForEpoch(t, config, modelVersion)
	if epoch.UsersScored < 4 {
		t.Errorf("Expected at least 4 scored users, got %d", epoch.UsersScored)
	}
	t.Logf("✓ Epoch %s published: scored=%d, rings=%d", epoch.ID, epoch.UsersScored, epoch.RingsDetected)

	var cleanRecord TrustRecord
	if status := call(t, config, http.MethodGet, "/users/"+clean+"/trust", nil, &cleanRecord); status != http.StatusOK {
		t.Fatalf("Trust lookup for clean user failed with HTTP %d", status)
	}
	if cleanRecord.EpochID != epoch.ID {
		t.Errorf("Clean user record from epoch %s, expected %s", cleanRecord.EpochID, epoch.ID)
	}

	for _, id := range fraudsters {
		var record TrustRecord
		if status := call(t, config, http.MethodGet, "/users/"+id+"/trust", nil, &record); status != http.StatusOK {
			t.Fatalf("Trust lookup for %s failed with HTTP %d", id, status)
		}
		// The graph term can lift a ring member's composite score, so the
		// stable cross-user ordering is on fraud probability alone.
		if record.FraudProbability <= cleanRecord.FraudProbability {
			t.Errorf("Expected %s fraud probability above clean user's (%.3f vs %.3f)",
				id, record.FraudProbability, cleanRecord.FraudProbability)
		}
		if record.TrustScore < 0 || record.TrustScore > 1 {
			t.Errorf("Trust score out of range for %s: %.3f", id, record.TrustScore)
		}
	}
	t.Logf("✓ Cluster out-scores clean user on fraud probability")

	var rings RingsResponse
	if status := call(t, config, http.MethodGet, "/rings?risk_level=High", nil, &rings); status != http.StatusOK {
		t.Fatalf("Ring listing failed with HTTP %d", status)
	}
	if rings.EpochID != epoch.ID {
		t.Errorf("Rings from epoch %s, expected %s", rings.EpochID, epoch.ID)
	}
	foundCluster := false
	isFraudster := map[string]bool{}
	for _, id := range fraudsters {
		isFraudster[id] = true
	}
	for _, ring := range rings.Rings {
		if !isFraudster[ring.CenterUserID] {
			continue
		}
		foundCluster = true
		if len(ring.Members) == 0 {
			t.Errorf("Ring %s has no members", ring.ID)
		}
		for _, m := range ring.Members {
			if m.SharedResources < 1 {
				t.Errorf("Ring member %s corroborated by zero shared resources", m.UserID)
			}
		}
		if ring.TotalExposure <= 0 {
			t.Errorf("Ring %s has non-positive exposure %.2f", ring.ID, ring.TotalExposure)
		}

		var fetched Ring
		if status := call(t, config, http.MethodGet, "/rings/"+ring.ID, nil, &fetched); status != http.StatusOK {
			t.Errorf("Ring fetch for %s failed with HTTP %d", ring.ID, status)
		} else if fetched.CenterUserID != ring.CenterUserID {
			t.Errorf("Ring %s center mismatch: %s vs %s", ring.ID, fetched.CenterUserID, ring.CenterUserID)
		}
	}
	if !foundCluster {
		t.Error("Expected a High-risk ring centered on a cluster member")
	}
	t.Logf("✓ Ring detection covers the shared-infrastructure cluster")

	var handoff Assessment
	if status := call(t, config, http.MethodGet, "/users/"+fraudsters[0]+"/assessment", nil, &handoff); status != http.StatusOK {
		t.Fatalf("Assessment failed with HTTP %d", status)
	}
	if handoff.UserID != fraudsters[0] {
		t.Errorf("Assessment for wrong user: %s", handoff.UserID)
	}
	if handoff.Tier == "" {
		t.Error("Assessment missing tier")
	}
	if len(handoff.RiskFactors) == 0 {
		t.Error("Expected risk factors for a heavy returner on a fresh account")
	}
	t.Logf("✓ Assessment handoff: tier=%s, rings=%d, factors=%v",
		handoff.Tier, len(handoff.RingIDs), handoff.RiskFactors)
}

// ============================================================================
// SCENARIO 2: Per-Record Ingest Validation
// ============================================================================

func TestIngestValidation(t *testing.T) {
	/*
	   SCENARIO: A batch mixing valid and malformed events

	   EXPECTED BEHAVIOR:
	   - Malformed records are rejected individually with their batch index
	   - Valid records in the same batch are still accepted (HTTP 200)
	   - An entirely empty batch is a 400
	*/
	config := getTestConfig()
	now := time.Now().UTC()
	run := time.Now().UnixNano()

	events := []Event{
		{UserID: fmt.Sprintf("it-valid-%d", run), ResourceType: "device", ResourceID: "it-dev-v", Timestamp: now},
		{UserID: "", ResourceType: "device", ResourceID: "it-dev-v", Timestamp: now},
		{UserID: "it-bad-type", ResourceType: "fingerprint", ResourceID: "it-dev-v", Timestamp: now},
	}

	var resp IngestResponse
	if status := call(t, config, http.MethodPost, "/events", map[string]any{"events": events}, &resp); status != http.StatusOK {
		t.Fatalf("Expected 200 for mixed batch, got %d", status)
	}
	if resp.Accepted != 1 {
		t.Errorf("Expected 1 accepted event, got %d", resp.Accepted)
	}
	if len(resp.Rejected) != 2 {
		t.Fatalf("Expected 2 rejections, got %v", resp.Rejected)
	}
	if resp.Rejected[0].Index != 1 || resp.Rejected[1].Index != 2 {
		t.Errorf("Rejection indexes wrong: %v", resp.Rejected)
	}

	if status := call(t, config, http.MethodPost, "/events", map[string]any{"events": []Event{}}, nil); status != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty batch, got %d", status)
	}

	t.Logf("✓ Per-record validation: accepted=%d, rejected=%d", resp.Accepted, len(resp.Rejected))
}

// ============================================================================
// SCENARIO 3: Unknown Users and Bad Queries
// ============================================================================

func TestUnknownUser_NotFound(t *testing.T) {
	/*
	   SCENARIO: Trust and assessment lookups for a user that was never
	   ingested

	   EXPECTED: HTTP 404 on both endpoints
	*/
	config := getTestConfig()
	ghost := fmt.Sprintf("/users/it-ghost-%d", time.Now().UnixNano())

	if status := call(t, config, http.MethodGet, ghost+"/trust", nil, nil); status != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown user trust, got %d", status)
	}
	if status := call(t, config, http.MethodGet, ghost+"/assessment", nil, nil); status != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown user assessment, got %d", status)
	}

	t.Logf("✓ Unknown user lookups return 404")
}

func TestInvalidRiskLevel_BadRequest(t *testing.T) {
	config := getTestConfig()

	if status := call(t, config, http.MethodGet, "/rings?risk_level=Extreme", nil, nil); status != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid risk level, got %d", status)
	}

	t.Logf("✓ Invalid risk level rejected")
}

// ============================================================================
// SCENARIO 4: Model Artifact Validation
// ============================================================================

func TestModelUpload_SchemaMismatchRejected(t *testing.T) {
	/*
	   SCENARIO: Artifact trained against a renamed feature

	   EXPECTED: HTTP 400 at upload time. A bad artifact must never become
	   active, otherwise the NEXT epoch would fail instead of this request.
	*/
	config := getTestConfig()

	badSchema := append([]string{}, featureSchema...)
	badSchema[0] = "credit_score"

	req := map[string]any{
		"version":       fmt.Sprintf("it-bad-%d", time.Now().UnixNano()),
		"kind":          "gbdt",
		"schemaVersion": "v1",
		"featureSchema": badSchema,
		"payload": map[string]any{
			"trees": []map[string]any{
				{"nodes": []map[string]any{{"leaf": 0.0}}},
			},
			"calibration": map[string]any{"a": -1.0, "b": 0.0},
		},
	}
	if status := call(t, config, http.MethodPut, "/models/classifier", req, nil); status != http.StatusBadRequest {
		t.Errorf("Expected 400 for schema mismatch, got %d", status)
	}

	t.Logf("✓ Mismatched artifact rejected at upload")
}

// ============================================================================
// SCENARIO 5: Health and Readiness
// ============================================================================

func TestHealthAndReadiness(t *testing.T) {
	config := getTestConfig()

	var health map[string]string
	if status := call(t, config, http.MethodGet, "/health", nil, &health); status != http.StatusOK {
		t.Fatalf("Health check failed with HTTP %d", status)
	}
	if health["status"] != "ok" {
		t.Errorf("Expected status ok, got %s", health["status"])
	}

	var ready struct {
		Ready  bool              `json:"ready"`
		Checks map[string]string `json:"checks"`
	}
	if status := call(t, config, http.MethodGet, "/ready", nil, &ready); status != http.StatusOK {
		t.Fatalf("Readiness check failed with HTTP %d", status)
	}
	if !ready.Ready {
		t.Errorf("Server not ready: %v", ready.Checks)
	}

	t.Logf("✓ Health and readiness: %v", ready.Checks)
}
