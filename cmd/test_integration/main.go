package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

const (
	baseURL = "http://localhost:8080"
)

var userID = uuid.NewString()

func main() {
	// Wait for server to start
	time.Sleep(2 * time.Second)

	fmt.Println("Starting Smoke Test...")
	fmt.Printf("Tenant: %s\n", userID)

	sessionID := uuid.NewString()

	// 1. Health
	fmt.Println("1. Checking Health...")
	if !sendRequest("GET", "/api/healthz", nil, http.StatusOK) {
		fmt.Println("FAILED: Health check")
		os.Exit(1)
	}
	fmt.Println("PASSED: Health check")

	// 2. Reconcile a transcript
	fmt.Println("2. Reconciling Session...")
	payload := map[string]interface{}{
		"language": "en",
		"segments": []map[string]interface{}{
			{"speaker": "SPEAKER_00", "text": "Alice Johnson from Acme Corp joined the kickoff for Project Phoenix.", "start": 0.0, "end": 6.2},
			{"speaker": "SPEAKER_01", "text": "Thanks Alice. Acme Corp owns the rollout and Bob Smith handles QA.", "start": 6.2, "end": 13.8},
		},
	}
	if !sendRequest("POST", "/api/sessions/"+sessionID+"/reconcile", payload, http.StatusAccepted) {
		fmt.Println("FAILED: Reconcile session")
		os.Exit(1)
	}
	fmt.Println("PASSED: Reconcile session")

	// Reconciliation runs in the background
	time.Sleep(3 * time.Second)

	// 3. List entities
	fmt.Println("3. Listing Entities...")
	if !sendRequest("GET", "/api/entities", nil, http.StatusOK) {
		fmt.Println("FAILED: List entities")
		os.Exit(1)
	}
	fmt.Println("PASSED: List entities")

	// 4. File a manual suggestion against the session
	fmt.Println("4. Creating Suggestion...")
	suggestion := map[string]interface{}{
		"session_id":        sessionID,
		"source_value":      "Bob Smith",
		"target_value":      "Project Phoenix",
		"relationship_type": "ASSIGNED_TO",
		"confidence":        0.5,
		"context":           "Bob Smith handles QA for the rollout.",
	}
	if !sendRequest("POST", "/api/suggestions", suggestion, http.StatusCreated) {
		fmt.Println("FAILED: Create suggestion")
		os.Exit(1)
	}
	fmt.Println("PASSED: Create suggestion")

	// 5. List pending suggestions
	fmt.Println("5. Listing Suggestions...")
	if !sendRequest("GET", "/api/suggestions?status=pending", nil, http.StatusOK) {
		fmt.Println("FAILED: List suggestions")
		os.Exit(1)
	}
	fmt.Println("PASSED: List suggestions")
}

func sendRequest(method, endpoint string, payload interface{}, wantStatus int) bool {
	var body io.Reader
	if payload != nil {
		jsonBytes, _ := json.Marshal(payload)
		body = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, baseURL+endpoint, body)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID)

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		return false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(respBody))
		return false
	}
	fmt.Printf("Response: %s\n", string(respBody))

	return true
}
