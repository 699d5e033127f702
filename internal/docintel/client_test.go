package docintel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(serverURL string) *Client {
	c := NewClient(serverURL, "test-key")
	c.pollInterval = 10 * time.Millisecond
	return c
}

func TestAnalyzeReceipt_Success(t *testing.T) {
	var polls int32

	mux := http.NewServeMux()
	var server *httptest.Server

	mux.HandleFunc("/formrecognizer/documentModels/prebuilt-receipt:analyze", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "test-key" {
			t.Error("expected subscription key header")
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["urlSource"] == "" {
			t.Errorf("expected urlSource in request body, got %v (%v)", body, err)
		}
		w.Header().Set("Operation-Location", server.URL+"/operations/op-1")
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("/operations/op-1", func(w http.ResponseWriter, r *http.Request) {
		// First poll still running, second poll succeeded.
		if atomic.AddInt32(&polls, 1) == 1 {
			json.NewEncoder(w).Encode(map[string]interface{}{"status": "running"})
			return
		}
		w.Write([]byte(`{
			"status": "succeeded",
			"analyzeResult": {
				"documents": [{
					"fields": {
						"MerchantName": {"valueString": "Test Store", "confidence": 0.98},
						"Total": {"valueNumber": 12.99, "confidence": 0.95},
						"TransactionDate": {"valueDate": "2024-05-01", "confidence": 0.9},
						"Items": {"valueArray": [
							{"valueObject": {
								"Description": {"valueString": "Coffee"},
								"Quantity": {"valueNumber": 2},
								"TotalPrice": {"valueNumber": 7.98}
							}}
						]}
					}
				}]
			}
		}`))
	})

	server = httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(server.URL)

	raw, err := client.AnalyzeReceipt(context.Background(), "https://storage.example/receipt.png")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}

	if result.MerchantName == nil || *result.MerchantName != "Test Store" {
		t.Errorf("expected merchant 'Test Store', got %v", result.MerchantName)
	}
	if result.Total == nil || *result.Total != 12.99 {
		t.Errorf("expected total 12.99, got %v", result.Total)
	}
	if result.TransactionDate == nil || *result.TransactionDate != "2024-05-01" {
		t.Errorf("expected transaction date, got %v", result.TransactionDate)
	}
	if len(result.Items) != 1 || result.Items[0].Description == nil || *result.Items[0].Description != "Coffee" {
		t.Errorf("expected one Coffee line item, got %+v", result.Items)
	}
	if result.FieldConfidence["MerchantName"] != 0.98 {
		t.Errorf("expected merchant confidence 0.98, got %v", result.FieldConfidence["MerchantName"])
	}
	if len(result.RawFields) == 0 {
		t.Error("expected raw fields preserved")
	}
	if polls < 2 {
		t.Errorf("expected at least two polls, got %d", polls)
	}
}

func TestAnalyzeReceipt_OperationFailed(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server

	mux.HandleFunc("/formrecognizer/documentModels/prebuilt-receipt:analyze", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Operation-Location", server.URL+"/operations/op-2")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/operations/op-2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "failed", "error": {"code": "InvalidImage", "message": "The document is not a valid image."}}`))
	})

	server = httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.AnalyzeReceipt(context.Background(), "https://storage.example/bad.bin")
	if err == nil {
		t.Fatal("expected error for failed operation, got nil")
	}
	if !strings.Contains(err.Error(), "not a valid image") {
		t.Errorf("expected service message in error, got %v", err)
	}
}

func TestAnalyzeReceipt_SubmitRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"code": "InvalidRequest"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.AnalyzeReceipt(context.Background(), "https://storage.example/receipt.png")
	if err == nil {
		t.Fatal("expected error when the service rejects the request, got nil")
	}
}

func TestAnalyzeReceipt_ContextCancelled(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server

	mux.HandleFunc("/formrecognizer/documentModels/prebuilt-receipt:analyze", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Operation-Location", server.URL+"/operations/op-3")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/operations/op-3", func(w http.ResponseWriter, r *http.Request) {
		// Never settles.
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "running"})
	})

	server = httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.AnalyzeReceipt(ctx, "https://storage.example/receipt.png")
	if err == nil {
		t.Fatal("expected timeout error for an operation that never settles")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout in error, got %v", err)
	}
}
