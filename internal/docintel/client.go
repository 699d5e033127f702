// Package docintel is a client for the Azure Document Intelligence
// prebuilt-receipt model. The service is treated as a black box: given a
// file URL it eventually returns structured receipt fields or fails.
package docintel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	apiVersion = "2023-07-31"
	modelID    = "prebuilt-receipt"
)

type Client struct {
	endpoint     string
	apiKey       string
	httpClient   *http.Client
	pollInterval time.Duration
}

func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second, // per round trip; overall analysis is bounded by ctx
		},
		pollInterval: 2 * time.Second,
	}
}

// Result is the extracted receipt payload stored on the status record.
// RawFields keeps the service's full field set verbatim for debugging.
type Result struct {
	MerchantName    *string            `json:"merchantName"`
	TransactionDate *string            `json:"transactionDate"`
	Subtotal        *float64           `json:"subtotal"`
	Tax             *float64           `json:"tax"`
	Tip             *float64           `json:"tip"`
	Total           *float64           `json:"total"`
	Items           []LineItem         `json:"items"`
	FieldConfidence map[string]float64 `json:"fieldConfidence"`
	RawFields       json.RawMessage    `json:"rawFields"`
}

type LineItem struct {
	Description *string  `json:"description"`
	Quantity    *float64 `json:"quantity"`
	Price       *float64 `json:"price"`
	TotalPrice  *float64 `json:"totalPrice"`
}

// field mirrors the Azure analyze-result field shape for the pieces we read.
type field struct {
	ValueString *string  `json:"valueString"`
	ValueNumber *float64 `json:"valueNumber"`
	ValueDate   *string  `json:"valueDate"`
	Confidence  *float64 `json:"confidence"`
	ValueArray  []struct {
		ValueObject map[string]field `json:"valueObject"`
	} `json:"valueArray"`
}

type analyzeResult struct {
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	AnalyzeResult struct {
		Documents []struct {
			Fields map[string]json.RawMessage `json:"fields"`
		} `json:"documents"`
	} `json:"analyzeResult"`
}

// AnalyzeReceipt submits the document at fileURL for analysis and polls the
// returned operation until it settles. The ctx deadline bounds the whole
// call; a stuck operation never occupies a worker past it.
func (c *Client) AnalyzeReceipt(ctx context.Context, fileURL string) (json.RawMessage, error) {
	opURL, err := c.submit(ctx, fileURL)
	if err != nil {
		return nil, err
	}
	return c.pollOperation(ctx, opURL)
}

func (c *Client) submit(ctx context.Context, fileURL string) (string, error) {
	reqBody, err := json.Marshal(map[string]string{"urlSource": fileURL})
	if err != nil {
		return "", fmt.Errorf("failed to marshal analyze request: %w", err)
	}

	url := fmt.Sprintf("%s/formrecognizer/documentModels/%s:analyze?api-version=%s", c.endpoint, modelID, apiVersion)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create analyze request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("document analysis service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("document analysis rejected the request (status %d): %s", resp.StatusCode, summarize(body))
	}

	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", fmt.Errorf("document analysis response missing Operation-Location header")
	}
	return opURL, nil
}

func (c *Client) pollOperation(ctx context.Context, opURL string) (json.RawMessage, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		result, err := c.fetchOperation(ctx, opURL)
		if err != nil {
			return nil, err
		}

		switch result.Status {
		case "succeeded":
			return mapResult(result)
		case "failed":
			if result.Error != nil {
				return nil, fmt.Errorf("document analysis failed: %s", result.Error.Message)
			}
			return nil, fmt.Errorf("document analysis failed")
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("document analysis timed out: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) fetchOperation(ctx context.Context, opURL string) (*analyzeResult, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", opURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("document analysis service unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis result: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("document analysis poll failed (status %d): %s", resp.StatusCode, summarize(body))
	}

	var result analyzeResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse analysis result: %w", err)
	}
	return &result, nil
}

// mapResult flattens the first analyzed document into the Result shape.
func mapResult(ar *analyzeResult) (json.RawMessage, error) {
	if len(ar.AnalyzeResult.Documents) == 0 {
		return nil, fmt.Errorf("document analysis returned no documents")
	}

	rawFields := ar.AnalyzeResult.Documents[0].Fields
	fields := make(map[string]field, len(rawFields))
	for name, raw := range rawFields {
		var f field
		if err := json.Unmarshal(raw, &f); err != nil {
			continue // unknown field shape, still preserved in RawFields
		}
		fields[name] = f
	}

	result := Result{
		FieldConfidence: map[string]float64{},
	}
	result.MerchantName = stringValue(fields, "MerchantName", result.FieldConfidence)
	result.TransactionDate = dateValue(fields, "TransactionDate", result.FieldConfidence)
	result.Subtotal = numberValue(fields, "Subtotal", result.FieldConfidence)
	result.Tax = numberValue(fields, "TotalTax", result.FieldConfidence)
	result.Tip = numberValue(fields, "Tip", result.FieldConfidence)
	result.Total = numberValue(fields, "Total", result.FieldConfidence)

	if items, ok := fields["Items"]; ok {
		for _, entry := range items.ValueArray {
			obj := entry.ValueObject
			item := LineItem{}
			if f, ok := obj["Description"]; ok {
				item.Description = f.ValueString
			}
			if f, ok := obj["Quantity"]; ok {
				item.Quantity = f.ValueNumber
			}
			if f, ok := obj["Price"]; ok {
				item.Price = f.ValueNumber
			}
			if f, ok := obj["TotalPrice"]; ok {
				item.TotalPrice = f.ValueNumber
			}
			result.Items = append(result.Items, item)
		}
	}

	if raw, err := json.Marshal(rawFields); err == nil {
		result.RawFields = raw
	}

	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode extracted data: %w", err)
	}
	return out, nil
}

func stringValue(fields map[string]field, name string, conf map[string]float64) *string {
	f, ok := fields[name]
	if !ok {
		return nil
	}
	recordConfidence(conf, name, f)
	return f.ValueString
}

func dateValue(fields map[string]field, name string, conf map[string]float64) *string {
	f, ok := fields[name]
	if !ok {
		return nil
	}
	recordConfidence(conf, name, f)
	if f.ValueDate != nil {
		return f.ValueDate
	}
	return f.ValueString
}

func numberValue(fields map[string]field, name string, conf map[string]float64) *float64 {
	f, ok := fields[name]
	if !ok {
		return nil
	}
	recordConfidence(conf, name, f)
	return f.ValueNumber
}

func recordConfidence(conf map[string]float64, name string, f field) {
	if f.Confidence != nil {
		conf[name] = *f.Confidence
	}
}

// summarize truncates service error bodies so log lines and wrapped errors
// stay readable.
func summarize(body []byte) string {
	const max = 200
	s := string(body)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
