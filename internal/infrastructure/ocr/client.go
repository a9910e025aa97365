package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"bpm-agent/internal/application/port/output"
	"bpm-agent/internal/domain/entity"
)

var _ output.OCRPort = (*Client)(nil)

// ErrUnrecognized means the service answered but found no invoice in the
// document. Distinct from transport failures so callers can word the
// user message accordingly.
var ErrUnrecognized = errors.New("ocr: no invoice recognized")

// Client calls the invoice recognition service over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// recognizeRequest carries the document as a base64 data URL, the same
// shape for images and PDFs.
type recognizeRequest struct {
	Document string `json:"document"`
	Type     string `json:"type"`
}

type recognizeResponse struct {
	Success    bool    `json:"success"`
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence"`
	Invoice    struct {
		InvoiceNumber string `json:"invoice_number"`
		InvoiceDate   string `json:"invoice_date"`
		InvoiceType   string `json:"invoice_type"`
		TotalAmount   string `json:"total_amount"`
		TaxAmount     string `json:"tax_amount"`
		NetAmount     string `json:"net_amount"`
		SellerName    string `json:"seller_name"`
		SellerTaxID   string `json:"seller_tax_id"`
		BuyerName     string `json:"buyer_name"`
		BuyerTaxID    string `json:"buyer_tax_id"`
	} `json:"invoice"`
}

func (c *Client) ExtractInvoice(ctx context.Context, data []byte, contentType string) (*entity.Invoice, error) {
	reqBody := recognizeRequest{
		Document: "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data),
		Type:     "invoice",
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/recognize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ocr service error (status %d): %s", resp.StatusCode, respBody)
	}

	var parsed recognizeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("%w: %s", ErrUnrecognized, parsed.Message)
	}

	inv := parsed.Invoice
	return &entity.Invoice{
		InvoiceNumber: inv.InvoiceNumber,
		InvoiceDate:   inv.InvoiceDate,
		InvoiceType:   inv.InvoiceType,
		TotalAmount:   inv.TotalAmount,
		TaxAmount:     inv.TaxAmount,
		NetAmount:     inv.NetAmount,
		SellerName:    inv.SellerName,
		SellerTaxID:   inv.SellerTaxID,
		BuyerName:     inv.BuyerName,
		BuyerTaxID:    inv.BuyerTaxID,
		Confidence:    parsed.Confidence,
	}, nil
}
