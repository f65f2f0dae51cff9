package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/models"
)

type InstamojoGateway struct {
	baseURL     string
	apiKey      string
	authToken   string
	frontendURL string
	httpClient  *http.Client
}

func NewInstamojoGateway(baseURL, apiKey, authToken, frontendURL string, timeout time.Duration) *InstamojoGateway {
	return &InstamojoGateway{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		authToken:   authToken,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
	}
}

func (g *InstamojoGateway) Name() string { return models.GatewayInstamojo }

func (g *InstamojoGateway) Supports(currency string) bool {
	return strings.EqualFold(currency, "inr")
}

type instamojoPaymentRequest struct {
	ID      string `json:"id"`
	LongURL string `json:"longurl"`
	Status  string `json:"status"`
	Payment *struct {
		PaymentID string `json:"payment_id"`
		Status    string `json:"status"`
		Amount    string `json:"amount"`
		Currency  string `json:"currency"`
	} `json:"payment"`
}

type instamojoResponse struct {
	Success        bool                    `json:"success"`
	Message        json.RawMessage         `json:"message"`
	PaymentRequest instamojoPaymentRequest `json:"payment_request"`
}

func (g *InstamojoGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("purpose", req.Description)
	form.Set("amount", formatMajor(req.Amount))
	form.Set("redirect_url", g.frontendURL+"/payment/success?gateway=instamojo")
	form.Set("allow_repeated_payments", "false")
	if req.Email != "" {
		form.Set("email", req.Email)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/payment-requests/", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	out, err := g.do(httpReq)
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{Reference: out.PaymentRequest.ID, URL: out.PaymentRequest.LongURL}, nil
}

// Confirm reads the payment under its payment request. Only status "Credit"
// counts as paid.
func (g *InstamojoGateway) Confirm(ctx context.Context, c Confirmation) (*Settlement, error) {
	if c.PaymentID == "" {
		return nil, fmt.Errorf("instamojo payment_id is required")
	}
	endpoint := fmt.Sprintf("%s/payment-requests/%s/%s/", g.baseURL, url.PathEscape(c.Reference), url.PathEscape(c.PaymentID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	out, err := g.do(httpReq)
	if err != nil {
		return nil, err
	}
	p := out.PaymentRequest.Payment
	if p == nil {
		return &Settlement{}, nil
	}
	return &Settlement{
		Paid:      p.Status == "Credit",
		PaymentID: p.PaymentID,
		Amount:    parseMajor(p.Amount),
		Currency:  strings.ToLower(p.Currency),
	}, nil
}

func (g *InstamojoGateway) do(req *http.Request) (*instamojoResponse, error) {
	req.Header.Set("X-Api-Key", g.apiKey)
	req.Header.Set("X-Auth-Token", g.authToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("instamojo request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read instamojo response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("instamojo returned status %d: %s", resp.StatusCode, string(body))
	}

	var out instamojoResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode instamojo response: %w", err)
	}
	if !out.Success {
		return nil, fmt.Errorf("instamojo rejected request: %s", string(out.Message))
	}
	return &out, nil
}

// parseMajor turns "799.00" into 79900. Malformed input yields 0.
func parseMajor(s string) int64 {
	whole, frac, _ := strings.Cut(s, ".")
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0
	}
	frac = (frac + "00")[:2]
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0
	}
	return w*100 + f
}
