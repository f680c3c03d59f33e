// Package backend implements the HTTP client for the claim-processing backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/claimflow/internal/model"
	"github.com/google/uuid"
)

// DefaultTimeout bounds every backend call when no timeout is configured.
const DefaultTimeout = 60 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// Client talks to the claim backend over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
}

// EvaluateRequest carries the documents for a full claim evaluation.
type EvaluateRequest struct {
	Policy    *model.Document
	UserID    string
	Discharge model.Document
	Bill      model.Document
}

// NewClient creates a client for the backend rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend url %q: scheme must be http or https", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// ValidateDischarge asks the backend whether the document is a genuine discharge summary.
func (c *Client) ValidateDischarge(ctx context.Context, doc model.Document) (*model.ValidationResult, error) {
	body, contentType, err := buildMultipart(nil, map[string]model.Document{"file": doc})
	if err != nil {
		return nil, err
	}

	var resp validationResponse
	if err := c.do(ctx, http.MethodPost, "/api/validate-medical-report", contentType, body, &resp); err != nil {
		return nil, err
	}

	return &model.ValidationResult{
		IsValid:   resp.IsValid,
		Reason:    resp.Reason,
		Timestamp: resp.Timestamp.orNow(),
	}, nil
}

// EvaluateClaim submits the claim documents and returns the issued claim record.
func (c *Client) EvaluateClaim(ctx context.Context, req EvaluateRequest) (*model.ClaimRecord, error) {
	files := map[string]model.Document{
		"discharge_file": req.Discharge,
		"bill_file":      req.Bill,
	}
	if req.Policy != nil {
		files["policy_file"] = *req.Policy
	}

	body, contentType, err := buildMultipart(map[string]string{"user_id": req.UserID}, files)
	if err != nil {
		return nil, err
	}

	var resp evaluationResponse
	if err := c.do(ctx, http.MethodPost, "/api/evaluate-full-claim", contentType, body, &resp); err != nil {
		return nil, err
	}

	if resp.ClaimID == "" {
		return nil, fmt.Errorf("%w: evaluation carried no claim_id", ErrInvalidResponse)
	}
	if resp.ClaimableAmount < 0 {
		return nil, fmt.Errorf("%w: negative claimable amount %.2f", ErrInvalidResponse, resp.ClaimableAmount)
	}

	return &model.ClaimRecord{
		ClaimID:         resp.ClaimID,
		ClaimableAmount: resp.ClaimableAmount,
		Reasoning:       resp.Reasoning,
		Timestamp:       resp.Timestamp.orNow(),
	}, nil
}

// NotifyHospital asks the backend to email the hospital a verification link.
func (c *Client) NotifyHospital(ctx context.Context, claimID, hospitalEmail string) error {
	payload, err := json.Marshal(notifyRequest{ClaimID: claimID, HospitalEmail: hospitalEmail})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	var resp ackResponse
	if err := c.do(ctx, http.MethodPost, "/api/send-hospital-email", "application/json", payload, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: notification not acknowledged: %s", ErrInvalidResponse, firstNonEmpty(resp.Reason, resp.Message))
	}
	return nil
}

// ClaimStatus returns the backend's current decision for claimID.
func (c *Client) ClaimStatus(ctx context.Context, claimID string) (model.ClaimStatus, error) {
	var resp statusResponse
	if err := c.do(ctx, http.MethodGet, "/api/claim-status/"+url.PathEscape(claimID), "", nil, &resp); err != nil {
		return model.StatusUnknown, err
	}

	status, err := model.ParseClaimStatus(resp.Status)
	if err != nil {
		return model.StatusUnknown, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return status, nil
}

// ClaimInsurance triggers the downstream insurance payout for an approved claim.
func (c *Client) ClaimInsurance(ctx context.Context, claimID string) (*model.FinalizeReceipt, error) {
	var resp ackResponse
	if err := c.do(ctx, http.MethodPost, "/api/claim-insurance/"+url.PathEscape(claimID), "", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: claim not paid out: %s", ErrInvalidResponse, firstNonEmpty(resp.Reason, resp.Message))
	}
	return &model.FinalizeReceipt{
		Message:         resp.Message,
		TransactionHash: resp.TransactionHash,
	}, nil
}

// Login exchanges credentials for the backend's user id.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	payload, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return "", fmt.Errorf("failed to encode login: %w", err)
	}

	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/api/login", "application/json", payload, &resp); err != nil {
		return "", err
	}
	if resp.UserID == "" {
		return "", fmt.Errorf("%w: login carried no user_id", ErrInvalidResponse)
	}
	return resp.UserID, nil
}

// Signup creates an account and returns its user id.
func (c *Client) Signup(ctx context.Context, name, email, password string) (string, error) {
	payload, err := json.Marshal(signupRequest{Name: name, Email: email, Password: password})
	if err != nil {
		return "", fmt.Errorf("failed to encode signup: %w", err)
	}

	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/api/signup", "application/json", payload, &resp); err != nil {
		return "", err
	}
	if resp.UserID == "" {
		return "", fmt.Errorf("%w: signup carried no user_id", ErrInvalidResponse)
	}
	return resp.UserID, nil
}

// VerifyHospitalUpload submits the hospital's copies of the discharge summary
// and bill for claimID. A clean answer with success=false returns ErrNotVerified.
func (c *Client) VerifyHospitalUpload(ctx context.Context, claimID string, discharge, bill model.Document) (string, error) {
	body, contentType, err := buildMultipart(nil, map[string]model.Document{
		"discharge_file": discharge,
		"bill_file":      bill,
	})
	if err != nil {
		return "", err
	}

	var resp ackResponse
	path := "/api/verify-hospital-upload/" + url.PathEscape(claimID)
	if err := c.do(ctx, http.MethodPost, path, contentType, body, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("%w: %s", ErrNotVerified, firstNonEmpty(resp.Reason, resp.Message))
	}
	return resp.Message, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	endpoint := c.baseURL.JoinPath(path)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	slog.Debug("Backend call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// buildMultipart encodes form fields and document uploads.
func buildMultipart(fields map[string]string, files map[string]model.Document) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", name, err)
		}
	}

	for field, doc := range files {
		if err := attachFile(w, field, doc); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func attachFile(w *multipart.Writer, field string, doc model.Document) error {
	f, err := os.Open(doc.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", field, err)
	}
	defer f.Close()

	part, err := w.CreateFormFile(field, filepath.Base(doc.Path))
	if err != nil {
		return fmt.Errorf("failed to create form file %s: %w", field, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to copy %s: %w", field, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return "no reason given"
}
