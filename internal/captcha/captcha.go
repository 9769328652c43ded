// Package captcha verifies challenge tokens against a siteverify-style endpoint.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/domain"
)

const providerName = "captcha"

type verifyResponse struct {
	Success    bool     `json:"success"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

type Verifier struct {
	enabled bool
	url     string
	secret  string
	client  *http.Client
}

func NewVerifier(cfg config.CaptchaConfig, client *http.Client) *Verifier {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Verifier{enabled: cfg.Enabled, url: cfg.VerifyURL, secret: cfg.Secret, client: client}
}

// Verify passes everything through when disabled.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) error {
	if !v.enabled {
		return nil
	}
	if strings.TrimSpace(token) == "" {
		return domain.ValidationError{Field: "captchaToken", Msg: "captcha token is required"}
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.UpstreamError{Provider: providerName, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return domain.UpstreamError{Provider: providerName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return domain.UpstreamError{Provider: providerName, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.UpstreamError{Provider: providerName, Err: fmt.Errorf("decode response: %w", err)}
	}
	if !out.Success {
		return domain.ValidationError{
			Field: "captchaToken",
			Msg:   "captcha verification failed",
			Err:   fmt.Errorf("error codes: %s", strings.Join(out.ErrorCodes, ",")),
		}
	}
	return nil
}
