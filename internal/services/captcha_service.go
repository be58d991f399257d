package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CaptchaVerifier performs the one-shot token verification used as a
// precondition by the surrounding system. The outcome is an opaque
// boolean; the recorder itself never consults it.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// HTTPCaptchaVerifier posts the token to the provider's verify endpoint
type HTTPCaptchaVerifier struct {
	verifyURL string
	secret    string
	client    *http.Client
	logger    *slog.Logger
}

// NewHTTPCaptchaVerifier creates a new HTTPCaptchaVerifier
func NewHTTPCaptchaVerifier(verifyURL, secret string, timeout time.Duration, logger *slog.Logger) *HTTPCaptchaVerifier {
	return &HTTPCaptchaVerifier{
		verifyURL: verifyURL,
		secret:    secret,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// Verify checks one token with the provider. Tokens are single-use on
// the provider side; a repeated token fails verification there.
func (v *HTTPCaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if token == "" {
		return false, nil
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("build captcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("captcha verification request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("captcha provider returned status %d", resp.StatusCode)
	}

	var body struct {
		Success    bool     `json:"success"`
		ErrorCodes []string `json:"error-codes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode captcha response: %w", err)
	}

	if !body.Success {
		v.logger.Info("captcha verification rejected",
			slog.Any("error_codes", body.ErrorCodes))
	}

	return body.Success, nil
}

// NullCaptchaVerifier accepts every token. Used when CAPTCHA is
// disabled (development, internal environments).
type NullCaptchaVerifier struct{}

func NewNullCaptchaVerifier() *NullCaptchaVerifier {
	return &NullCaptchaVerifier{}
}

func (v *NullCaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	return true, nil
}
