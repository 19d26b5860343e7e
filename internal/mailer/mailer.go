// Package mailer dispatches one-time passcodes to users by email. The
// transport is treated as an external collaborator: a call either
// succeeds or fails the surrounding operation, there is no queueing or
// retry here.
package mailer

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "time"
)

// Mailer sends a verification code to a recipient. Implementations must
// respect the context deadline; issuance blocks on this call.
type Mailer interface {
    SendOTP(ctx context.Context, to, name, otp string) error
}

// SMTP2GOMailer delivers mail through the SMTP2GO JSON API.
type SMTP2GOMailer struct {
    APIKey string
    From   string
    URL    string // override for tests; defaults to the public endpoint
    Client *http.Client
}

const defaultAPIURL = "https://api.smtp2go.com/v3/email/send"

// NewSMTP2GOMailer returns a mailer with a bounded HTTP client so a
// stuck upstream cannot hang a signup worker.
func NewSMTP2GOMailer(apiKey, from string) *SMTP2GOMailer {
    return &SMTP2GOMailer{
        APIKey: apiKey,
        From:   from,
        URL:    defaultAPIURL,
        Client: &http.Client{Timeout: 10 * time.Second},
    }
}

// SendOTP renders the verification template and posts it to the API.
// Any non-2xx response fails the call.
func (m *SMTP2GOMailer) SendOTP(ctx context.Context, to, name, otp string) error {
    payload := map[string]any{
        "api_key":   m.APIKey,
        "to":        []string{to},
        "sender":    m.From,
        "subject":   "Your Slate AI Verification Code",
        "html_body": renderOTPBody(name, otp),
    }
    body, err := json.Marshal(payload)
    if err != nil {
        return err
    }
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.URL, bytes.NewReader(body))
    if err != nil {
        return err
    }
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("X-Smtp2go-Api-Key", m.APIKey)

    resp, err := m.Client.Do(req)
    if err != nil {
        return fmt.Errorf("mailer: send to %s: %w", to, err)
    }
    defer resp.Body.Close()
    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        // Drain a little of the body for the operator log; the code
        // itself is never echoed back by the API.
        snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
        return fmt.Errorf("mailer: send to %s: status %d: %s", to, resp.StatusCode, snippet)
    }
    return nil
}

// renderOTPBody produces the HTML body with the recipient's name and
// code. The copy matches what the signup flow promises: ten minutes of
// validity and five attempts.
func renderOTPBody(name, otp string) string {
    return fmt.Sprintf(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h1>Slate AI</h1>
  <h2>Welcome, %s!</h2>
  <p>Your verification code is:</p>
  <div style="font-size: 32px; font-weight: bold; letter-spacing: 8px;">%s</div>
  <p>This code expires in 10 minutes.</p>
  <p>You have 5 attempts to enter the correct code.</p>
  <p>If you didn't request this code, please ignore this email or contact support.</p>
</div>`, name, otp)
}
