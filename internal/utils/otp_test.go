package utils

import "testing"

func TestNewOTP_Format(t *testing.T) {
    t.Parallel()

    seen := make(map[string]bool)
    for i := 0; i < 200; i++ {
        code, err := NewOTP()
        if err != nil {
            t.Fatalf("NewOTP error: %v", err)
        }
        if len(code) != OTPLength {
            t.Fatalf("code %q has length %d, want %d", code, len(code), OTPLength)
        }
        for _, ch := range code {
            if ch < '0' || ch > '9' {
                t.Fatalf("code %q contains non-digit %q", code, ch)
            }
        }
        seen[code] = true
    }
    // 200 draws from a million-code space colliding down to a handful
    // would indicate a broken generator.
    if len(seen) < 190 {
        t.Fatalf("only %d distinct codes out of 200 draws", len(seen))
    }
}
