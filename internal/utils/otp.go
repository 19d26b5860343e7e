package utils

import "crypto/rand"

// OTPLength is the number of digits in a one-time passcode.
const OTPLength = 6

// NewOTP returns a random numeric code with each digit drawn
// independently and uniformly from 0-9. Rejection sampling avoids the
// modulo bias a bare `b % 10` over 0-255 would introduce.
func NewOTP() (string, error) {
    code := make([]byte, OTPLength)
    buf := make([]byte, 1)
    for i := 0; i < OTPLength; {
        if _, err := rand.Read(buf); err != nil {
            return "", err
        }
        if buf[0] >= 250 { // 250..255 would skew the distribution
            continue
        }
        code[i] = '0' + buf[0]%10
        i++
    }
    return string(code), nil
}
