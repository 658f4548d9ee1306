package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

var b64 = base64.RawURLEncoding

// Claims is the bookwell access token payload. Sub carries the user id,
// BusinessID and Role scope what the token may touch.
type Claims struct {
	Sub        string `json:"sub"`
	BusinessID string `json:"business_id,omitempty"`
	Role       string `json:"role,omitempty"`
	Exp        int64  `json:"exp"`
	Iat        int64  `json:"iat"`
}

// encodedHeader is constant for HS256, so it is precomputed.
var encodedHeader = b64.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))

func SignHS256(claims Claims, secret string) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	unsigned := encodedHeader + "." + b64.EncodeToString(payload)
	return unsigned + "." + sign(unsigned, secret), nil
}

// ParseAndVerifyHS256 checks the signature, the declared algorithm and the
// expiry. The alg check closes the usual none/downgrade hole.
func ParseAndVerifyHS256(token, secret string) (*Claims, error) {
	head, rest, ok := strings.Cut(token, ".")
	if !ok {
		return nil, ErrInvalidToken
	}
	body, sig, ok := strings.Cut(rest, ".")
	if !ok || strings.Contains(sig, ".") {
		return nil, ErrInvalidToken
	}

	unsigned := head + "." + body
	if !hmac.Equal([]byte(sig), []byte(sign(unsigned, secret))) {
		return nil, ErrInvalidToken
	}

	headerJSON, err := b64.DecodeString(head)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil || header.Alg != "HS256" {
		return nil, ErrInvalidToken
	}

	payload, err := b64.DecodeString(body)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Exp > 0 && time.Now().Unix() > claims.Exp {
		return nil, ErrTokenExpired
	}
	return &claims, nil
}

func sign(data, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(data))
	return b64.EncodeToString(mac.Sum(nil))
}
