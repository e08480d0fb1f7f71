package kubit

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/kubit-go/kubit/errors"
)

const SignatureParam = "signature"

var (
	ErrorMissingAppKey     = fmt.Errorf("app.key is not configured")
	ErrorMissingSignature  = fmt.Errorf("signature is missing")
	ErrorSignaturePath     = fmt.Errorf("signature does not belong to this path")
	ErrorUnexpectedSigning = fmt.Errorf("unexpected signing method")
)

type signedURLClaims struct {
	Path string `json:"path"`
	jwt.StandardClaims
}

// MakeSignedURL signs path with the app key, the signature expires after
// ttl (0 never expires) and is only valid for that exact path
func (a *Application) MakeSignedURL(path string, ttl time.Duration) (string, error) {
	key := a.config.GetString("app.key")
	if key == "" {
		return "", errors.Wrap(errors.ErrorMissConfigured, ErrorMissingAppKey)
	}

	u, err := url.Parse(path)
	if err != nil {
		return "", err
	}

	claims := signedURLClaims{Path: u.Path}
	claims.IssuedAt = time.Now().Unix()
	if ttl > 0 {
		claims.ExpiresAt = time.Now().Add(ttl).Unix()
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set(SignatureParam, token)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// VerifySignedURL checks the signature query param of the request
func (a *Application) VerifySignedURL(r *http.Request) error {
	token := r.URL.Query().Get(SignatureParam)
	if token == "" {
		return errors.Wrap(errors.ErrorInvalidSignature, ErrorMissingSignature)
	}

	key := a.config.GetString("app.key")
	if key == "" {
		return errors.Wrap(errors.ErrorMissConfigured, ErrorMissingAppKey)
	}

	claims := signedURLClaims{}
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrorUnexpectedSigning
		}
		return []byte(key), nil
	})
	if err != nil {
		return errors.Wrap(errors.ErrorInvalidSignature, err)
	}

	if strings.TrimSuffix(claims.Path, "/") != strings.TrimSuffix(r.URL.Path, "/") {
		return errors.Wrap(errors.ErrorInvalidSignature, ErrorSignaturePath)
	}

	return nil
}

// HasValidSignature reports if the request carries a valid signature
func (wctx *WebContext) HasValidSignature() bool {
	return wctx.app != nil && wctx.app.VerifySignedURL(wctx.request) == nil
}
