// Package signing issues delivery URLs for stored assets: either a
// provider-presigned GET URL, or an HMAC-signed resize ticket a downstream
// thumbnail service trusts without touching the origin store.
package signing

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/mapforge/assets/internal/auth"
)

// Presigner produces provider-signed temporary GET URLs.
type Presigner interface {
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Issuer produces delivery URLs in one of two modes: direct (presigned by the
// storage provider) or ticket (HMAC-signed for the resize service).
type Issuer struct {
	secret     []byte
	resizeBase string
	presigner  Presigner
	expiry     time.Duration
}

// NewIssuer builds an Issuer. Empty key material or a missing resize base URL
// is a configuration error and must abort startup.
func NewIssuer(secret, resizeBase string, presigner Presigner, expiry time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("empty signing secret: %w", auth.ErrConfiguration)
	}
	if resizeBase == "" {
		return nil, fmt.Errorf("empty resize service URL: %w", auth.ErrConfiguration)
	}
	return &Issuer{
		secret:     []byte(secret),
		resizeBase: strings.TrimRight(resizeBase, "/"),
		presigner:  presigner,
		expiry:     expiry,
	}, nil
}

// Direct asks the storage provider for a time-boxed presigned GET URL for key.
func (i *Issuer) Direct(ctx context.Context, key string) (string, error) {
	return i.presigner.PresignGet(ctx, key, i.expiry)
}

// Ticket returns the signed resize URL for the object at key scaled to
// width x height. The signature is deterministic: the resize service holds
// the same secret, recomputes the digest over the canonical path, and
// compares strings byte for byte.
func (i *Issuer) Ticket(width, height int, key string) string {
	canonical := fmt.Sprintf("%dx%d/%s", width, height, key)
	return fmt.Sprintf("%s/%s/%s", i.resizeBase, i.sign(canonical), canonical)
}

// sign computes HMAC-SHA512 over the canonical path and encodes it as
// standard base64 with '+' and '/' swapped for '-' and '_', so the digest
// survives a URL path segment unescaped.
func (i *Issuer) sign(canonical string) string {
	mac := hmac.New(sha512.New, i.secret)
	mac.Write([]byte(canonical))
	encoded := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	encoded = strings.ReplaceAll(encoded, "+", "-")
	return strings.ReplaceAll(encoded, "/", "_")
}
