package identity

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnknownKey reports a token signed with a key the provider does not
// currently publish. This is a bad token, not an unavailable provider.
var ErrUnknownKey = errors.New("unknown signing key")

// StaticKeys is a fixed kid -> key map. Used in tests and for providers whose
// key material is distributed out of band.
type StaticKeys map[string]*rsa.PublicKey

func (s StaticKeys) Key(_ context.Context, kid string) (*rsa.PublicKey, error) {
	key, ok := s[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, kid)
	}
	return key, nil
}

const defaultCertTTL = 5 * time.Minute

var maxAgeRe = regexp.MustCompile(`max-age=(\d+)`)

// CertSource fetches the provider's current signing certificates (a JSON
// object of kid -> PEM certificate) and caches them per the response's
// Cache-Control header. Safe for concurrent use.
type CertSource struct {
	url    string
	client *http.Client

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
}

func NewCertSource(url string) *CertSource {
	return &CertSource{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *CertSource) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	if key, ok := c.keys[kid]; ok && time.Now().Before(c.expiresAt) {
		c.mu.RUnlock()
		return key, nil
	}
	c.mu.RUnlock()

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, kid)
	}
	return key, nil
}

func (c *CertSource) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("build certs request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch provider certs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch provider certs: status %d", resp.StatusCode)
	}

	var pems map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&pems); err != nil {
		return fmt.Errorf("decode provider certs: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(pems))
	for kid, pemData := range pems {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemData))
		if err != nil {
			return fmt.Errorf("parse cert for kid %q: %w", kid, err)
		}
		keys[kid] = key
	}

	ttl := defaultCertTTL
	if m := maxAgeRe.FindStringSubmatch(resp.Header.Get("Cache-Control")); m != nil {
		if secs, err := strconv.Atoi(m[1]); err == nil && secs > 0 {
			ttl = time.Duration(secs) * time.Second
		}
	}

	c.mu.Lock()
	c.keys = keys
	c.expiresAt = time.Now().Add(ttl)
	c.mu.Unlock()
	return nil
}
