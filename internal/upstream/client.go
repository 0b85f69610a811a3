// Package upstream implementa los clientes HTTP hacia los servicios
// colaboradores (auth service, permission checker). Toda llamada saliente
// pasa por el circuit breaker: cuando la dependencia está caída se falla
// rápido o se usa el fallback del caller.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/trustgate/internal/breaker"
	"github.com/dropDatabas3/trustgate/internal/observability/logger"
)

const circuitCheck = "authz.check"

// Client llama a los servicios upstream protegido por breaker.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	breakers *breaker.Registry
}

// New crea el cliente. timeout 0 usa 5s.
func New(baseURL, apiKey string, breakers *breaker.Registry, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
		breakers: breakers,
	}
}

// RevokeRemote notifica al auth service que la sesión fue revocada acá.
// Implementa session.RemoteRevoker; el breaker de esta llamada lo maneja el
// caller (session.Service), acá sólo sale el POST.
func (c *Client) RevokeRemote(ctx context.Context, accountID, sessionID string) error {
	body := map[string]string{"account_id": accountID, "session_id": sessionID}
	return c.post(ctx, "/internal/v1/sessions/revoke", body, nil)
}

// Check consulta el permission checker: check(subject, relation, object).
// Con el circuito abierto deniega (fallback cerrado): nunca un fail-open de
// autorización por una dependencia caída.
func (c *Client) Check(ctx context.Context, subject, relation, object string) (bool, error) {
	body := map[string]string{"subject": subject, "relation": relation, "object": object}

	var out struct {
		Allowed bool `json:"allowed"`
	}
	err := c.breakers.Execute(ctx, circuitCheck,
		func(ctx context.Context) error {
			return c.post(ctx, "/internal/v1/check", body, &out)
		},
		breaker.WithFallback(func(ctx context.Context, admitErr error) error {
			logger.From(ctx).Warn("permission check denied by open circuit",
				logger.Component("upstream"), logger.Circuit(circuitCheck), logger.Err(admitErr))
			out.Allowed = false
			return nil
		}),
	)
	if err != nil {
		return false, err
	}
	return out.Allowed, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upstream: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upstream: %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("upstream: %s: decode: %w", path, err)
		}
	}
	return nil
}
