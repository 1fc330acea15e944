package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/samuelg/go-ari-client/pkg/models"
)

// DefaultRequestTimeout bounds a single operation when the caller's context
// carries no deadline.
const DefaultRequestTimeout = 30 * time.Second

// Invoker executes request plans. It is stateless; connection reuse is left
// to the underlying http.Client.
type Invoker struct {
	http *http.Client
	auth Authenticator
	log  zerolog.Logger
}

// NewInvoker creates an invoker using the given HTTP client and
// authenticator. A nil client gets a default with a request timeout.
func NewInvoker(httpClient *http.Client, auth Authenticator, log zerolog.Logger) *Invoker {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	if auth == nil {
		auth = NoAuth{}
	}
	return &Invoker{http: httpClient, auth: auth, log: log}
}

// Do executes a request plan and returns the HTTP status with the decoded
// response body. Statuses >= 400 surface as ServerError with the message
// taken from the server's JSON "message" field when present.
func (inv *Invoker) Do(ctx context.Context, plan *models.RequestPlan) (int, any, error) {
	var reader io.Reader
	if plan.Body != nil {
		reader = bytes.NewReader(plan.Body)
	} else if plan.Form != nil {
		reader = strings.NewReader(plan.Form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, plan.Method, plan.FullURL(), reader)
	if err != nil {
		return 0, nil, models.FromTransport(err)
	}
	for name, values := range plan.Header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if plan.Form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	inv.auth.Apply(req)

	resp, err := inv.http.Do(req)
	if err != nil {
		return 0, nil, models.FromTransport(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, models.FromTransport(err)
	}

	if resp.StatusCode >= 400 {
		return resp.StatusCode, nil, models.NewServerError(resp.StatusCode, serverMessage(resp.StatusCode, data))
	}

	inv.log.Debug().
		Str("method", plan.Method).
		Str("url", plan.URL).
		Int("status", resp.StatusCode).
		Msg("operation complete")

	if len(bytes.TrimSpace(data)) == 0 {
		return resp.StatusCode, nil, nil
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		// Response validation beyond what the server returns is out of
		// scope; hand non-JSON bodies back verbatim.
		return resp.StatusCode, string(data), nil
	}
	return resp.StatusCode, decoded, nil
}

// serverMessage extracts the server's "message" field, falling back to the
// HTTP reason phrase.
func serverMessage(status int, data []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return http.StatusText(status)
}
