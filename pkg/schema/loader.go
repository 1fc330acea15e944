package schema

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/samuelg/go-ari-client/pkg/models"
)

// DefaultLoadTimeout bounds a schema document fetch when the caller's
// context carries no deadline.
const DefaultLoadTimeout = 30 * time.Second

// Loader fetches and parses the server's self-description documents into a
// Catalog and an EventModel. It is pure with respect to its inputs: it opens
// no sockets beyond the document fetches and installs no listeners.
type Loader struct {
	base     *url.URL
	username string
	password string
	http     *http.Client
	log      zerolog.Logger
}

// NewLoader creates a loader for the given base URL and credentials.
func NewLoader(base *url.URL, username, password string, httpClient *http.Client, log zerolog.Logger) *Loader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultLoadTimeout}
	}
	return &Loader{
		base:     base,
		username: username,
		password: password,
		http:     httpClient,
		log:      log,
	}
}

// Load fetches the root resources document, then every resource document
// concurrently, then the events document. The events model is taken from the
// resource named "events" when the server lists one.
func (l *Loader) Load(ctx context.Context) (*Catalog, *EventModel, error) {
	rootURL := strings.TrimSuffix(l.base.String(), "/") + "/ari/api-docs/resources.json"
	data, err := l.fetch(ctx, rootURL)
	if err != nil {
		return nil, nil, err
	}

	var listing resourceListing
	if err := decodeDocument(data, &listing); err != nil {
		return nil, nil, models.NewSchemaInvalid("resources document is malformed", err)
	}
	if len(listing.Apis) == 0 {
		return nil, nil, models.NewSchemaInvalid("resources document lists no resource documents", nil)
	}

	prefix := normalizeBasePath(listing.BasePath, l.base)

	type fetched struct {
		name string
		data []byte
		err  error
	}
	results := make([]fetched, len(listing.Apis))
	var wg sync.WaitGroup
	for i, api := range listing.Apis {
		path := strings.ReplaceAll(api.Path, "{format}", "json")
		name := resourceNameFromPath(path)
		docURL := prefix + path
		wg.Add(1)
		go func(i int, name, docURL string) {
			defer wg.Done()
			data, err := l.fetch(ctx, docURL)
			results[i] = fetched{name: name, data: data, err: err}
		}(i, name, docURL)
	}
	wg.Wait()

	catalog := &Catalog{Resources: make(map[string]*Resource, len(results))}
	var events *EventModel
	for _, r := range results {
		if r.err != nil {
			return nil, nil, r.err
		}
		if _, exists := catalog.Resources[r.name]; exists {
			return nil, nil, models.NewSchemaInvalid(fmt.Sprintf("duplicate resource %q", r.name), nil)
		}
		res, err := ParseResource(r.name, r.data, l.base)
		if err != nil {
			return nil, nil, err
		}
		catalog.Resources[r.name] = res
		if r.name == "events" {
			if events, err = ParseEvents(r.data); err != nil {
				return nil, nil, err
			}
		}
	}

	if events == nil {
		data, err := l.fetch(ctx, prefix+"/api-docs/events.json")
		if err != nil {
			return nil, nil, err
		}
		if events, err = ParseEvents(data); err != nil {
			return nil, nil, err
		}
	}

	if err := catalog.Validate(); err != nil {
		return nil, nil, models.NewSchemaInvalid("catalog validation failed", err)
	}

	l.log.Debug().
		Int("resources", len(catalog.Resources)).
		Int("events", len(events.Events)).
		Msg("schema loaded")
	return catalog, events, nil
}

func (l *Loader) fetch(ctx context.Context, docURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, models.NewSchemaInvalid(fmt.Sprintf("invalid document URL %q", docURL), err)
	}
	req.SetBasicAuth(l.username, l.password)
	req.Header.Set("Accept", "application/json")

	resp, err := l.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, models.FromTransport(err)
		}
		return nil, models.NewHostUnreachable(l.base.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, models.NewServerError(resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.FromTransport(err)
	}
	return data, nil
}
