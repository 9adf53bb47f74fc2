package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/perclft/qcircuit/circuit"
	"github.com/perclft/qcircuit/qerr"
)

const maxSourceBytes = 8 << 20

// Resolver fetches and parses circuit sources. Objects (s3:// URLs) need an
// ObjectFetcher; without one they fail with SourceRetrievalFailure.
type Resolver struct {
	client  *http.Client
	timeout time.Duration
	objects ObjectFetcher
	logger  *zap.Logger
}

const defaultFetchTimeout = 30 * time.Second

type Option func(*Resolver)

// WithHTTPClient sets the base client used for http(s) sources.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

func WithObjectFetcher(f ObjectFetcher) Option {
	return func(r *Resolver) { r.objects = f }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithTimeout bounds each http(s) fetch. It applies to the client given by
// WithHTTPClient regardless of option order; non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = &http.Client{Timeout: defaultFetchTimeout}
	}
	if r.timeout > 0 {
		c := *r.client
		c.Timeout = r.timeout
		r.client = &c
	}
	return r
}

// Resolve fetches and parses the circuit described by src.
func (r *Resolver) Resolve(ctx context.Context, src Spec) (circuit.Circuit, error) {
	if err := src.Validate(); err != nil {
		return circuit.Circuit{}, err
	}
	data, err := r.Fetch(ctx, src)
	if err != nil {
		return circuit.Circuit{}, err
	}
	return Parse(src.Language, data)
}

// Fetch returns the raw bytes src points at.
func (r *Resolver) Fetch(ctx context.Context, src Spec) ([]byte, error) {
	if src.URL == "" {
		return src.Data, nil
	}
	u, err := url.Parse(src.URL)
	if err != nil {
		return nil, qerr.Wrap(qerr.SourceRetrievalFailure, err, "parse source url")
	}
	start := time.Now()
	var data []byte
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		data, err = r.fetchHTTP(ctx, src.URL, src.BearerToken)
	case "s3":
		data, err = r.fetchObject(ctx, u)
	default:
		return nil, qerr.New(qerr.SourceRetrievalFailure, "unsupported source url scheme %q", u.Scheme)
	}
	if err != nil {
		r.logger.Warn("circuit source retrieval failed", zap.String("url", redact(u)), zap.Error(err))
		return nil, err
	}
	if len(data) > maxSourceBytes {
		return nil, qerr.New(qerr.SourceRetrievalFailure, "source exceeds %d bytes", maxSourceBytes)
	}
	r.logger.Debug("circuit source fetched",
		zap.String("url", redact(u)),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(start)),
	)
	return data, nil
}

func (r *Resolver) fetchHTTP(ctx context.Context, rawURL, token string) ([]byte, error) {
	client := r.client
	if token != "" {
		base := context.WithValue(ctx, oauth2.HTTPClient, r.client)
		client = oauth2.NewClient(base, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
		client.Timeout = r.client.Timeout
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, qerr.Wrap(qerr.SourceRetrievalFailure, err, "build source request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, qerr.Wrap(qerr.SourceRetrievalFailure, err, "fetch source")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, qerr.New(qerr.SourceRetrievalFailure, "fetch source: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes+1))
	if err != nil {
		return nil, qerr.Wrap(qerr.SourceRetrievalFailure, err, "read source body")
	}
	return data, nil
}

// fetchObject reads s3://bucket/key.
func (r *Resolver) fetchObject(ctx context.Context, u *url.URL) ([]byte, error) {
	if r.objects == nil {
		return nil, qerr.New(qerr.SourceRetrievalFailure, "no object store configured for %s", u.String())
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return nil, qerr.New(qerr.SourceRetrievalFailure, "object url %q needs a bucket and a key", u.String())
	}
	data, err := r.objects.Fetch(ctx, u.Host, key)
	if err != nil {
		return nil, qerr.Wrap(qerr.SourceRetrievalFailure, err, fmt.Sprintf("fetch %s", u.String()))
	}
	return data, nil
}

func redact(u *url.URL) string {
	c := *u
	c.User = nil
	c.RawQuery = ""
	return c.String()
}
