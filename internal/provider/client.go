package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"market-radar/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const userAgent = "Mozilla/5.0 (compatible; market-radar/1.0)"

// Observer receives the latency and outcome of every upstream call.
type Observer interface {
	ObserveUpstream(provider, op string, d time.Duration, err error)
}

// upstream is the shared HTTP plumbing of the providers: a throttled client
// with one span per call and typed errors.
type upstream struct {
	name     string
	client   *http.Client
	tracer   trace.Tracer
	limiter  *rate.Limiter
	observer Observer
}

func newUpstream(name string, tracer trace.Tracer, perSecond float64, burst int) upstream {
	return upstream{
		name:    name,
		client:  &http.Client{Timeout: 20 * time.Second},
		tracer:  tracer,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// get performs a GET and returns the body of a 200 response.
func (u *upstream) get(ctx context.Context, op, url string, header http.Header) (body []byte, err error) {
	ctx, span := u.tracer.Start(ctx, u.name+"."+op)
	defer span.End()

	start := time.Now()
	status := 0
	defer func() {
		span.SetAttributes(attribute.Int("http.status_code", status))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if u.observer != nil {
			u.observer.ObserveUpstream(u.name, op, time.Since(start), err)
		}
	}()

	if err := u.limiter.Wait(ctx); err != nil {
		return nil, domain.NewUpstreamError(u.name, op, 0, fmt.Errorf("rate limit wait: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.NewUpstreamError(u.name, op, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, domain.NewUpstreamError(u.name, op, 0, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewUpstreamError(u.name, op, status, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewUpstreamError(u.name, op, status, domain.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewUpstreamError(u.name, op, status, fmt.Errorf("%s API error %d: %s", u.name, status, sanitizeText(string(body), 300)))
	}
	return body, nil
}

func sanitizeText(in string, maxLen int) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return ""
	}
	in = strings.ReplaceAll(in, "\n", " ")
	in = strings.ReplaceAll(in, "\r", " ")
	in = strings.Join(strings.Fields(in), " ")
	if maxLen > 0 && len(in) > maxLen {
		in = in[:maxLen]
	}
	return in
}

func htmlStrip(in string) string {
	if strings.TrimSpace(in) == "" {
		return ""
	}
	var b strings.Builder
	inside := false
	for _, r := range in {
		switch r {
		case '<':
			inside = true
			continue
		case '>':
			inside = false
			continue
		}
		if !inside {
			b.WriteRune(r)
		}
	}
	return b.String()
}
