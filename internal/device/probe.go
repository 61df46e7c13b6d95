package device

import (
	"context"
	"io"
	"net/http"
	"time"

	"codeberg.org/mutker/framectl/internal/errors"
)

const (
	defaultProbeTimeout = 3 * time.Second
	maxProbeBytes       = 1 << 20

	slowMbps = 1.0
	fastMbps = 10.0
)

// BandwidthProbe refines the connection class with a timed fetch of a small
// fixed-size resource. It is strictly best-effort: any failure or timeout is
// reported as inconclusive and the caller keeps its static estimate.
type BandwidthProbe struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewBandwidthProbe creates a probe for the given URL. A non-positive
// timeout falls back to the default bound.
func NewBandwidthProbe(url string, timeout time.Duration) *BandwidthProbe {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	return &BandwidthProbe{
		url:     url,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Run fetches the probe resource and maps the measured throughput to a
// connection class.
func (p *BandwidthProbe) Run(ctx context.Context) (ConnectionClass, error) {
	errFactory := errors.New()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, http.NoBody)
	if err != nil {
		return ConnectionUnknown, errFactory.Wrap(errors.ErrInvalidArgument, err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return ConnectionUnknown, errFactory.Wrap(errors.ErrTimeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ConnectionUnknown, errFactory.WithData(errors.ErrOperationFailed, resp.StatusCode)
	}

	read, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxProbeBytes))
	if err != nil {
		return ConnectionUnknown, errFactory.Wrap(errors.ErrOperationFailed, err)
	}

	elapsed := time.Since(start)
	if read == 0 || elapsed <= 0 {
		return ConnectionUnknown, errFactory.New(errors.ErrOperationFailed)
	}

	mbps := float64(read) * 8 / 1e6 / elapsed.Seconds()
	switch {
	case mbps < slowMbps:
		return ConnectionSlow, nil
	case mbps < fastMbps:
		return ConnectionModerate, nil
	default:
		return ConnectionFast, nil
	}
}
