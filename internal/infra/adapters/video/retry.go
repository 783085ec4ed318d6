package video

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"video-pipeline/internal/infra/metrics"
)

const (
	defaultSubmitAttempts = 3
	defaultRetryBackoff   = 2 * time.Second
	maxRetryBackoff       = 30 * time.Second
)

// retryPolicy retries submissions that provably did not create a job:
// dial failures and 5xx answers. Anything ambiguous (a timeout after the
// request was written) is returned as-is so a job is never submitted twice.
type retryPolicy struct {
	attempts int
	backoff  time.Duration
}

func newRetryPolicy(attempts int, backoff time.Duration) retryPolicy {
	if attempts <= 0 {
		attempts = defaultSubmitAttempts
	}
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	return retryPolicy{attempts: attempts, backoff: backoff}
}

func (p retryPolicy) do(ctx context.Context, log *zerolog.Logger, op string, fn func() error) error {
	wait := p.backoff
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		err = fn()
		if err == nil || !safeToResubmit(err) || attempt == p.attempts {
			return err
		}
		log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("backoff", wait).Msg("retrying after transport failure")
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		wait *= 2
		if wait > maxRetryBackoff {
			wait = maxRetryBackoff
		}
	}
	return err
}

// isDialError reports failures that happened before any byte was sent.
func isDialError(err error) bool {
	var op *net.OpError
	if errors.As(err, &op) && op.Op == "dial" {
		return true
	}
	var dns *net.DNSError
	return errors.As(err, &dns)
}

var terminalLooking = []string{"error", "cancel", "expired", "timeout", "abort", "reject", "done", "complete"}

// terminalBucket returns the terminalLooking keyword raw contains, if any.
// Metrics are labelled with the keyword, never the raw provider string.
func terminalBucket(raw string) (string, bool) {
	s := strings.ToLower(raw)
	for _, w := range terminalLooking {
		if strings.Contains(s, w) {
			return w, true
		}
	}
	return "", false
}

// flagUnknownStatus logs provider statuses outside the known set. Those that
// look terminal are warned about loudly: the job keeps being polled as
// processing and will end in a local timeout unless the provider moves on.
func flagUnknownStatus(log *zerolog.Logger, provider, jobID, raw string) {
	if bucket, ok := terminalBucket(raw); ok {
		log.Warn().Str("provider", provider).Str("job_id", jobID).Str("raw_status", raw).
			Msg("unrecognized terminal-looking status, treating as processing")
		metrics.IncUnknownStatus(provider, bucket)
		return
	}
	log.Debug().Str("provider", provider).Str("job_id", jobID).Str("raw_status", raw).Msg("unrecognized status, treating as processing")
}
