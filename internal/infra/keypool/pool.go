package keypool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"video-pipeline/internal/domain"
	"video-pipeline/internal/domain/model"
	"video-pipeline/internal/domain/ports/adapter"
	"video-pipeline/internal/domain/ports/repository"
	"video-pipeline/internal/infra/metrics"
)

var _ adapter.CredentialPool = (*Pool)(nil)

const (
	DefaultDailyQuota  = 1500
	DefaultMaxFailures = 3
)

// Options configures a Pool. Zero values take the defaults.
type Options struct {
	Name        string // provider label for logs and metrics
	DailyQuota  int
	MaxFailures int
	Strategy    Strategy
	Usage       repository.UsageStore // optional persistence of daily usage
	Now         func() time.Time
	Logger      *zerolog.Logger
}

// KeySpec is one credential as read from configuration.
type KeySpec struct {
	ID          string
	KeyMaterial string
}

type entry struct {
	cred     model.Credential
	inFlight int // acquired but not yet reported
}

func (e *entry) live() bool {
	return !e.cred.Excluded && e.cred.UsedToday+e.inFlight < e.cred.DailyQuota
}

// Pool hands out credentials under per-key daily quotas and failure-based
// exclusion. Every mutation happens under mu, so quota check and reservation
// are one critical section.
type Pool struct {
	mu          sync.Mutex
	name        string
	entries     []*entry
	byID        map[string]*entry
	strategy    Strategy
	maxFailures int
	usage       repository.UsageStore
	now         func() time.Time
	log         *zerolog.Logger
}

// New builds a pool from keys in configuration order. Duplicate IDs are rejected.
func New(ctx context.Context, keys []KeySpec, opt Options) (*Pool, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: key pool needs at least one credential", domain.ErrInvalidArgument)
	}
	if opt.DailyQuota <= 0 {
		opt.DailyQuota = DefaultDailyQuota
	}
	if opt.MaxFailures <= 0 {
		opt.MaxFailures = DefaultMaxFailures
	}
	if opt.Strategy == nil {
		opt.Strategy = NewRoundRobin()
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Logger == nil {
		l := zerolog.Nop()
		opt.Logger = &l
	}
	if opt.Name == "" {
		opt.Name = "default"
	}

	p := &Pool{
		name:        opt.Name,
		byID:        make(map[string]*entry, len(keys)),
		strategy:    opt.Strategy,
		maxFailures: opt.MaxFailures,
		usage:       opt.Usage,
		now:         opt.Now,
		log:         opt.Logger,
	}
	now := p.now()
	for _, k := range keys {
		if k.ID == "" || k.KeyMaterial == "" {
			return nil, fmt.Errorf("%w: credential with empty id or key material", domain.ErrInvalidArgument)
		}
		if _, dup := p.byID[k.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate credential %q", domain.ErrInvalidArgument, k.ID)
		}
		e := &entry{cred: *model.NewCredential(k.ID, k.KeyMaterial, opt.DailyQuota, now)}
		p.restoreUsage(ctx, e)
		p.entries = append(p.entries, e)
		p.byID[k.ID] = e
	}
	metrics.SetPoolExcluded(p.name, 0)
	return p, nil
}

// Acquire selects a live credential and reserves one unit of its quota.
// It fails with domain.ErrPoolExhausted when every credential is excluded or
// out of quota; that condition needs operator action or the next UTC day.
func (p *Pool) Acquire(ctx context.Context) (model.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resetIfNewDay(ctx)

	live := make([]model.Credential, 0, len(p.entries))
	idx := make([]*entry, 0, len(p.entries))
	for _, e := range p.entries {
		if e.live() {
			live = append(live, e.cred)
			idx = append(idx, e)
		}
	}
	i := p.strategy.Pick(live)
	if i < 0 || i >= len(idx) {
		metrics.IncPoolAcquire(p.name, "exhausted")
		return model.Credential{}, fmt.Errorf("%w: %s (%d credentials)", domain.ErrPoolExhausted, p.name, len(p.entries))
	}
	e := idx[i]
	e.inFlight++
	metrics.IncPoolAcquire(p.name, "ok")
	return e.cred, nil
}

// ReportSuccess counts one use against the credential and clears its failure streak.
func (p *Pool) ReportSuccess(ctx context.Context, cred model.Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.byID[cred.ID]
	if e == nil {
		return
	}
	release(e)
	e.cred.UsedToday++
	e.cred.ConsecutiveFailures = 0
	p.persistUsage(ctx, e)
}

// ReportFailure counts a failure; reaching the threshold excludes the
// credential for the rest of the process lifetime (or until Reset).
func (p *Pool) ReportFailure(ctx context.Context, cred model.Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.byID[cred.ID]
	if e == nil {
		return
	}
	release(e)
	e.cred.ConsecutiveFailures++
	e.cred.TotalFailures++
	if !e.cred.Excluded && e.cred.ConsecutiveFailures >= p.maxFailures {
		e.cred.Excluded = true
		p.log.Warn().
			Str("pool", p.name).
			Str("credential", e.cred.ID).
			Int("failures", e.cred.ConsecutiveFailures).
			Msg("credential excluded after repeated failures")
		metrics.SetPoolExcluded(p.name, p.excludedLocked())
	}
}

// Release returns a reservation without counting a use or a failure, for
// requests that never reached the provider.
func (p *Pool) Release(_ context.Context, cred model.Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e := p.byID[cred.ID]; e != nil {
		release(e)
	}
}

// Reset clears exclusion and failure counters of one credential. This is
// the explicit operator action; the pool never does it on its own.
func (p *Pool) Reset(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.byID[id]
	if e == nil {
		return fmt.Errorf("%w: credential %q", domain.ErrNotFound, id)
	}
	e.cred.Excluded = false
	e.cred.ConsecutiveFailures = 0
	metrics.SetPoolExcluded(p.name, p.excludedLocked())
	return nil
}

// Stats returns a snapshot of every credential with key material removed.
func (p *Pool) Stats() []model.Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Credential, 0, len(p.entries))
	for _, e := range p.entries {
		c := e.cred
		c.KeyMaterial = ""
		out = append(out, c)
	}
	return out
}

// Lookup returns a credential with key material without reserving quota.
// It serves follow-up calls on a job that credential already submitted.
func (p *Pool) Lookup(id string) (model.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.byID[id]
	if e == nil {
		return model.Credential{}, fmt.Errorf("%w: credential %q", domain.ErrNotFound, id)
	}
	return e.cred, nil
}

// Size is the number of credentials, live or not.
func (p *Pool) Size() int { return len(p.entries) }

func (p *Pool) Name() string { return p.name }

func release(e *entry) {
	if e.inFlight > 0 {
		e.inFlight--
	}
}

func (p *Pool) resetIfNewDay(ctx context.Context) {
	today := model.DayOf(p.now())
	for _, e := range p.entries {
		if e.cred.LastReset.Before(today) {
			e.cred.UsedToday = 0
			e.cred.LastReset = today
			p.restoreUsage(ctx, e)
			p.log.Debug().Str("pool", p.name).Str("credential", e.cred.ID).Msg("daily quota reset")
		}
	}
}

func (p *Pool) restoreUsage(ctx context.Context, e *entry) {
	if p.usage == nil {
		return
	}
	n, err := p.usage.Load(ctx, e.cred.ID, e.cred.LastReset)
	if err != nil {
		p.log.Warn().Err(err).Str("credential", e.cred.ID).Msg("load credential usage failed")
		return
	}
	if n > e.cred.UsedToday {
		e.cred.UsedToday = n
	}
}

func (p *Pool) persistUsage(ctx context.Context, e *entry) {
	if p.usage == nil {
		return
	}
	if _, err := p.usage.Increment(ctx, e.cred.ID, e.cred.LastReset); err != nil {
		p.log.Warn().Err(err).Str("credential", e.cred.ID).Msg("persist credential usage failed")
	}
}

func (p *Pool) excludedLocked() int {
	n := 0
	for _, e := range p.entries {
		if e.cred.Excluded {
			n++
		}
	}
	return n
}
