package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sweeply/sweeply/internal/db/models"
	"github.com/sweeply/sweeply/internal/db/repos"
	"github.com/sweeply/sweeply/internal/geo"
	"github.com/sweeply/sweeply/internal/logger"
	"github.com/sweeply/sweeply/internal/notify"
	"github.com/sweeply/sweeply/internal/observability"
)

// Dispatch defaults
const (
	// DefaultTopK is the number of candidates offered per dispatch
	DefaultTopK = 3
	// DefaultPoolLimit caps the candidate pool fetched from the geo index
	DefaultPoolLimit = 25
	// DefaultOfferTTL is how long an initial offer stays claimable
	DefaultOfferTTL = 15 * time.Minute
	// DefaultRedispatchTTL is the shorter deadline used for redistribution
	DefaultRedispatchTTL = 30 * time.Minute
	// DefaultSearchRadiusKm bounds the geo search; candidates beyond their
	// own service radius are filtered later regardless
	DefaultSearchRadiusKm = 25.0
)

// reofferBlocking are the offer statuses that prevent a provider from
// receiving another offer for the same job. Cancelled offers do not block:
// those were withdrawn because a sibling won, through no act of the
// provider, so redistribution may come back to them.
var reofferBlocking = []models.AssignmentStatus{
	models.AssignmentStatusPending,
	models.AssignmentStatusClaimed,
	models.AssignmentStatusRejected,
	models.AssignmentStatusExpired,
}

// Pool supplies providers near a job location. Satisfied by geo.MemoryIndex
// and geo.RedisIndex.
type Pool interface {
	Nearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]geo.Candidate, error)
}

// DispatchConfig carries the dispatcher tunables.
type DispatchConfig struct {
	TopK           int
	PoolLimit      int
	OfferTTL       time.Duration
	RedispatchTTL  time.Duration
	SearchRadiusKm float64
}

func (c DispatchConfig) withDefaults() DispatchConfig {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.PoolLimit <= 0 {
		c.PoolLimit = DefaultPoolLimit
	}
	if c.OfferTTL <= 0 {
		c.OfferTTL = DefaultOfferTTL
	}
	if c.RedispatchTTL <= 0 {
		c.RedispatchTTL = DefaultRedispatchTTL
	}
	if c.SearchRadiusKm <= 0 {
		c.SearchRadiusKm = DefaultSearchRadiusKm
	}
	return c
}

// Dispatcher turns a job needing assignment into a bounded set of
// outstanding offers.
type Dispatcher struct {
	db       *gorm.DB
	pool     Pool
	notifier notify.Notifier
	weights  Weights
	cfg      DispatchConfig
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. The notifier is used fire-and-forget;
// its failures never roll back a dispatch.
func NewDispatcher(db *gorm.DB, pool Pool, notifier notify.Notifier, weights Weights, cfg DispatchConfig) *Dispatcher {
	return &Dispatcher{
		db:       db,
		pool:     pool,
		notifier: notifier,
		weights:  weights,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// Dispatch creates pending offers for the top-ranked eligible providers of
// a job. Returns ErrNoCandidates when nobody is eligible, after flagging
// the job for manual review. Dispatching is idempotent per (job, provider):
// providers already holding an offer for the job are skipped, and the
// live-offer unique index enforces the same rule against concurrent
// dispatchers, so dispatching twice never duplicates offers.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID uint) ([]models.Assignment, error) {
	jobs := repos.NewJobRepository(d.db)
	job, err := jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: job %d", ErrNotFound, jobID)
		}
		return nil, err
	}
	if !job.Status.AwaitingAssignment() {
		return nil, fmt.Errorf("%w: job %d is %s", ErrConflict, jobID, job.Status)
	}

	ranked, err := d.rankCandidates(ctx, d.db, job)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, d.escalateNoCandidates(ctx, jobs, job)
	}

	if len(ranked) > d.cfg.TopK {
		ranked = ranked[:d.cfg.TopK]
	}

	var created []models.Assignment
	err = d.db.Transaction(func(tx *gorm.DB) error {
		txJobs := repos.NewJobRepository(tx)
		txAssignments := repos.NewAssignmentRepository(tx)
		txProviders := repos.NewProviderRepository(tx)

		for _, cand := range ranked {
			// Idempotency: a provider with a live, rejected or expired
			// offer for this job is skipped.
			has, err := txAssignments.HasOfferForJobProvider(ctx, job.ID, cand.Provider.ID, reofferBlocking...)
			if err != nil {
				return err
			}
			if has {
				continue
			}

			a := &models.Assignment{
				JobID:      job.ID,
				ProviderID: cand.Provider.ID,
				Status:     models.AssignmentStatusPending,
				Score:      cand.Score,
				DistanceKm: cand.DistanceKm,
				ExpiresAt:  d.now().Add(d.cfg.OfferTTL),
			}
			inserted, err := txAssignments.CreateOffer(ctx, a)
			if err != nil {
				return err
			}
			if !inserted {
				// A concurrent dispatch offered this provider the job
				// between the read above and this write.
				continue
			}

			provider, err := txProviders.GetByID(ctx, cand.Provider.ID)
			if err != nil {
				return err
			}
			provider.OffersReceived++
			RecalculateRates(provider)
			if err := txProviders.Update(ctx, provider); err != nil {
				return err
			}

			created = append(created, *a)
		}

		if len(created) > 0 && job.Status == models.JobStatusCreated {
			// Only the first successful dispatch moves the job forward; a
			// lost CAS just means another dispatcher got there first.
			if _, err := txJobs.TryTransition(ctx, job.ID, models.JobStatusCreated, models.JobStatusOffered); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, a := range created {
		if err := d.notifier.NotifyOffer(ctx, a.ProviderID, a.JobID); err != nil {
			logger.Errorf("offer notification for job %d provider %d failed: %v", a.JobID, a.ProviderID, err)
		}
		observability.OffersCreatedTotal.Inc()
	}
	if len(created) > 0 {
		observability.DispatchesTotal.Inc()
	}
	return created, nil
}

// Redistribute creates a single replacement offer for a job whose claimed
// provider was dropped for lateness. Candidates that already received an
// offer for this job are excluded; the remainder is ordered by punctuality,
// then quality. The offer uses the shorter redispatch TTL.
func (d *Dispatcher) Redistribute(ctx context.Context, jobID uint) (*models.Assignment, error) {
	jobs := repos.NewJobRepository(d.db)
	job, err := jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: job %d", ErrNotFound, jobID)
		}
		return nil, err
	}
	if !job.Status.AwaitingAssignment() {
		return nil, fmt.Errorf("%w: job %d is %s", ErrConflict, jobID, job.Status)
	}

	ranked, err := d.rankCandidates(ctx, d.db, job)
	if err != nil {
		return nil, err
	}
	ranked, err = d.withoutPriorOffers(ctx, job.ID, ranked)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, d.escalateNoCandidates(ctx, jobs, job)
	}
	sortForRedistribution(ranked)
	best := ranked[0]

	var created *models.Assignment
	err = d.db.Transaction(func(tx *gorm.DB) error {
		txAssignments := repos.NewAssignmentRepository(tx)
		txProviders := repos.NewProviderRepository(tx)

		a := &models.Assignment{
			JobID:      job.ID,
			ProviderID: best.Provider.ID,
			Status:     models.AssignmentStatusPending,
			Score:      best.Score,
			DistanceKm: best.DistanceKm,
			ExpiresAt:  d.now().Add(d.cfg.RedispatchTTL),
		}
		inserted, err := txAssignments.CreateOffer(ctx, a)
		if err != nil {
			return err
		}
		if !inserted {
			return fmt.Errorf("%w: provider %d already holds a live offer for job %d",
				ErrConflict, best.Provider.ID, job.ID)
		}

		provider, err := txProviders.GetByID(ctx, best.Provider.ID)
		if err != nil {
			return err
		}
		provider.OffersReceived++
		RecalculateRates(provider)
		if err := txProviders.Update(ctx, provider); err != nil {
			return err
		}

		created = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := d.notifier.NotifyReassigned(ctx, created.ProviderID, created.JobID); err != nil {
		logger.Errorf("reassignment notification for job %d provider %d failed: %v", created.JobID, created.ProviderID, err)
	}
	observability.OffersCreatedTotal.Inc()
	return created, nil
}

// rankCandidates builds the eligible pool from the geo index and scores it.
func (d *Dispatcher) rankCandidates(ctx context.Context, db *gorm.DB, job *models.Job) ([]ScoredCandidate, error) {
	near, err := d.pool.Nearby(ctx, job.Lat, job.Lon, d.cfg.SearchRadiusKm, d.cfg.PoolLimit)
	if err != nil {
		return nil, err
	}
	if len(near) == 0 {
		return nil, nil
	}

	ids := make([]uint, len(near))
	distances := make(map[uint]float64, len(near))
	for i, c := range near {
		ids[i] = c.ProviderID
		distances[c.ProviderID] = c.DistanceKm
	}

	providers, err := repos.NewProviderRepository(db).GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	pool := make([]Candidate, 0, len(providers))
	for _, p := range providers {
		pool = append(pool, Candidate{Provider: p, DistanceKm: distances[p.ID]})
	}
	return NewScorer(db, d.weights).Rank(ctx, job, pool)
}

// withoutPriorOffers filters out candidates blocked by a prior offer for
// the job, which includes the provider just dropped for lateness.
func (d *Dispatcher) withoutPriorOffers(ctx context.Context, jobID uint, ranked []ScoredCandidate) ([]ScoredCandidate, error) {
	assignments := repos.NewAssignmentRepository(d.db)
	out := ranked[:0]
	for _, cand := range ranked {
		has, err := assignments.HasOfferForJobProvider(ctx, jobID, cand.Provider.ID, reofferBlocking...)
		if err != nil {
			return nil, err
		}
		if has {
			continue
		}
		out = append(out, cand)
	}
	return out, nil
}

func (d *Dispatcher) escalateNoCandidates(ctx context.Context, jobs *repos.JobRepository, job *models.Job) error {
	if err := jobs.MarkNeedsAttention(ctx, job.ID); err != nil {
		return err
	}
	if err := d.notifier.NotifyManualReview(ctx, job.ID); err != nil {
		logger.Errorf("manual review notification for job %d failed: %v", job.ID, err)
	}
	observability.NoCandidatesTotal.Inc()
	return fmt.Errorf("%w: job %d", ErrNoCandidates, job.ID)
}
