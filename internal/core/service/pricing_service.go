package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rl1809/guild-economy/internal/core/domain"
	"github.com/rl1809/guild-economy/internal/port"
)

const (
	DefaultRepriceWorkers = 4
	repriceLeasePrefix    = "reprice:"
	repriceItemTimeout    = 5 * time.Second
)

var ErrInvalidMultipliers = errors.New("invalid price multipliers")

// RepriceReport summarizes one guild pass.
type RepriceReport struct {
	GuildID string
	Updated int
	Failed  int
	Skipped bool // another process held the guild lease
}

type repriceJob struct {
	guildID string
	item    domain.Item
}

type PricingService struct {
	catalog  port.CatalogRepository
	cache    port.CacheRepository // optional
	interval time.Duration
	leaseTTL time.Duration
	workers  int
	randIn   func(lo, hi int64) int64

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewPricingService(catalog port.CatalogRepository, cache port.CacheRepository, interval time.Duration, workers int) *PricingService {
	if workers <= 0 {
		workers = DefaultRepriceWorkers
	}
	leaseTTL := interval / 2
	if leaseTTL <= 0 {
		leaseTTL = time.Minute
	}
	return &PricingService{
		catalog:  catalog,
		cache:    cache,
		interval: interval,
		leaseTTL: leaseTTL,
		workers:  workers,
		randIn:   uniformInclusive,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func uniformInclusive(lo, hi int64) int64 {
	return lo + rand.Int64N(hi-lo+1)
}

// RepriceCost is avg * m / 100 rounded half up.
func RepriceCost(avgPrice, multiplier int64) int64 {
	return (avgPrice*multiplier + 50) / 100
}

// RepriceGuild draws a new cost for every item of the guild. Item failures are
// joined into the returned error and never stop the remaining items.
func (s *PricingService) RepriceGuild(ctx context.Context, guildID string) (RepriceReport, error) {
	report := RepriceReport{GuildID: guildID}

	items, err := s.catalog.FindItems(ctx, guildID)
	if err != nil {
		return report, fmt.Errorf("find items: %w", err)
	}

	jobs := make(chan repriceJob)
	errCh := make(chan error, len(items))

	var wg sync.WaitGroup
	for i := 0; i < min(s.workers, max(len(items), 1)); i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.workerLoop(ctx, id, jobs, errCh)
		}(i)
	}

	for _, item := range items {
		jobs <- repriceJob{guildID: guildID, item: item}
	}
	close(jobs)
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	report.Failed = len(errs)
	report.Updated = len(items) - len(errs)

	log.Printf("[Repricer] guild %s: %d updated, %d failed", guildID, report.Updated, report.Failed)
	return report, errors.Join(errs...)
}

func (s *PricingService) workerLoop(ctx context.Context, id int, jobs <-chan repriceJob, errCh chan<- error) {
	for job := range jobs {
		if err := s.repriceItem(ctx, job); err != nil {
			log.Printf("[Repricer] worker %d: failed to reprice %s/%s: %v", id, job.guildID, job.item.Name, err)
			errCh <- fmt.Errorf("reprice %s: %w", job.item.Name, err)
		}
	}
}

func (s *PricingService) repriceItem(ctx context.Context, job repriceJob) error {
	r := job.item.Multipliers
	if r.Min < 0 || r.Max < r.Min {
		return fmt.Errorf("%w: [%d, %d]", ErrInvalidMultipliers, r.Min, r.Max)
	}

	ctx, cancel := context.WithTimeout(ctx, repriceItemTimeout)
	defer cancel()

	cost := RepriceCost(job.item.AvgPrice, s.randIn(r.Min, r.Max))
	conf, err := s.catalog.UpdateItemCost(ctx, job.guildID, job.item.Name, cost)
	if err != nil {
		return err
	}
	if !conf.Matched {
		return domain.Reject(domain.RejectItemNotFound)
	}
	return nil
}

// RepriceAll reprices every guild in the catalog. With a cache configured each
// guild is guarded by a lease so only one process reprices it per tick.
func (s *PricingService) RepriceAll(ctx context.Context) ([]RepriceReport, error) {
	guilds, err := s.catalog.Guilds(ctx)
	if err != nil {
		return nil, fmt.Errorf("list guilds: %w", err)
	}

	var reports []RepriceReport
	var errs []error
	for _, guildID := range guilds {
		report, err := s.repriceLeased(ctx, guildID)
		reports = append(reports, report)
		if err != nil {
			errs = append(errs, fmt.Errorf("guild %s: %w", guildID, err))
		}
	}
	return reports, errors.Join(errs...)
}

func (s *PricingService) repriceLeased(ctx context.Context, guildID string) (RepriceReport, error) {
	if s.cache == nil {
		return s.RepriceGuild(ctx, guildID)
	}

	key := repriceLeasePrefix + guildID
	token, ok, err := s.cache.AcquireLease(ctx, key, s.leaseTTL)
	if err != nil {
		return RepriceReport{GuildID: guildID}, fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		return RepriceReport{GuildID: guildID, Skipped: true}, nil
	}
	defer func() {
		if err := s.cache.ReleaseLease(context.WithoutCancel(ctx), key, token); err != nil {
			log.Printf("[Repricer] release lease for guild %s: %v", guildID, err)
		}
	}()

	return s.RepriceGuild(ctx, guildID)
}

// Start runs RepriceAll on every tick until Close.
func (s *PricingService) Start() {
	go s.run()
	log.Printf("[Repricer] Started with %v interval", s.interval)
}

func (s *PricingService) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			if _, err := s.RepriceAll(ctx); err != nil {
				log.Printf("[Repricer] pass finished with errors: %v", err)
			}
			cancel()
		case <-s.stop:
			return
		}
	}
}

// Close stops the ticker loop and waits for an in-flight pass. It must only be
// called after Start.
func (s *PricingService) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}
