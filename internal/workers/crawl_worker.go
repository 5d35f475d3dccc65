package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alimgiray/champions/internal/models"
	"github.com/alimgiray/champions/internal/services"
	"github.com/alimgiray/champions/pkg/logger"
	"github.com/sirupsen/logrus"
)

// ErrForbiddenRetriesExhausted ends a crawl whose search requests kept
// being refused
var ErrForbiddenRetriesExhausted = errors.New("search still forbidden after retries")

const defaultForbiddenCooldown = 60 * time.Second

var _ Worker = (*CrawlWorker)(nil)

// UserSearcher returns one page of search results
type UserSearcher interface {
	SearchUsers(ctx context.Context, query string, page, perPage int) (*services.SearchPage, error)
}

// ProfileSource fetches a candidate's profile and recent activity
type ProfileSource interface {
	GetProfile(ctx context.Context, login string) (*models.Profile, error)
	GetRecentCommitCount(ctx context.Context, login string) int
}

// QuotaGate blocks until a search request may be made
type QuotaGate interface {
	Wait(ctx context.Context) error
}

// ChampionStore persists admitted champions
type ChampionStore interface {
	Append(champion *models.Champion) error
}

// CrawlSettings controls paging and the forbidden-response retry policy
type CrawlSettings struct {
	Query             string
	PageSize          int
	ForbiddenCooldown time.Duration
	// MaxForbiddenRetries caps retries of one page; 0 retries forever
	MaxForbiddenRetries int
}

// CrawlWorker pages through user search results and records every
// candidate that qualifies as a champion. Candidates are handled one at a
// time in the order the API returns them.
type CrawlWorker struct {
	*BaseWorker
	settings  CrawlSettings
	searcher  UserSearcher
	profiles  ProfileSource
	limiter   QuotaGate
	qualifier *services.QualificationService
	ledger    *services.ChampionLedger
	store     ChampionStore
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewCrawlWorker(
	workerID string,
	settings CrawlSettings,
	searcher UserSearcher,
	profiles ProfileSource,
	limiter QuotaGate,
	qualifier *services.QualificationService,
	ledger *services.ChampionLedger,
	store ChampionStore,
) *CrawlWorker {
	if settings.PageSize <= 0 {
		settings.PageSize = 100
	}
	if settings.ForbiddenCooldown <= 0 {
		settings.ForbiddenCooldown = defaultForbiddenCooldown
	}
	return &CrawlWorker{
		BaseWorker: NewBaseWorker(workerID),
		settings:   settings,
		searcher:   searcher,
		profiles:   profiles,
		limiter:    limiter,
		qualifier:  qualifier,
		ledger:     ledger,
		store:      store,
		sleep:      services.Sleep,
	}
}

// Start crawls from page 1 until a page comes back with no items. Any search
// failure other than a forbidden response ends the crawl with an error.
func (w *CrawlWorker) Start(ctx context.Context) error {
	w.setRunning(true)
	defer w.setRunning(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.StopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.WithFields(logrus.Fields{
		"worker_id":       w.WorkerID,
		"query":           w.settings.Query,
		"known_champions": w.ledger.Len(),
	}).Info("Crawl started")

	for page := 1; ; page++ {
		if err := w.interrupted(ctx); err != nil {
			return w.finish(page, err)
		}

		result, err := w.fetchPage(ctx, page)
		if err != nil {
			return w.finish(page, err)
		}

		if result.Items == 0 {
			logger.WithFields(logrus.Fields{
				"worker_id": w.WorkerID,
				"page":      page,
			}).Info("No more users to process, stopping")
			return nil
		}

		for _, login := range result.Logins {
			if err := w.interrupted(ctx); err != nil {
				return w.finish(page, err)
			}
			w.processCandidate(ctx, login)
		}
	}
}

// fetchPage requests one search page, waiting out rate limits first and
// retrying the same page after a cooldown when the API answers forbidden
func (w *CrawlWorker) fetchPage(ctx context.Context, page int) (*services.SearchPage, error) {
	entry := logger.WithFields(logrus.Fields{
		"worker_id": w.WorkerID,
		"page":      page,
	})

	for attempt := 1; ; attempt++ {
		entry.Info("Scraping page")

		if err := w.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := w.searcher.SearchUsers(ctx, w.settings.Query, page, w.settings.PageSize)
		if err == nil {
			entry.WithFields(logrus.Fields{
				"items": result.Items,
				"users": len(result.Logins),
			}).Info("Page returned users")
			return result, nil
		}

		if !errors.Is(err, services.ErrSearchForbidden) {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}

		retries := attempt - 1
		if w.settings.MaxForbiddenRetries > 0 && retries >= w.settings.MaxForbiddenRetries {
			return nil, fmt.Errorf("page %d: %w (%d retries)", page, ErrForbiddenRetriesExhausted, retries)
		}

		entry.WithFields(logrus.Fields{
			"attempt":  attempt,
			"cooldown": w.settings.ForbiddenCooldown.String(),
		}).WithError(err).Warn("Search forbidden, rate limit exceeded or token issue. Retrying after a short break")

		if err := w.sleep(ctx, w.settings.ForbiddenCooldown); err != nil {
			return nil, err
		}
	}
}

func (w *CrawlWorker) processCandidate(ctx context.Context, login string) {
	entry := logger.WithFields(logrus.Fields{
		"worker_id": w.WorkerID,
		"login":     login,
	})

	profile, err := w.profiles.GetProfile(ctx, login)
	if err != nil {
		entry.WithError(err).Warn("Failed to fetch profile, skipping")
		return
	}

	verdict := w.qualifier.Evaluate(login, profile, w.ledger, func(login string) int {
		return w.profiles.GetRecentCommitCount(ctx, login)
	})
	entry = entry.WithField("verdict", verdict.Kind)

	switch verdict.Kind {
	case models.VerdictAlreadyKnown:
		entry.Info("User already exists in the ledger, skipping")
	case models.VerdictExcludedCompany:
		entry.WithFields(logrus.Fields{
			"company": profile.Company,
			"keyword": verdict.Keyword,
		}).Info("Skipped due to excluded company")
	case models.VerdictExcludedIndustry:
		entry.WithField("keyword", verdict.Keyword).Info("Skipped due to excluded industry in bio")
	case models.VerdictNoSeniorSignal:
		entry.Info("User did not have a senior title")
	case models.VerdictInsufficientActivity:
		entry.WithField("recent_commits", verdict.RecentCommits).Info("User did not meet the commit activity criteria")
	case models.VerdictAdmitted:
		w.admit(entry, login, profile, verdict)
	}
}

// admit saves the champion before remembering it, so a failed write
// leaves the login eligible on the next run
func (w *CrawlWorker) admit(entry *logrus.Entry, login string, profile *models.Profile, verdict models.Verdict) {
	champion := models.NewChampion(login, profile, verdict)
	if err := w.store.Append(champion); err != nil {
		entry.WithError(err).Error("Failed to save champion")
		return
	}
	w.ledger.Add(login)

	entry.WithFields(logrus.Fields{
		"role":           champion.Role,
		"recent_commits": champion.RecentCommits,
	}).Info("User added to champions list and saved")
}

// interrupted reports why the crawl must stop early, if it must
func (w *CrawlWorker) interrupted(ctx context.Context) error {
	if w.isStopped() {
		return errStopped
	}
	return ctx.Err()
}

func (w *CrawlWorker) finish(page int, err error) error {
	entry := logger.WithFields(logrus.Fields{
		"worker_id": w.WorkerID,
		"page":      page,
	})

	if w.isStopped() {
		entry.Info("Crawl stopped")
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		entry.Info("Crawl cancelled")
		return err
	}

	entry.WithError(err).Error("Crawl aborted")
	return err
}
