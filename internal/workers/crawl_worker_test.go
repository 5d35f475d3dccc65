package workers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alimgiray/champions/internal/models"
	"github.com/alimgiray/champions/internal/repositories"
	"github.com/alimgiray/champions/internal/services"
	"github.com/alimgiray/champions/pkg/config"
	"github.com/alimgiray/champions/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type searchResult struct {
	logins []string
	// skipped counts items on the page that carried no login
	skipped int
	err     error
}

// fakeSearcher serves queued results per page; an exhausted queue is an empty page
type fakeSearcher struct {
	results map[int][]searchResult
	pages   []int
	perPage []int
	onCall  func(page int)
}

func (f *fakeSearcher) SearchUsers(ctx context.Context, query string, page, perPage int) (*services.SearchPage, error) {
	f.pages = append(f.pages, page)
	f.perPage = append(f.perPage, perPage)
	if f.onCall != nil {
		f.onCall(page)
	}

	queue := f.results[page]
	if len(queue) == 0 {
		return &services.SearchPage{}, nil
	}
	next := queue[0]
	f.results[page] = queue[1:]
	if next.err != nil {
		return nil, next.err
	}
	return &services.SearchPage{
		Logins: next.logins,
		Items:  len(next.logins) + next.skipped,
	}, nil
}

type fakeProfiles struct {
	profiles     map[string]*models.Profile
	commits      map[string]int
	commitCalls  []string
	profileCalls []string
}

func (f *fakeProfiles) GetProfile(ctx context.Context, login string) (*models.Profile, error) {
	f.profileCalls = append(f.profileCalls, login)
	profile, ok := f.profiles[login]
	if !ok {
		return nil, fmt.Errorf("%w: %s", services.ErrProfileNotFound, login)
	}
	return profile, nil
}

func (f *fakeProfiles) GetRecentCommitCount(ctx context.Context, login string) int {
	f.commitCalls = append(f.commitCalls, login)
	return f.commits[login]
}

type countingGate struct {
	calls int
}

func (g *countingGate) Wait(ctx context.Context) error {
	g.calls++
	return nil
}

type memoryStore struct {
	champions []*models.Champion
	err       error
}

func (s *memoryStore) Append(champion *models.Champion) error {
	if s.err != nil {
		return s.err
	}
	s.champions = append(s.champions, champion)
	return nil
}

func (s *memoryStore) names() []string {
	var names []string
	for _, c := range s.champions {
		names = append(names, c.Name)
	}
	return names
}

func testFilters() config.FilterConfig {
	return config.FilterConfig{
		ExcludedCompanies:  []string{"google", "amazon"},
		ExcludedIndustries: []string{"fintech"},
		SeniorityKeywords:  []string{"staff engineer", "principal engineer", "director", "engineer"},
		StartupKeywords:    []string{"advisor", "startup"},
		MinRecentCommits:   5,
	}
}

func testProfiles() *fakeProfiles {
	return &fakeProfiles{
		profiles: map[string]*models.Profile{
			"alice": {Login: "alice", Bio: "Director of Platform Engineering", Location: "Berlin", Followers: 10, PublicRepos: 20, HTMLURL: "https://github.com/alice"},
			"bob":   {Login: "bob", Company: "Google Inc.", Bio: "Staff Engineer"},
			"carol": {Login: "carol", Bio: "Startup advisor"},
			"dave":  {Login: "dave", Bio: "Principal Engineer"},
			"erin":  {Login: "erin", Bio: "Hobbyist"},
		},
		commits: map[string]int{"alice": 7, "bob": 50, "carol": 5, "dave": 4, "erin": 100},
	}
}

type testCrawl struct {
	worker   *CrawlWorker
	searcher *fakeSearcher
	profiles *fakeProfiles
	gate     *countingGate
	ledger   *services.ChampionLedger
	slept    []time.Duration
}

func newTestCrawl(settings CrawlSettings, results map[int][]searchResult, profiles *fakeProfiles, ledger *services.ChampionLedger, store ChampionStore) *testCrawl {
	tc := &testCrawl{
		searcher: &fakeSearcher{results: results},
		profiles: profiles,
		gate:     &countingGate{},
		ledger:   ledger,
	}
	tc.worker = NewCrawlWorker(
		"crawl-test",
		settings,
		tc.searcher,
		tc.profiles,
		tc.gate,
		services.NewQualificationService(testFilters()),
		ledger,
		store,
	)
	tc.worker.sleep = func(ctx context.Context, d time.Duration) error {
		tc.slept = append(tc.slept, d)
		return nil
	}
	return tc
}

func defaultSettings() CrawlSettings {
	return CrawlSettings{
		Query:               "director repos:>5 type:user",
		PageSize:            100,
		ForbiddenCooldown:   60 * time.Second,
		MaxForbiddenRetries: 30,
	}
}

func TestCrawlWorkerProcessesPagesUntilEmpty(t *testing.T) {
	store := &memoryStore{}
	crawl := newTestCrawl(defaultSettings(), map[int][]searchResult{
		1: {{logins: []string{"alice", "bob", "erin"}}},
		2: {{logins: []string{"carol", "dave"}}},
	}, testProfiles(), services.NewChampionLedger(nil), store)

	err := crawl.worker.Start(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, crawl.searcher.pages)
	assert.Equal(t, []int{100, 100, 100}, crawl.searcher.perPage)
	assert.Equal(t, 3, crawl.gate.calls, "quota is checked before every page")
	assert.Equal(t, []string{"alice", "carol"}, store.names())
	assert.Equal(t, []string{"alice", "bob", "erin", "carol", "dave"}, crawl.profiles.profileCalls)
	assert.Equal(t, []string{"alice", "carol", "dave"}, crawl.profiles.commitCalls, "activity is fetched only after cheaper checks pass")
	assert.True(t, crawl.ledger.Contains("alice"))
	assert.True(t, crawl.ledger.Contains("carol"))
	assert.False(t, crawl.ledger.Contains("dave"))
	assert.False(t, crawl.worker.IsRunning())

	alice := store.champions[0]
	assert.Equal(t, &models.Champion{
		Name: "alice", Location: "Berlin", Followers: 10, Repos: 20,
		URL: "https://github.com/alice", RecentCommits: 7, Role: "Director",
	}, alice)
	assert.Equal(t, models.StartupRole, store.champions[1].Role)
}

func TestCrawlWorkerEmptyFirstPage(t *testing.T) {
	store := &memoryStore{}
	crawl := newTestCrawl(defaultSettings(), map[int][]searchResult{}, testProfiles(), services.NewChampionLedger(nil), store)

	require.NoError(t, crawl.worker.Start(context.Background()))

	assert.Equal(t, []int{1}, crawl.searcher.pages)
	assert.Empty(t, store.champions)
}

func TestCrawlWorkerRetriesSamePageWhenForbidden(t *testing.T) {
	store := &memoryStore{}
	crawl := newTestCrawl(defaultSettings(), map[int][]searchResult{
		1: {
			{err: services.ErrSearchForbidden},
			{err: fmt.Errorf("%w: rate limited", services.ErrSearchForbidden)},
			{logins: []string{"alice"}},
		},
	}, testProfiles(), services.NewChampionLedger(nil), store)

	require.NoError(t, crawl.worker.Start(context.Background()))

	assert.Equal(t, []int{1, 1, 1, 2}, crawl.searcher.pages)
	assert.Equal(t, []time.Duration{60 * time.Second, 60 * time.Second}, crawl.slept)
	assert.Equal(t, 4, crawl.gate.calls)
	assert.Equal(t, []string{"alice"}, store.names())
}

func TestCrawlWorkerGivesUpAfterForbiddenRetries(t *testing.T) {
	settings := defaultSettings()
	settings.MaxForbiddenRetries = 2
	forbidden := searchResult{err: services.ErrSearchForbidden}

	crawl := newTestCrawl(settings, map[int][]searchResult{
		1: {forbidden, forbidden, forbidden, forbidden},
	}, testProfiles(), services.NewChampionLedger(nil), &memoryStore{})

	err := crawl.worker.Start(context.Background())

	assert.ErrorIs(t, err, ErrForbiddenRetriesExhausted)
	assert.Equal(t, []int{1, 1, 1}, crawl.searcher.pages)
	assert.Len(t, crawl.slept, 2)
}

func TestCrawlWorkerUnboundedForbiddenRetries(t *testing.T) {
	settings := defaultSettings()
	settings.MaxForbiddenRetries = 0
	forbidden := searchResult{err: services.ErrSearchForbidden}

	queue := make([]searchResult, 0, 51)
	for i := 0; i < 50; i++ {
		queue = append(queue, forbidden)
	}
	queue = append(queue, searchResult{logins: []string{"alice"}})

	store := &memoryStore{}
	crawl := newTestCrawl(settings, map[int][]searchResult{1: queue}, testProfiles(), services.NewChampionLedger(nil), store)

	require.NoError(t, crawl.worker.Start(context.Background()))

	assert.Len(t, crawl.slept, 50)
	assert.Equal(t, []string{"alice"}, store.names())
}

func TestCrawlWorkerAbortsOnSearchError(t *testing.T) {
	store := &memoryStore{}
	crawl := newTestCrawl(defaultSettings(), map[int][]searchResult{
		1: {{logins: []string{"alice"}}},
		2: {{err: &services.SearchError{StatusCode: 422, Err: errors.New("validation failed")}}},
		3: {{logins: []string{"carol"}}},
	}, testProfiles(), services.NewChampionLedger(nil), store)

	err := crawl.worker.Start(context.Background())

	require.Error(t, err)
	var searchErr *services.SearchError
	require.True(t, errors.As(err, &searchErr))
	assert.Equal(t, 422, searchErr.StatusCode)
	assert.Equal(t, []int{1, 2}, crawl.searcher.pages)
	assert.Empty(t, crawl.slept)
	assert.Equal(t, []string{"alice"}, store.names(), "work done before the failure is kept")
}

func TestCrawlWorkerSkipsMissingProfiles(t *testing.T) {
	store := &memoryStore{}
	crawl := newTestCrawl(defaultSettings(), map[int][]searchResult{
		1: {{logins: []string{"ghost", "alice"}}},
	}, testProfiles(), services.NewChampionLedger(nil), store)

	require.NoError(t, crawl.worker.Start(context.Background()))

	assert.Equal(t, []string{"alice"}, store.names())
}

func TestCrawlWorkerAdmitsOncePerRun(t *testing.T) {
	store := &memoryStore{}
	crawl := newTestCrawl(defaultSettings(), map[int][]searchResult{
		1: {{logins: []string{"alice"}}},
		2: {{logins: []string{"alice", "carol"}}},
	}, testProfiles(), services.NewChampionLedger(nil), store)

	require.NoError(t, crawl.worker.Start(context.Background()))

	assert.Equal(t, []string{"alice", "carol"}, store.names())
	assert.Equal(t, []string{"alice", "carol"}, crawl.profiles.commitCalls)
}

func TestCrawlWorkerFailedWriteIsNotRemembered(t *testing.T) {
	store := &memoryStore{err: errors.New("disk full")}
	crawl := newTestCrawl(defaultSettings(), map[int][]searchResult{
		1: {{logins: []string{"alice"}}},
	}, testProfiles(), services.NewChampionLedger(nil), store)

	require.NoError(t, crawl.worker.Start(context.Background()))

	assert.False(t, crawl.ledger.Contains("alice"))
}

func TestCrawlWorkerDoesNotReadmitAfterRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "champions.csv")

	run := func(logins ...string) *testCrawl {
		repo := repositories.NewChampionRepository(path)
		ledger, err := services.LoadChampionLedger(repo)
		require.NoError(t, err)

		crawl := newTestCrawl(defaultSettings(), map[int][]searchResult{
			1: {{logins: logins}},
		}, testProfiles(), ledger, repo)
		require.NoError(t, crawl.worker.Start(context.Background()))
		return crawl
	}

	run("alice", "erin")
	second := run("alice", "carol")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")

	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(models.ChampionHeader, ","), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "alice,"))
	assert.True(t, strings.HasPrefix(lines[2], "carol,"))
	assert.Equal(t, []string{"carol"}, second.profiles.commitCalls, "known champions are rejected before the activity call")
}

func TestCrawlWorkerStop(t *testing.T) {
	store := &memoryStore{}
	crawl := newTestCrawl(defaultSettings(), map[int][]searchResult{
		1: {{logins: []string{"alice", "carol"}}},
	}, testProfiles(), services.NewChampionLedger(nil), store)
	crawl.searcher.onCall = func(page int) {
		require.NoError(t, crawl.worker.Stop())
	}

	err := crawl.worker.Start(context.Background())

	require.NoError(t, err)
	assert.Empty(t, store.champions)
	assert.Equal(t, []int{1}, crawl.searcher.pages)
	require.NoError(t, crawl.worker.Stop(), "stopping twice is safe")
}

func TestCrawlWorkerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	crawl := newTestCrawl(defaultSettings(), map[int][]searchResult{
		1: {{logins: []string{"alice"}}},
	}, testProfiles(), services.NewChampionLedger(nil), &memoryStore{})

	err := crawl.worker.Start(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, crawl.searcher.pages)
}

func TestNewCrawlWorkerDefaults(t *testing.T) {
	testCases := []struct {
		name         string
		settings     CrawlSettings
		wantPageSize int
		wantCooldown time.Duration
	}{
		{name: "Zero settings", settings: CrawlSettings{}, wantPageSize: 100, wantCooldown: 60 * time.Second},
		{name: "Negative values", settings: CrawlSettings{PageSize: -1, ForbiddenCooldown: -time.Second}, wantPageSize: 100, wantCooldown: 60 * time.Second},
		{name: "Explicit values", settings: CrawlSettings{PageSize: 30, ForbiddenCooldown: 5 * time.Second}, wantPageSize: 30, wantCooldown: 5 * time.Second},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			worker := NewCrawlWorker("crawl-test", tc.settings, nil, nil, nil, nil, services.NewChampionLedger(nil), nil)

			assert.Equal(t, tc.wantPageSize, worker.settings.PageSize)
			assert.Equal(t, tc.wantCooldown, worker.settings.ForbiddenCooldown)
			assert.Equal(t, "crawl-test", worker.GetWorkerID())
		})
	}
}

func TestCrawlWorkerZeroCooldownStillWaitsBetweenForbiddenRetries(t *testing.T) {
	settings := defaultSettings()
	settings.ForbiddenCooldown = 0
	settings.MaxForbiddenRetries = 2
	forbidden := searchResult{err: services.ErrSearchForbidden}

	crawl := newTestCrawl(settings, map[int][]searchResult{
		1: {forbidden, forbidden, {logins: []string{"alice"}}},
	}, testProfiles(), services.NewChampionLedger(nil), &memoryStore{})

	require.NoError(t, crawl.worker.Start(context.Background()))

	assert.Equal(t, []time.Duration{60 * time.Second, 60 * time.Second}, crawl.slept)
}

func TestCrawlWorkerContinuesPastPageWithoutLogins(t *testing.T) {
	testCases := []struct {
		name      string
		firstPage searchResult
	}{
		{name: "No item has a login", firstPage: searchResult{skipped: 3}},
		{name: "Some items lack a login", firstPage: searchResult{logins: []string{"bob"}, skipped: 2}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := &memoryStore{}
			crawl := newTestCrawl(defaultSettings(), map[int][]searchResult{
				1: {tc.firstPage},
				2: {{logins: []string{"alice"}}},
			}, testProfiles(), services.NewChampionLedger(nil), store)

			require.NoError(t, crawl.worker.Start(context.Background()))

			assert.Equal(t, []int{1, 2, 3}, crawl.searcher.pages)
			assert.Equal(t, []string{"alice"}, store.names())
		})
	}
}
