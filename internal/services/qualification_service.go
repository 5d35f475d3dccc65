package services

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/alimgiray/champions/internal/models"
	"github.com/alimgiray/champions/pkg/config"
)

// ActivityCounter returns the recent push count for a login. It is only
// called once every cheaper check has passed.
type ActivityCounter func(login string) int

// QualificationService decides whether a candidate becomes a champion
type QualificationService struct {
	excludedCompanies  []string
	excludedIndustries []string
	seniorityKeywords  []string
	startupKeywords    []string
	minRecentCommits   int
}

// NewQualificationService copies the filter lists so later changes to
// the config cannot affect verdicts
func NewQualificationService(filters config.FilterConfig) *QualificationService {
	return &QualificationService{
		excludedCompanies:  normalizeKeywords(filters.ExcludedCompanies),
		excludedIndustries: normalizeKeywords(filters.ExcludedIndustries),
		seniorityKeywords:  normalizeKeywords(filters.SeniorityKeywords),
		startupKeywords:    normalizeKeywords(filters.StartupKeywords),
		minRecentCommits:   filters.MinRecentCommits,
	}
}

// Evaluate runs the checks in order and stops at the first rejection:
// dedup, company, industry, role, activity.
func (s *QualificationService) Evaluate(login string, profile *models.Profile, ledger *ChampionLedger, recentCommits ActivityCounter) models.Verdict {
	if ledger.Contains(login) {
		return models.Verdict{Kind: models.VerdictAlreadyKnown}
	}

	if keyword, ok := matchAny(profile.Company, s.excludedCompanies); ok {
		return models.Verdict{Kind: models.VerdictExcludedCompany, Keyword: keyword}
	}

	if keyword, ok := matchAny(profile.Bio, s.excludedIndustries); ok {
		return models.Verdict{Kind: models.VerdictExcludedIndustry, Keyword: keyword}
	}

	role, keyword, ok := s.ExtractRole(profile.Bio)
	if !ok {
		return models.Verdict{Kind: models.VerdictNoSeniorSignal}
	}

	commits := recentCommits(login)
	if commits < s.minRecentCommits {
		return models.Verdict{Kind: models.VerdictInsufficientActivity, Keyword: keyword, RecentCommits: commits}
	}

	return models.Verdict{
		Kind:          models.VerdictAdmitted,
		Role:          role,
		Keyword:       keyword,
		RecentCommits: commits,
	}
}

// ExtractRole returns the role label for a bio. Seniority keywords are
// tried in order and the first match wins; otherwise any startup keyword
// yields the startup label.
func (s *QualificationService) ExtractRole(bio string) (role, keyword string, ok bool) {
	if keyword, ok := matchAny(bio, s.seniorityKeywords); ok {
		return capitalize(keyword), keyword, true
	}
	if keyword, ok := matchAny(bio, s.startupKeywords); ok {
		return models.StartupRole, keyword, true
	}
	return "", "", false
}

// matchAny reports the first keyword contained in text, ignoring case.
// Empty text never matches.
func matchAny(text string, keywords []string) (string, bool) {
	if text == "" {
		return "", false
	}
	text = strings.ToLower(text)
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return keyword, true
		}
	}
	return "", false
}

// capitalize upper-cases the first letter and lower-cases the rest
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func normalizeKeywords(keywords []string) []string {
	normalized := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" {
			normalized = append(normalized, keyword)
		}
	}
	return normalized
}
