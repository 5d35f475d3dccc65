package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	GitHub  GitHubConfig
	Ledger  LedgerConfig
	Search  SearchConfig
	Filters FilterConfig
}

type GitHubConfig struct {
	APIURL         string
	Token          string
	EventsPageSize int
}

type LedgerConfig struct {
	Path string
}

type SearchConfig struct {
	Terms               string
	MinRepos            int
	PageSize            int
	ForbiddenCooldown   time.Duration
	MaxForbiddenRetries int
}

// FilterConfig holds the qualification rules. Keyword lists keep the
// order they were configured in; role extraction depends on it.
type FilterConfig struct {
	ExcludedCompanies  []string
	ExcludedIndustries []string
	SeniorityKeywords  []string
	StartupKeywords    []string
	MinRecentCommits   int
	ActivityWindowDays int
}

var AppConfig *Config

// Load loads configuration from .env file and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	AppConfig = &Config{
		GitHub: GitHubConfig{
			APIURL:         getEnv("GITHUB_API_URL", "https://api.github.com/"),
			Token:          getEnv("GITHUB_TOKEN", ""),
			EventsPageSize: getEnvAsInt("EVENTS_PAGE_SIZE", 100),
		},
		Ledger: LedgerConfig{
			Path: getEnv("LEDGER_PATH", "champions.csv"),
		},
		Search: SearchConfig{
			Terms:               getEnv("SEARCH_TERMS", "senior OR principal OR director OR manager"),
			MinRepos:            getEnvAsInt("SEARCH_MIN_REPOS", 5),
			PageSize:            getEnvAsInt("SEARCH_PAGE_SIZE", 100),
			ForbiddenCooldown:   getEnvAsDuration("SEARCH_FORBIDDEN_COOLDOWN", 60*time.Second),
			MaxForbiddenRetries: getEnvAsInt("SEARCH_MAX_FORBIDDEN_RETRIES", 30),
		},
		Filters: FilterConfig{
			ExcludedCompanies: getEnvAsList("EXCLUDED_COMPANIES", []string{
				"google", "amazon", "microsoft", "facebook", "cognizant", "accenture",
				"tcs", "deloitte", "kpmg", "cloudflare", "linkedin", "uber",
			}),
			ExcludedIndustries: getEnvAsList("EXCLUDED_INDUSTRIES", []string{"fintech", "healthtech"}),
			SeniorityKeywords: getEnvAsList("SENIORITY_KEYWORDS", []string{
				"staff engineer", "principal engineer", "senior manager",
				"director", "senior director", "engineer",
			}),
			StartupKeywords:    getEnvAsList("STARTUP_KEYWORDS", []string{"advisor", "vc", "angel investor", "startup"}),
			MinRecentCommits:   getEnvAsInt("MIN_RECENT_COMMITS", 5),
			ActivityWindowDays: getEnvAsInt("ACTIVITY_WINDOW_DAYS", 30),
		},
	}

	return AppConfig, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts positive Go duration strings ("90s", "2m")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable into lower-cased,
// trimmed entries, preserving order and dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			items = append(items, part)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
