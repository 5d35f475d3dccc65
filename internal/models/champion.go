package models

import (
	"strconv"
	"strings"
)

// ChampionHeader is the header row of the champions ledger
var ChampionHeader = []string{"name", "location", "followers", "repos", "url", "recent_commits", "role"}

// Champion is a candidate who passed every qualification stage.
// Records are append-only and never updated.
type Champion struct {
	Name          string `json:"name"`
	Location      string `json:"location"`
	Followers     int    `json:"followers"`
	Repos         int    `json:"repos"`
	URL           string `json:"url"`
	RecentCommits int    `json:"recent_commits"`
	Role          string `json:"role"`
}

// NewChampion builds the ledger record for an admitted candidate
func NewChampion(name string, profile *Profile, verdict Verdict) *Champion {
	return &Champion{
		Name:          name,
		Location:      profile.Location,
		Followers:     profile.Followers,
		Repos:         profile.PublicRepos,
		URL:           profile.HTMLURL,
		RecentCommits: verdict.RecentCommits,
		Role:          verdict.Role,
	}
}

// lineBreaks keeps every ledger record on a single line
var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Row returns the record in ChampionHeader column order
func (c *Champion) Row() []string {
	return []string{
		lineBreaks.Replace(c.Name),
		lineBreaks.Replace(c.Location),
		strconv.Itoa(c.Followers),
		strconv.Itoa(c.Repos),
		lineBreaks.Replace(c.URL),
		strconv.Itoa(c.RecentCommits),
		lineBreaks.Replace(c.Role),
	}
}
