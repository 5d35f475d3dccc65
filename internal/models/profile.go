package models

// Profile is the subset of a GitHub user profile the crawler reads
type Profile struct {
	Login       string `json:"login"`
	Company     string `json:"company"`
	Bio         string `json:"bio"`
	Location    string `json:"location"`
	Followers   int    `json:"followers"`
	PublicRepos int    `json:"public_repos"`
	HTMLURL     string `json:"html_url"`
}
