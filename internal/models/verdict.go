package models

// VerdictKind represents the outcome of qualifying a candidate
type VerdictKind string

const (
	VerdictAdmitted             VerdictKind = "admitted"
	VerdictAlreadyKnown         VerdictKind = "already_known"
	VerdictExcludedCompany      VerdictKind = "excluded_company"
	VerdictExcludedIndustry     VerdictKind = "excluded_industry"
	VerdictNoSeniorSignal       VerdictKind = "no_senior_signal"
	VerdictInsufficientActivity VerdictKind = "insufficient_activity"
)

// StartupRole is the label given to bios that only match a startup keyword
const StartupRole = "Startup/VC involvement"

// Verdict is the result of running a candidate through the qualification chain
type Verdict struct {
	Kind VerdictKind `json:"kind"`
	// Role is set only when Kind is VerdictAdmitted
	Role string `json:"role,omitempty"`
	// Keyword is the matched block-list entry for the exclusion kinds, and
	// the role keyword for VerdictInsufficientActivity and VerdictAdmitted
	Keyword string `json:"keyword,omitempty"`
	// RecentCommits is set only once the activity check has run, that is
	// for VerdictInsufficientActivity and VerdictAdmitted
	RecentCommits int `json:"recent_commits,omitempty"`
}

// IsAdmitted checks if the candidate passed every stage
func (v Verdict) IsAdmitted() bool {
	return v.Kind == VerdictAdmitted
}
