package model

import "time"

// Publication records a pull request opened by the admin panel. Rows are
// written after the pull request exists, so every row refers to a real PR.
type Publication struct {
	ID         string    `json:"id"`
	Number     int       `json:"number"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Category   Category  `json:"category"`
	Branch     string    `json:"branch"`
	BaseBranch string    `json:"baseBranch"`
	CommitSHA  string    `json:"commitSha"`
	FileCount  int       `json:"fileCount"`
	Operator   string    `json:"operator"`
	CreatedAt  time.Time `json:"createdAt"`
}
