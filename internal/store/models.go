package store

import "time"

type Team struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	TeamID       string
	CreatedAt    time.Time
}

type KnowledgeCard struct {
	ID            string
	Title         string
	Content       string
	Summary       string
	Tags          []string
	RelatedCards  []string
	Visibility    string
	LikeCount     int
	OwnerTeamID   string
	OwnerTeamName string
	CreatorUserID string
	CreatorName   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Comment struct {
	ID         string
	CardID     string
	AuthorID   string
	AuthorName string
	Body       string
	CreatedAt  time.Time
}

// CandidateCard is the slim projection the enrichment step sees when
// choosing related cards.
type CandidateCard struct {
	ID      string
	Title   string
	Content string
}
