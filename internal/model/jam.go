package model

import "time"

// Genres a jam session can be tagged with.
const (
	GenreJazz      = "jazz"
	GenreRock      = "rock"
	GenrePop       = "pop"
	GenreHipHop    = "hiphop"
	GenreClassical = "classical"
	GenreOther     = "other"
)

// ValidGenre reports whether g is one of the known genres.
func ValidGenre(g string) bool {
	switch g {
	case GenreJazz, GenreRock, GenrePop, GenreHipHop, GenreClassical, GenreOther:
		return true
	}
	return false
}

// JamSession is a scheduled, location-bound meetup.
//
// CreatedByID is the owning account; CreatedBy is that account's username,
// filled in by the store on reads so responses can show who hosts the jam.
type JamSession struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Genre           string    `json:"genre"`
	SkillLevel      string    `json:"skill_level"`
	Location        string    `json:"location"`
	DateTime        time.Time `json:"date_time"`
	MaxParticipants int       `json:"max_participants"`
	CreatedByID     string    `json:"-"`
	CreatedBy       string    `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
}

// Participation records that an account joined a jam session. The pair
// (AccountID, JamSessionID) is unique.
type Participation struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"-"`
	Username     string    `json:"user"`
	JamSessionID string    `json:"jam_session"`
	JoinedAt     time.Time `json:"joined_at"`
}

// Message is a chat line posted inside a jam session.
type Message struct {
	ID           string    `json:"id"`
	JamSessionID string    `json:"jam_session"`
	SenderID     string    `json:"-"`
	Sender       string    `json:"sender"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"created_at"`
}
