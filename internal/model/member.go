package model

import "time"

const (
	LevelRegular = "regular"
	LevelSilver  = "silver"
	LevelGold    = "gold"
	LevelDiamond = "diamond"
)

// DefaultAvatar is the placeholder every member starts with. It is never deleted.
const DefaultAvatar = "static/default-avatar.png"

type Member struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Phone        string     `json:"phone"`
	Points       int        `json:"points"`
	Level        string     `json:"level"`
	Avatar       string     `json:"avatar"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login"`
}

type PointRecord struct {
	ID        int64     `json:"id"`
	MemberID  int64     `json:"member_id"`
	Points    int       `json:"points"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

type CheckIn struct {
	ID             int64     `json:"id"`
	MemberID       int64     `json:"member_id"`
	Date           string    `json:"check_in_date"`
	PointsEarned   int       `json:"points_earned"`
	ContinuousDays int       `json:"continuous_days"`
	CreatedAt      time.Time `json:"created_at"`
}

type CheckInStatus struct {
	CheckedInToday bool      `json:"checked_in_today"`
	ContinuousDays int       `json:"continuous_days"`
	Recent         []CheckIn `json:"recent"`
}

const (
	InvitationUnused = "unused"
	InvitationUsed   = "used"
)

type Invitation struct {
	ID              int64      `json:"id"`
	InviterID       int64      `json:"inviter_id"`
	InviteeID       *int64     `json:"invitee_id"`
	InviteeUsername *string    `json:"invitee_username,omitempty"`
	Code            string     `json:"code"`
	Status          string     `json:"status"`
	PointsAwarded   int        `json:"points_awarded"`
	CreatedAt       time.Time  `json:"created_at"`
	UsedAt          *time.Time `json:"used_at"`
}

type InvitationStats struct {
	Total        int `json:"total"`
	Used         int `json:"used"`
	PointsEarned int `json:"points_earned"`
}

type PasswordResetToken struct {
	ID        int64     `json:"id"`
	MemberID  int64     `json:"member_id"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
}
