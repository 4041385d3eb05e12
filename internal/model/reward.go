package model

import "time"

type RedemptionItem struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	PointsRequired int       `json:"points_required"`
	Description    string    `json:"description"`
	Image          string    `json:"image"`
	Stock          int       `json:"stock"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

const (
	RedemptionPending   = "pending"
	RedemptionClaimed   = "claimed"
	RedemptionCancelled = "cancelled"
)

type Redemption struct {
	ID          int64     `json:"id"`
	MemberID    int64     `json:"member_id"`
	ItemID      int64     `json:"item_id"`
	ItemName    string    `json:"item_name"`
	PointsSpent int       `json:"points_spent"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}
