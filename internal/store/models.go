package store

import (
	"strconv"
	"time"
)

// Rating floor and forfeit constants mirror the game rules: a team
// never drops below the starting rating, and abandoning a battle still
// pays out a small soul consolation.
const (
	RatingFloor    = 1000
	ForfeitPenalty = 25
	ForfeitSouls   = 2
)

type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex" json:"username"`
	LastVisit time.Time `json:"lastVisit"`
	TeamID    *uint     `json:"teamId,omitempty"`
	Team      *Team     `json:"team,omitempty"`
}

type Team struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	UserID     uint        `gorm:"index" json:"userId"`
	TeamName   string      `json:"teamName"`
	Rating     int         `gorm:"default:1000" json:"rating"`
	SoulsRed   int         `json:"soulsRed"`
	SoulsGreen int         `json:"soulsGreen"`
	SoulsBlue  int         `json:"soulsBlue"`
	Wins       int         `json:"wins"`
	Loses      int         `json:"loses"`
	Characters []Character `json:"characters"`
}

type Character struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	TeamID   uint   `gorm:"index" json:"teamId"`
	CharName string `json:"charName"`
	Role     string `json:"role"`
	Portrait string `json:"portrait"`
	Lost     bool   `json:"lost"`
}

// forfeitRating applies the abandon penalty. The penalty is skipped
// entirely when it would push the team under the floor.
func forfeitRating(rating int) int {
	if rating-ForfeitPenalty >= RatingFloor {
		return rating - ForfeitPenalty
	}
	return rating
}

// dummyTeamName is the placeholder name given to a team that was
// created for onboarding and never saved by its owner.
func dummyTeamName(userID uint) string {
	return "newTeam_" + strconv.FormatUint(uint64(userID), 10)
}
