// Package store is the persistence collaborator for users, teams and
// characters. The arena never reaches into gorm directly; it talks to
// the TeamStore through the narrow interface declared on its side.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrTeamNotFound = errors.New("team not found")

type TeamStore struct {
	db *gorm.DB
}

// Open connects to postgres and migrates the schema.
func Open(dsn string) (*TeamStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&User{}, &Team{}, &Character{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &TeamStore{db: db}, nil
}

// NewTeamStore wraps an existing gorm handle; used by tests.
func NewTeamStore(db *gorm.DB) *TeamStore { return &TeamStore{db: db} }

// TeamByUser loads a user's team with its characters populated.
func (s *TeamStore) TeamByUser(ctx context.Context, userID uint) (*Team, error) {
	var team Team
	err := s.db.WithContext(ctx).
		Preload("Characters").
		Where("user_id = ?", userID).
		First(&team).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load team for user %d: %w", userID, err)
	}
	return &team, nil
}

// ApplyForfeit charges the abandon penalty to the user's team: rating
// down (never under the floor), two souls of each color as consolation,
// one more loss, and every character flagged lost.
func (s *TeamStore) ApplyForfeit(ctx context.Context, userID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var team Team
		err := tx.Where("user_id = ?", userID).First(&team).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTeamNotFound
		}
		if err != nil {
			return err
		}
		updates := map[string]any{
			"rating":      forfeitRating(team.Rating),
			"souls_red":   team.SoulsRed + ForfeitSouls,
			"souls_green": team.SoulsGreen + ForfeitSouls,
			"souls_blue":  team.SoulsBlue + ForfeitSouls,
			"loses":       team.Loses + 1,
		}
		if err := tx.Model(&team).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Model(&Character{}).
			Where("team_id = ?", team.ID).
			Update("lost", true).Error
	})
}

// DeleteDummyTeams removes the onboarding placeholder team (and its
// characters) left behind by this user, if any. Nothing to delete is
// not an error.
func (s *TeamStore) DeleteDummyTeams(ctx context.Context, userID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var team Team
		err := tx.Where("user_id = ? AND team_name = ?", userID, dummyTeamName(userID)).
			First(&team).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.Where("team_id = ?", team.ID).Delete(&Character{}).Error; err != nil {
			return err
		}
		return tx.Delete(&team).Error
	})
}

// TouchLastVisit stamps the user's last-visit time. Best effort.
func (s *TeamStore) TouchLastVisit(ctx context.Context, userID uint) error {
	return s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", userID).
		Update("last_visit", time.Now()).Error
}

// ListUsers returns every user with their team (characters included)
// populated, for the server roster listing.
func (s *TeamStore) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := s.db.WithContext(ctx).
		Preload("Team.Characters").
		Preload("Team").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// TeamRank returns the team's 1-based position on the rating ladder.
func (s *TeamStore) TeamRank(ctx context.Context, teamID uint) (int, error) {
	var team Team
	if err := s.db.WithContext(ctx).First(&team, teamID).Error; err != nil {
		return 0, fmt.Errorf("load team %d: %w", teamID, err)
	}
	var better int64
	err := s.db.WithContext(ctx).
		Model(&Team{}).
		Where("rating > ?", team.Rating).
		Count(&better).Error
	if err != nil {
		return 0, fmt.Errorf("rank team %d: %w", teamID, err)
	}
	return int(better) + 1, nil
}
