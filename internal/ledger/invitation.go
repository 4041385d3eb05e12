package ledger

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/dukerupert/maycafe/internal/apperr"
	"github.com/dukerupert/maycafe/internal/model"
	"github.com/dukerupert/maycafe/internal/store"
)

const (
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength      = 8
	maxCodeAttempts = 10
)

func newInvitationCode() (string, error) {
	b := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// GenerateInvitationCode creates a fresh single-use invitation for the member.
func (s *Service) GenerateInvitationCode(ctx context.Context, memberID int64) (*model.Invitation, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := newInvitationCode()
		if err != nil {
			return nil, apperr.Wrap(err, "generate invitation code")
		}

		exists, err := s.invitations.CodeExists(ctx, code)
		if err != nil {
			return nil, apperr.Wrap(err, "check invitation code")
		}
		if exists {
			continue
		}

		inv, err := s.invitations.Create(ctx, memberID, code)
		if store.IsUniqueViolation(err) {
			continue
		}
		if err != nil {
			return nil, apperr.Wrap(err, "create invitation")
		}
		return inv, nil
	}
	return nil, apperr.E(apperr.Internal, "could not generate a unique invitation code")
}

// MyInvitations lists the member's invitations with totals.
func (s *Service) MyInvitations(ctx context.Context, memberID int64) ([]model.Invitation, model.InvitationStats, error) {
	var stats model.InvitationStats

	list, err := s.invitations.ListByInviter(ctx, memberID)
	if err != nil {
		return nil, stats, apperr.Wrap(err, "list invitations")
	}
	if list == nil {
		list = []model.Invitation{}
	}

	stats.Total = len(list)
	for _, inv := range list {
		if inv.Status == model.InvitationUsed {
			stats.Used++
		}
		stats.PointsEarned += inv.PointsAwarded
	}
	return list, stats, nil
}
