package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"

	"github.com/noah-isme/event-reward-api/internal/models"
)

func (s *EligibilityService) defaultCheckers() map[models.ConditionType]ConditionChecker {
	return map[models.ConditionType]ConditionChecker{
		models.ConditionLoginStreak:      s.checkLoginStreak,
		models.ConditionFriendInvite:     s.checkFriendInvites,
		models.ConditionQuestCompletion:  s.checkQuestCompletion,
		models.ConditionPurchaseActivity: s.checkPurchaseTotal,
	}
}

func (s *EligibilityService) checkLoginStreak(ctx context.Context, userID string, target float64, _ json.RawMessage) (bool, error) {
	var body struct {
		Streak *float64 `json:"streak"`
	}
	if err := s.fetch(ctx, "login-streak", s.cfg.LoginStreakURL, fmt.Sprintf("/users/%s/login-streak", url.PathEscape(userID)), &body); err != nil {
		return false, err
	}
	if body.Streak == nil {
		return false, errors.New("login-streak response missing streak")
	}
	return *body.Streak >= target, nil
}

func (s *EligibilityService) checkFriendInvites(ctx context.Context, userID string, target float64, _ json.RawMessage) (bool, error) {
	var body struct {
		Count *float64 `json:"count"`
	}
	if err := s.fetch(ctx, "referral", s.cfg.ReferralURL, fmt.Sprintf("/users/%s/referrals/count", url.PathEscape(userID)), &body); err != nil {
		return false, err
	}
	if body.Count == nil {
		return false, errors.New("referral response missing count")
	}
	return *body.Count >= target, nil
}

func (s *EligibilityService) checkQuestCompletion(ctx context.Context, userID string, target float64, _ json.RawMessage) (bool, error) {
	var body struct {
		Completed *bool `json:"completed"`
	}
	path := fmt.Sprintf("/users/%s/quests/%s/status", url.PathEscape(userID), formatQuestID(target))
	if err := s.fetch(ctx, "quest", s.cfg.QuestURL, path, &body); err != nil {
		return false, err
	}
	if body.Completed == nil {
		return false, errors.New("quest response missing completed")
	}
	return *body.Completed, nil
}

func (s *EligibilityService) checkPurchaseTotal(ctx context.Context, userID string, target float64, _ json.RawMessage) (bool, error) {
	var body struct {
		TotalAmount *float64 `json:"totalAmount"`
	}
	if err := s.fetch(ctx, "purchase-total", s.cfg.PaymentURL, fmt.Sprintf("/users/%s/purchase-total", url.PathEscape(userID)), &body); err != nil {
		return false, err
	}
	if body.TotalAmount == nil {
		return false, errors.New("purchase-total response missing totalAmount")
	}
	return *body.TotalAmount >= target, nil
}

func (s *EligibilityService) fetch(ctx context.Context, target, baseURL, path string, dest interface{}) error {
	if baseURL == "" {
		return fmt.Errorf("%s: %w", target, errServiceNotConfigured)
	}
	return s.downstream.getJSON(ctx, target, baseURL+path, dest)
}

// formatQuestID renders integral targets without a decimal part.
func formatQuestID(target float64) string {
	if target == math.Trunc(target) && !math.IsInf(target, 0) {
		return strconv.FormatInt(int64(target), 10)
	}
	return strconv.FormatFloat(target, 'f', -1, 64)
}
