// Package ledger owns the word-entitlement rules: how a generation is paid
// for out of plan words and purchased words, and how balances are reported.
package ledger

import (
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/plans"
)

type Source string

const (
	SourcePlan      Source = "plan"
	SourcePurchased Source = "purchased"
	SourceMixed     Source = "mixed"
)

// Split says how many words of a deduction come from each pool.
type Split struct {
	FromPlan      int64  `json:"from_plan"`
	FromPurchased int64  `json:"from_purchased"`
	AppliedFrom   Source `json:"applied_from"`
}

// PlanExpired reports whether a paid plan has lapsed. The free plan never expires.
func PlanExpired(p *models.Profile, now time.Time) bool {
	if p.Plan == plans.Free || p.PlanExpiresAt == nil {
		return false
	}
	return !now.Before(*p.PlanExpiresAt)
}

// PlanRemaining is the unused plan quota, never negative.
func PlanRemaining(p *models.Profile, now time.Time) int64 {
	if PlanExpired(p, now) {
		return 0
	}
	remaining := p.WordsLimit - p.PlanWordsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Allocate decides how to pay for words: plan words first, the rest from the
// purchased balance. It fails without a partial split when both pools
// together are short.
func Allocate(p *models.Profile, words int64, now time.Time) (Split, error) {
	if words <= 0 {
		return Split{}, apperr.Invalid("words to deduct must be positive")
	}
	planLeft := PlanRemaining(p, now)
	purchased := p.WordBalance
	if purchased < 0 {
		purchased = 0
	}
	if planLeft+purchased < words {
		return Split{}, fmt.Errorf("%w: need %d, have %d", apperr.ErrInsufficientBalance, words, planLeft+purchased)
	}

	s := Split{FromPlan: min(words, planLeft)}
	s.FromPurchased = words - s.FromPlan
	switch {
	case s.FromPurchased == 0:
		s.AppliedFrom = SourcePlan
	case s.FromPlan == 0:
		s.AppliedFrom = SourcePurchased
	default:
		s.AppliedFrom = SourceMixed
	}
	return s, nil
}

// Apply books a split onto the profile.
func Apply(p *models.Profile, s Split) {
	p.PlanWordsUsed += s.FromPlan
	p.WordBalance -= s.FromPurchased
	p.TotalWordsUsed += s.FromPlan + s.FromPurchased
}

// AddPurchased credits non-expiring words.
func AddPurchased(p *models.Profile, words int64) {
	p.WordBalance += words
}

// GrantPlan switches the profile to plan and starts a fresh one-month quota.
// Renewing the same plan before it lapses extends from the current expiry.
func GrantPlan(p *models.Profile, plan *plans.Plan, now time.Time) {
	start := now
	if p.Plan == plan.ID && p.PlanExpiresAt != nil && p.PlanExpiresAt.After(now) {
		start = *p.PlanExpiresAt
	}
	expires := start.AddDate(0, 1, 0)
	p.Plan = plan.ID
	p.WordsLimit = plan.WordsLimit
	p.PlanWordsUsed = 0
	p.PlanExpiresAt = &expires
}

// Summary is the derived balance view every client screen reads.
type Summary struct {
	Plan             string     `json:"plan"`
	WordsLimit       int64      `json:"words_limit"`
	PlanWordsUsed    int64      `json:"plan_words_used"`
	PlanRemaining    int64      `json:"plan_remaining"`
	PurchasedBalance int64      `json:"purchased_balance"`
	TotalRemaining   int64      `json:"total_remaining"`
	TotalWordsUsed   int64      `json:"total_words_used"`
	PercentUsed      float64    `json:"percent_used"`
	PlanExpired      bool       `json:"plan_expired"`
	PlanExpiresAt    *time.Time `json:"plan_expires_at"`
}

func Summarize(p *models.Profile, now time.Time) Summary {
	planLeft := PlanRemaining(p, now)
	purchased := max(p.WordBalance, 0)
	s := Summary{
		Plan:             p.Plan,
		WordsLimit:       p.WordsLimit,
		PlanWordsUsed:    p.PlanWordsUsed,
		PlanRemaining:    planLeft,
		PurchasedBalance: purchased,
		TotalRemaining:   planLeft + purchased,
		TotalWordsUsed:   p.TotalWordsUsed,
		PlanExpired:      PlanExpired(p, now),
		PlanExpiresAt:    p.PlanExpiresAt,
	}
	if p.WordsLimit > 0 {
		s.PercentUsed = min(100, float64(p.PlanWordsUsed)*100/float64(p.WordsLimit))
	}
	return s
}
