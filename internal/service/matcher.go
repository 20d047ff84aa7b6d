package service

import (
	"context"
	"errors"
	"time"

	"paygate/internal/domain"
	"paygate/internal/repository"
)

// defaultMatchWindow bounds how far back the heuristic matcher looks.
// Till payments usually land within minutes of checkout; two hours
// covers delayed notifications without pulling in stale orders.
const defaultMatchWindow = 2 * time.Hour

// MatchOutcome classifies the result of order resolution.
type MatchOutcome int

const (
	// MatchFound means exactly one order was resolved.
	MatchFound MatchOutcome = iota
	// MatchNone means no eligible order exists.
	MatchNone
	// MatchAmbiguous means more than one order qualified. Ambiguity is
	// never auto-resolved; crediting the wrong customer's order is a
	// worse failure than leaving a payment for manual review.
	MatchAmbiguous
)

// MatchResult is the outcome of resolving a notification to an order.
type MatchResult struct {
	Outcome    MatchOutcome
	Order      *domain.Order
	Candidates []*domain.Order // populated on MatchAmbiguous
}

// MatcherService resolves which order a payment notification belongs to.
// It never mutates state; it only proposes a candidate.
type MatcherService struct {
	orderRepo repository.OrderRepository
	window    time.Duration
}

// NewMatcherService creates a new MatcherService. window <= 0 uses the
// default two-hour heuristic window.
func NewMatcherService(orderRepo repository.OrderRepository, window time.Duration) *MatcherService {
	if window <= 0 {
		window = defaultMatchWindow
	}
	return &MatcherService{orderRepo: orderRepo, window: window}
}

// Resolve finds the order a notification belongs to. A usable explicit
// reference wins; otherwise the amount/time-window heuristic runs.
func (s *MatcherService) Resolve(ctx context.Context, n *domain.PaymentNotification) (*MatchResult, error) {
	if n.Reference != "" {
		order, err := s.orderRepo.GetByReference(ctx, n.Reference)
		if err == nil {
			return &MatchResult{Outcome: MatchFound, Order: order}, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		// Reference present but unknown: treat as unusable and fall
		// through to the heuristic.
	}

	return s.resolveHeuristic(ctx, n)
}

// resolveHeuristic matches on amount, recency and payment status:
// totalAmount or remainingBalance equal to the notified amount, status
// in {unpaid, pending, partial}, created inside the window, and not
// already settled by this method and payer.
func (s *MatcherService) resolveHeuristic(ctx context.Context, n *domain.PaymentNotification) (*MatchResult, error) {
	since := time.Now().Add(-s.window)

	candidates, err := s.orderRepo.FindCandidates(ctx, n.Amount, since)
	if err != nil {
		return nil, err
	}

	eligible := make([]*domain.Order, 0, len(candidates))
	for _, order := range candidates {
		if order.SettledBy(n.Method, n.PayerPhone) {
			continue
		}
		eligible = append(eligible, order)
	}

	switch len(eligible) {
	case 0:
		return &MatchResult{Outcome: MatchNone}, nil
	case 1:
		return &MatchResult{Outcome: MatchFound, Order: eligible[0]}, nil
	default:
		return &MatchResult{Outcome: MatchAmbiguous, Candidates: eligible}, nil
	}
}
