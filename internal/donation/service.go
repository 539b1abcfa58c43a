package donation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-member-go/pkg/utilities"
)

var errMissingDonation = apperror.BadRequest("Missing donation amount or userId")

// DonateInput is the body of POST /api/donate. Amount is in currency units.
type DonateInput struct {
	Amount  utilities.Cents `json:"amount"`
	UserID  string          `json:"userId"`
	Remarks string          `json:"remarks"`
}

type Service struct {
	gateway Gateway
	repo    Repository
	logger  *zap.SugaredLogger
}

func NewService(gateway Gateway, repo Repository, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{gateway: gateway, repo: repo, logger: logger}
}

// Donate opens a payment intent tagged with the donor so the payment webhook
// can credit them. It returns the client secret for the browser.
func (s *Service) Donate(ctx context.Context, in DonateInput) (string, error) {
	userID := strings.TrimSpace(in.UserID)
	if in.Amount <= 0 || userID == "" {
		return "", errMissingDonation
	}
	if _, ok := parseUserID(userID); !ok {
		return "", errMissingDonation
	}
	secret, err := s.gateway.CreatePaymentIntent(ctx, in.Amount, map[string]string{
		"userId":  userID,
		"remarks": in.Remarks,
	})
	if err != nil {
		return "", fmt.Errorf("create payment intent: %w", err)
	}
	s.logger.Infow("payment intent created", "userId", userID, "amount", in.Amount.String())
	return secret, nil
}

func (s *Service) List(ctx context.Context) ([]Listed, error) {
	return s.repo.List(ctx)
}
