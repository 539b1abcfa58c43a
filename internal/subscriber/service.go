// Package subscriber keeps the newsletter mailing list.
package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/subscriber/entity"
	"github.com/ovaphlow/pitchfork/service-member-go/pkg/utilities"
)

var emailPattern = regexp.MustCompile(`^[\w-]+(\.[\w-]+)*@([\w-]+\.)+[a-zA-Z]{2,7}$`)

var (
	errInvalidEmail = apperror.BadRequest("Invalid email format.")
	errDuplicate    = apperror.BadRequest("Email already exists.")
)

type Store interface {
	Add(ctx context.Context, s *entity.Subscriber) (bool, error)
	List(ctx context.Context) ([]entity.Subscriber, error)
}

type Service struct {
	repo   Store
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewService(repo Store, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Subscribe adds email to the list. Addresses compare case-insensitively.
func (s *Service) Subscribe(ctx context.Context, email string, meta entity.RecordMeta) (string, error) {
	email = strings.TrimSpace(email)
	if !emailPattern.MatchString(email) {
		return "", errInvalidEmail
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	added, err := s.repo.Add(ctx, &entity.Subscriber{
		ID:         utilities.NewKSUID(),
		Email:      email,
		RecordMeta: raw,
		CreatedAt:  s.now(),
	})
	if err != nil {
		return "", fmt.Errorf("add subscriber: %w", err)
	}
	if !added {
		return "", errDuplicate
	}
	s.logger.Infow("newsletter subscription", "email", email)
	return email, nil
}

// Emails returns every subscribed address in subscription order.
func (s *Service) Emails(ctx context.Context) ([]string, error) {
	subs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(subs))
	for _, sub := range subs {
		out = append(out, sub.Email)
	}
	return out, nil
}
