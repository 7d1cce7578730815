package accounts

import (
	"context"
	"fmt"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/tradeledger/internal/domain"
	"github.com/aristath/tradeledger/internal/events"
)

// DefaultInitialBalance is the cash a new account starts with when none is given.
var DefaultInitialBalance = decimal.NewFromInt(10000)

// Service opens accounts
type Service struct {
	store  domain.AccountStore
	events *events.Manager
	now    func() time.Time
	log    zerolog.Logger
}

// NewService creates a new account service. eventManager may be nil.
func NewService(store domain.AccountStore, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		store:  store,
		events: eventManager,
		now:    func() time.Time { return time.Now().UTC() },
		log:    log.With().Str("service", "accounts").Logger(),
	}
}

// Open creates an empty account funded with initialBalance under a fresh id.
func (s *Service) Open(ctx context.Context, initialBalance decimal.Decimal) (domain.Account, error) {
	return s.OpenWithID(ctx, uuid.NewString(), initialBalance)
}

// OpenWithID creates an empty account under a caller-chosen id, for
// identities issued by the upstream authentication collaborator.
func (s *Service) OpenWithID(ctx context.Context, accountID string, initialBalance decimal.Decimal) (domain.Account, error) {
	if err := validateAccountID(accountID); err != nil {
		return domain.Account{}, err
	}
	if initialBalance.IsNegative() {
		return domain.Account{}, domain.NewValidationError("initial_balance", "must not be negative")
	}

	now := s.now()
	account := domain.Account{
		ID:        accountID,
		Balance:   initialBalance,
		Positions: []domain.Position{},
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return domain.Account{}, fmt.Errorf("failed to open account: %w", err)
	}

	s.log.Info().Str("account_id", account.ID).Str("balance", initialBalance.String()).Msg("Account opened")
	if s.events != nil {
		s.events.Emit(account.ID, "accounts", &events.AccountOpenedData{Balance: initialBalance.String()})
	}
	return account, nil
}

// Get returns the current snapshot of an account
func (s *Service) Get(ctx context.Context, accountID string) (domain.Account, error) {
	return s.store.GetAccount(ctx, accountID)
}

// MaxAccountIDLength bounds caller-chosen account ids.
const MaxAccountIDLength = 128

func validateAccountID(accountID string) error {
	if accountID == "" {
		return domain.NewValidationError("account_id", "must not be empty")
	}
	if len(accountID) > MaxAccountIDLength {
		return domain.NewValidationError("account_id", fmt.Sprintf("must be at most %d bytes", MaxAccountIDLength))
	}
	for _, r := range accountID {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return domain.NewValidationError("account_id", "must not contain whitespace or control characters")
		}
	}
	return nil
}
