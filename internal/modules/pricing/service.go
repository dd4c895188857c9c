// README: Pricing service: fare configuration, flat rates and pre-trip quotes.
package pricing

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"

	"cabdesk/internal/types"
)

var (
	ErrConfigNotFound   = errors.New("fare config not found")
	ErrFlatRateNotFound = errors.New("flat rate not found")
)

type Service struct {
	store    Repository
	currency string
	logger   *zap.Logger
}

func NewService(store Repository, currency string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if currency == "" {
		currency = types.DefaultCurrency
	}
	return &Service{store: store, currency: currency, logger: logger}
}

func operatorOrDefault(op types.ID) types.ID {
	if op == "" {
		return DefaultOperator
	}
	return op
}

func (s *Service) GetConfig(ctx context.Context, operator types.ID) (*FareConfig, error) {
	cfg, err := s.store.GetConfig(ctx, operatorOrDefault(operator))
	if errors.Is(err, ErrConfigNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, types.NewPersistenceError("load fare config", err)
	}
	return cfg, nil
}

// SaveConfig validates the input and creates or replaces the operator's configuration.
func (s *Service) SaveConfig(ctx context.Context, operator types.ID, in ConfigInput) (*FareConfig, error) {
	cfg, err := in.Validate(operatorOrDefault(operator))
	if err != nil {
		return nil, err
	}
	if err := s.store.UpsertConfig(ctx, &cfg); err != nil {
		s.logger.Error("save fare config failed", zap.String("operator_id", string(cfg.OperatorID)), zap.Error(err))
		return nil, types.NewPersistenceError("save fare config", err)
	}
	s.logger.Info("fare config saved",
		zap.String("operator_id", string(cfg.OperatorID)),
		zap.String("rounding", string(cfg.MeterRoundingMode)),
		zap.Bool("surge", cfg.SurgeEnabled),
	)
	return &cfg, nil
}

// ReplaceOtherFees swaps the whole fee list. Requires an existing configuration.
func (s *Service) ReplaceOtherFees(ctx context.Context, operator types.ID, fees []Fee) ([]Fee, error) {
	clean, err := ValidateFees(fees)
	if err != nil {
		return nil, err
	}
	err = s.store.ReplaceOtherFees(ctx, operatorOrDefault(operator), clean)
	if errors.Is(err, ErrConfigNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, types.NewPersistenceError("save other fees", err)
	}
	return clean, nil
}

func (s *Service) CreateFlatRate(ctx context.Context, operator types.ID, in FlatRateInput) (*FlatRate, error) {
	r, err := in.Validate()
	if err != nil {
		return nil, err
	}
	r.OperatorID = operatorOrDefault(operator)
	if err := s.store.CreateFlatRate(ctx, &r); err != nil {
		return nil, types.NewPersistenceError("create flat rate", err)
	}
	return &r, nil
}

func (s *Service) UpdateFlatRate(ctx context.Context, operator, id types.ID, in FlatRateInput) (*FlatRate, error) {
	r, err := in.Validate()
	if err != nil {
		return nil, err
	}
	r.ID, r.OperatorID = id, operatorOrDefault(operator)
	err = s.store.UpdateFlatRate(ctx, &r)
	if errors.Is(err, ErrFlatRateNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, types.NewPersistenceError("update flat rate", err)
	}
	return &r, nil
}

func (s *Service) GetFlatRate(ctx context.Context, operator, id types.ID) (*FlatRate, error) {
	r, err := s.store.GetFlatRate(ctx, operatorOrDefault(operator), id)
	if errors.Is(err, ErrFlatRateNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, types.NewPersistenceError("load flat rate", err)
	}
	return r, nil
}

func (s *Service) DeleteFlatRate(ctx context.Context, operator, id types.ID) error {
	err := s.store.DeleteFlatRate(ctx, operatorOrDefault(operator), id)
	if err != nil && !errors.Is(err, ErrFlatRateNotFound) {
		return types.NewPersistenceError("delete flat rate", err)
	}
	return err
}

func (s *Service) ListFlatRates(ctx context.Context, operator types.ID, activeOnly bool) ([]FlatRate, error) {
	rates, err := s.store.ListFlatRates(ctx, operatorOrDefault(operator), activeOnly)
	if err != nil {
		return nil, types.NewPersistenceError("list flat rates", err)
	}
	return rates, nil
}

// Estimate quotes a trip before it starts. Validation failures are *types.ValidationError and
// block the submission; the flat strategy without an active rate is one of them.
func (s *Service) Estimate(ctx context.Context, req FareRequest) (FareQuote, error) {
	op := operatorOrDefault(req.OperatorID)
	switch req.Strategy {
	case StrategyFlat:
		return s.estimateFlat(ctx, op, req.FlatRateID)
	case StrategyMeter, "":
		return s.estimateMeter(ctx, op, req.Miles, req.Passengers)
	default:
		return FareQuote{}, types.NewValidationError("strategy", "must be meter or flat")
	}
}

func (s *Service) estimateFlat(ctx context.Context, op, rateID types.ID) (FareQuote, error) {
	if rateID == "" {
		return FareQuote{}, types.NewValidationError("flat_rate_id", "no flat rate selected")
	}
	rate, err := s.store.GetFlatRate(ctx, op, rateID)
	if errors.Is(err, ErrFlatRateNotFound) {
		return FareQuote{}, types.NewValidationError("flat_rate_id", "selected flat rate does not exist")
	}
	if err != nil {
		return FareQuote{}, types.NewPersistenceError("load flat rate", err)
	}
	if !rate.Active {
		return FareQuote{}, types.NewValidationError("flat_rate_id", "selected flat rate is inactive")
	}
	amt, lines := FlatFare(*rate)
	id := rate.ID
	return s.quote(StrategyFlat, amt, lines, &id), nil
}

func (s *Service) estimateMeter(ctx context.Context, op types.ID, miles float64, passengers int) (FareQuote, error) {
	if math.IsNaN(miles) || math.IsInf(miles, 0) || miles < 0 {
		return FareQuote{}, types.NewValidationError("distance", "must be a non-negative number")
	}
	if passengers < 1 {
		return FareQuote{}, types.NewValidationError("passengers", "must be at least 1")
	}
	cfg, err := s.store.GetConfig(ctx, op)
	if errors.Is(err, ErrConfigNotFound) {
		return FareQuote{}, types.NewValidationError("fare_config", "meter fares are not configured")
	}
	if err != nil {
		return FareQuote{}, types.NewPersistenceError("load fare config", err)
	}
	amt, lines := MeterEstimate(*cfg, miles, passengers)
	return s.quote(StrategyMeter, amt, lines, nil), nil
}

// CloseTrip prices a finished meter trip from its live readings.
func (s *Service) CloseTrip(ctx context.Context, operator types.ID, m TripMetrics) (FareQuote, error) {
	if !finite(m.Miles) || m.Miles < 0 {
		return FareQuote{}, types.NewValidationError("miles", "must be a non-negative number")
	}
	if !finite(m.WaitSeconds) || m.WaitSeconds < 0 {
		return FareQuote{}, types.NewValidationError("wait_seconds", "must be a non-negative number")
	}
	cfg, err := s.GetConfig(ctx, operator)
	if errors.Is(err, ErrConfigNotFound) {
		return FareQuote{}, types.NewValidationError("fare_config", "meter fares are not configured")
	}
	if err != nil {
		return FareQuote{}, err
	}
	amt, lines := TripFare(*cfg, m)
	return s.quote(StrategyMeter, amt, lines, nil), nil
}

func (s *Service) quote(strategy Strategy, amt float64, lines []Line, rateID *types.ID) FareQuote {
	money := types.MoneyFromFloat(amt, s.currency)
	return FareQuote{
		Strategy:   strategy,
		Amount:     money,
		Display:    money.String(),
		FlatRateID: rateID,
		Breakdown:  lines,
	}
}
