package usecase

import (
	"time"

	"github.com/polkiloo/dispatchdesk/internal/config"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

// Settings are the business knobs shared by the use cases.
type Settings struct {
	CommissionRate           float64
	CommissionExemptCallout  bool
	OrderExpiry              time.Duration
	Windows                  model.AttentionWindows
	PendingConfirmationLimit int
	PlannedSoonWindow        time.Duration
	PriceDeviationThreshold  float64
	DefaultMaxActiveJobs     int
	DefaultBalanceThreshold  float64

	RequestTimeout    time.Duration
	ReadRetries       int
	RetryBackoff      time.Duration
	ReferenceCacheTTL time.Duration
	RosterCacheTTL    time.Duration
}

// NewSettings extracts use case settings from the application config.
func NewSettings(cfg *config.Config) Settings {
	return Settings{
		CommissionRate:           cfg.CommissionRate,
		CommissionExemptCallout:  cfg.CommissionExemptCallout,
		OrderExpiry:              cfg.OrderExpiry,
		Windows:                  model.AttentionWindows{StalePlaced: cfg.StalePlacedAfter, StaleClaimed: cfg.StaleClaimedAfter},
		PendingConfirmationLimit: cfg.PendingConfirmationLimit,
		PlannedSoonWindow:        cfg.PlannedSoonWindow,
		PriceDeviationThreshold:  cfg.PriceDeviationThreshold,
		DefaultMaxActiveJobs:     cfg.DefaultMaxActiveJobs,
		DefaultBalanceThreshold:  cfg.DefaultBalanceThreshold,
		RequestTimeout:           cfg.RequestTimeout,
		ReadRetries:              cfg.ReadRetries,
		RetryBackoff:             cfg.RetryBackoff,
		ReferenceCacheTTL:        cfg.ReferenceCacheTTL,
		RosterCacheTTL:           cfg.RosterCacheTTL,
	}
}

// Commission returns the platform cut of a completed order's final price.
func (s Settings) Commission(o *model.Order) float64 {
	if o.FinalPrice == nil {
		return 0
	}
	base := *o.FinalPrice
	if s.CommissionExemptCallout {
		base -= o.CalloutFee
	}
	if base <= 0 {
		return 0
	}
	return model.RoundMoney(base * s.CommissionRate)
}
