package usecase

import (
	"strings"
	"time"

	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

// NewOrder is the input of CreateOrder. Amounts are already parsed with model.ParseMoney.
type NewOrder struct {
	ClientID           *string
	ClientName         string
	ClientPhone        string
	ServiceType        string
	Urgency            model.Urgency
	ProblemDescription string
	Area               string
	FullAddress        string
	PreferredAt        *time.Time
	DispatcherNote     string
	PricingType        model.PricingType
	InitialPrice       *float64
	CalloutFee         *float64
}

// Validate reports every problem with the input at once.
func (in NewOrder) Validate() error {
	var reasons []domainErrors.ReasonCode
	if strings.TrimSpace(in.ServiceType) == "" {
		reasons = append(reasons, domainErrors.ReasonServiceTypeRequired)
	}
	if (in.ClientID == nil || strings.TrimSpace(*in.ClientID) == "") && strings.TrimSpace(in.ClientName) == "" {
		reasons = append(reasons, domainErrors.ReasonClientRequired)
	}
	if strings.TrimSpace(in.FullAddress) == "" && strings.TrimSpace(in.Area) == "" {
		reasons = append(reasons, domainErrors.ReasonAddressRequired)
	}
	if !in.Urgency.Valid() {
		reasons = append(reasons, domainErrors.ReasonInvalidUrgency)
	}
	if in.PricingType != "" && !in.PricingType.Valid() {
		reasons = append(reasons, domainErrors.ReasonInvalidPricingType)
	}
	if in.CalloutFee != nil && model.NormalizeMoney(*in.CalloutFee) == nil {
		reasons = append(reasons, domainErrors.ReasonInvalidAmount)
	}
	if in.InitialPrice != nil {
		price := model.NormalizeMoney(*in.InitialPrice)
		if price == nil {
			reasons = append(reasons, domainErrors.ReasonInvalidAmount)
		} else if *price < in.calloutFee() {
			reasons = append(reasons, domainErrors.ReasonInitialPriceBelowCallout)
		}
	}
	if len(reasons) > 0 {
		return domainErrors.Validation(reasons...)
	}
	return nil
}

func (in NewOrder) calloutFee() float64 {
	if in.CalloutFee == nil {
		return 0
	}
	if fee := model.NormalizeMoney(*in.CalloutFee); fee != nil {
		return *fee
	}
	return 0
}

func (in NewOrder) build(id string, actor model.Actor, now time.Time) (*model.Order, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	pricing := in.PricingType
	if pricing == "" {
		pricing = model.PricingUnknown
	}
	var clientID *string
	if in.ClientID != nil && strings.TrimSpace(*in.ClientID) != "" {
		v := strings.TrimSpace(*in.ClientID)
		clientID = &v
	}
	var initial *float64
	if in.InitialPrice != nil {
		initial = model.NormalizeMoney(*in.InitialPrice)
	}
	return &model.Order{
		ID:                   id,
		ClientID:             clientID,
		ClientName:           strings.TrimSpace(in.ClientName),
		ClientPhone:          strings.TrimSpace(in.ClientPhone),
		DispatcherID:         actor.ID,
		AssignedDispatcherID: actor.ID,
		ServiceType:          strings.TrimSpace(in.ServiceType),
		Urgency:              in.Urgency,
		ProblemDescription:   strings.TrimSpace(in.ProblemDescription),
		Area:                 strings.TrimSpace(in.Area),
		FullAddress:          strings.TrimSpace(in.FullAddress),
		PreferredAt:          in.PreferredAt,
		DispatcherNote:       strings.TrimSpace(in.DispatcherNote),
		PricingType:          pricing,
		InitialPrice:         initial,
		CalloutFee:           in.calloutFee(),
		Status:               model.OrderStatusPlaced,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}
