package usecase

import (
	"math"

	"github.com/shopspring/decimal"

	"speedliner/internal/domain/models"
)

var (
	rateLowVolume  = decimal.New(3, -2)
	rateHighVolume = decimal.New(1, -2)
)

// CollateralPercent is the collateral fee rate for a route and volume. Volumes
// up to half the maximum pay 3%, larger ones 1%. Routes without collateral pay nothing.
func CollateralPercent(route models.Route, volume int64) float64 {
	rate, _ := collateralRate(route, volume).Float64()
	return rate
}

func collateralRate(route models.Route, volume int64) decimal.Decimal {
	switch {
	case route.NoCollateral:
		return decimal.Zero
	case volume <= models.MaxVolume/2:
		return rateLowVolume
	default:
		return rateHighVolume
	}
}

// Calculate prices one shipment. It returns either a complete Quote or a
// *models.ValidationError; a nil route means nothing is selected yet.
func Calculate(route *models.Route, volumeRaw, collateralRaw string, express bool) (models.Quote, error) {
	if route == nil {
		return models.Quote{}, models.ErrNoRouteSelected
	}

	volume, ok := Normalize(volumeRaw)
	if !ok {
		return models.Quote{}, models.ErrInvalidVolume
	}

	var collateral int64
	if !route.NoCollateral {
		collateral, ok = Normalize(collateralRaw)
		if !ok {
			return models.Quote{}, models.ErrInvalidCollateral
		}
	}

	if volume > models.MaxVolume {
		return models.Quote{}, models.ErrVolumeExceeded
	}
	if !route.NoCollateral && collateral > models.MaxCollateral {
		return models.Quote{}, models.ErrCollateralExceeded
	}

	rate := collateralRate(*route, volume)
	fee := decimal.NewFromInt(volume).Mul(decimal.NewFromFloat(route.PricePerM3)).
		Add(decimal.NewFromInt(collateral).Mul(rate))
	// Amounts are non-negative, so half away from zero is half up.
	baseTotal := saturate(fee.Round(0))

	q := models.Quote{
		RouteID:    route.ID,
		RouteLabel: route.Label(),
		Volume:     volume,
		Collateral: collateral,
		BaseTotal:  baseTotal,
		ExpressOn:  express,
		FinalTotal: baseTotal,
		Days:       models.DaysStandard,
		MinReward:  route.MinPrice,
	}
	q.CollateralPercent, _ = rate.Float64()
	if express {
		q.FinalTotal = saturate(decimal.NewFromInt(baseTotal).Mul(decimal.NewFromInt(2)))
		q.Days = models.DaysExpress
	}
	q.BelowMinimum = q.MinReward > 0 && q.FinalTotal < q.MinReward
	return q, nil
}

var maxTotal = decimal.NewFromInt(math.MaxInt64)

func saturate(d decimal.Decimal) int64 {
	if d.GreaterThan(maxTotal) {
		return math.MaxInt64
	}
	return d.IntPart()
}
