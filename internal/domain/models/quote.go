package models

const (
	// MaxVolume is the largest cargo volume accepted, in m³.
	MaxVolume int64 = 351_000
	// MaxCollateral is the largest collateral accepted, in ISK.
	MaxCollateral int64 = 20_000_000_000

	DaysStandard = 3
	DaysExpress  = 1
)

// Quote is the result of a fully valid calculation. It is never mutated; a newer
// calculation supersedes it.
type Quote struct {
	RouteID           string  `json:"route_id"`
	RouteLabel        string  `json:"route_label"`
	Volume            int64   `json:"volume_m3"`
	Collateral        int64   `json:"collateral_isk"`
	CollateralPercent float64 `json:"collateral_percent"`
	BaseTotal         int64   `json:"base_total"`
	ExpressOn         bool    `json:"express"`
	FinalTotal        int64   `json:"final_total"`
	Days              int     `json:"days"`
	MinReward         int64   `json:"min_reward"`
	BelowMinimum      bool    `json:"below_minimum"`
}

// FormInputs are the raw values the user typed, kept verbatim so every
// recalculation re-derives the numbers from text.
type FormInputs struct {
	RouteID       string `json:"route_id"`
	VolumeRaw     string `json:"volume"`
	CollateralRaw string `json:"collateral"`
	Express       bool   `json:"express"`
}
