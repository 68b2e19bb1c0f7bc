package quote

// EffectivePrice converts a raw maker order ratio into the price the
// taker actually receives, net of both volume fees. offer is what the
// maker gives (the user's buy side), require is what the maker demands
// (the user's sell side), both in decimal token units. Fees are fractions
// in [0, 1). Fee adjustment happens exactly once, here; dependent-amount
// math elsewhere uses the raw integer ratio.
func EffectivePrice(offer, require, makerFee, takerFee float64) float64 {
	if require <= 0 {
		return 0
	}
	return (offer * (1 - takerFee)) / (require * (1 - makerFee))
}
