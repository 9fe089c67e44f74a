package core

import (
	"errors"
	"fmt"
)

// ErrUnknownDataset is returned for identifiers outside the SCED dataset family.
var ErrUnknownDataset = errors.New("unknown dataset")

// Dataset names one of the GridStatus SCED datasets. The string value is
// both the provider's dataset id and the cache namespace.
type Dataset string

const (
	ShadowPricesSCED     Dataset = "ercot_shadow_prices_sced"
	SCEDGenResource60Day Dataset = "ercot_sced_gen_resource_60_day"
	SCEDSystemLambda     Dataset = "ercot_sced_system_lambda"
	LMPByBus             Dataset = "ercot_lmp_by_bus"
	LMPBySettlementPoint Dataset = "ercot_lmp_by_settlement_point"
)

var datasets = []Dataset{
	ShadowPricesSCED,
	SCEDGenResource60Day,
	SCEDSystemLambda,
	LMPByBus,
	LMPBySettlementPoint,
}

// Datasets returns every known dataset in a stable order.
func Datasets() []Dataset {
	out := make([]Dataset, len(datasets))
	copy(out, datasets)
	return out
}

// String implements fmt.Stringer.
func (d Dataset) String() string {
	return string(d)
}

// Valid reports whether d is one of the known datasets.
func (d Dataset) Valid() bool {
	for _, known := range datasets {
		if d == known {
			return true
		}
	}
	return false
}

// ParseDataset converts an identifier into a Dataset.
func ParseDataset(s string) (Dataset, error) {
	d := Dataset(s)
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDataset, s)
	}
	return d, nil
}
