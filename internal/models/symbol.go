package models

import (
	"fmt"
	"strings"
)

// Asset type constants
const (
	AssetTypeStock          = "STOCK"
	AssetTypeBond           = "BOND"
	AssetTypeETF            = "ETF"
	AssetTypeCommodity      = "COMMODITY"
	AssetTypeCryptocurrency = "CRYPTOCURRENCY"
	AssetTypeOther          = "OTHER"
)

// ValidAssetTypes lists every accepted asset type.
var ValidAssetTypes = []string{
	AssetTypeStock,
	AssetTypeBond,
	AssetTypeETF,
	AssetTypeCommodity,
	AssetTypeCryptocurrency,
	AssetTypeOther,
}

// Symbol identifies a traded instrument. Equality is structural: two symbols
// are the same instrument iff ticker, exchange and asset type all match.
type Symbol struct {
	Ticker    string `json:"ticker"`
	Exchange  string `json:"exchange"`
	AssetType string `json:"asset_type"`
}

// Validate checks that the symbol is well-formed.
func (s Symbol) Validate() error {
	if strings.TrimSpace(s.Ticker) == "" {
		return fmt.Errorf("ticker is required")
	}
	if strings.TrimSpace(s.Exchange) == "" {
		return fmt.Errorf("exchange is required")
	}
	for _, t := range ValidAssetTypes {
		if s.AssetType == t {
			return nil
		}
	}
	return fmt.Errorf("unknown asset type: %q", s.AssetType)
}

// Key returns a stable string key for map lookups and storage.
func (s Symbol) Key() string {
	return s.Ticker + "." + s.Exchange + "." + s.AssetType
}

func (s Symbol) String() string {
	return s.Ticker + "." + s.Exchange
}
