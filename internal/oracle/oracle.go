package oracle

import (
	"sort"
	"strconv"
	"sync"

	"github.com/ksred/escrow-api/internal/types"
)

// PriceData is one price observation for an asset, quoted in the oracle's
// base currency at the oracle's decimal scale.
type PriceData struct {
	Price     types.Amount `json:"price"`
	Timestamp int64        `json:"timestamp"`
}

// Source is the price-oracle collaborator: spot, historical and
// time-weighted prices per asset, all in a fixed decimal scale.
type Source interface {
	// Decimals is the number of decimal places in every quoted price.
	Decimals() uint32
	// Assets lists every asset the oracle quotes.
	Assets() ([]string, error)
	// LastPrice returns the most recent observation for an asset, nil if
	// the asset has no feed.
	LastPrice(asset string) (*PriceData, error)
	// Price returns the most recent observation at or before ts.
	Price(asset string, ts int64) (*PriceData, error)
	// TWAP averages the last records observations, nil if no data.
	TWAP(asset string, records int) (*types.Amount, error)
	// CrossRate quotes base in units of quote at the oracle scale.
	CrossRate(base, quote string) (*PriceData, error)
	// CrossTWAP is the time-weighted cross rate over records observations.
	CrossTWAP(base, quote string, records int) (*types.Amount, error)
}

// Scale returns the multiplier implied by a source's decimals.
func Scale(src Source) types.Amount {
	n := "1"
	for i := uint32(0); i < src.Decimals(); i++ {
		n += "0"
	}
	a, _ := types.ParseAmount(n)
	return a
}

// CheckPriceTrigger reports whether the base/quote cross rate satisfies the
// target price. Both legs are quoted in the oracle's base currency; the
// ratio is scaled by 10^decimals before comparison so it lines up with
// targets expressed at the same scale. useTWAP trades spot responsiveness
// for manipulation resistance.
func CheckPriceTrigger(src Source, baseAsset, quoteAsset string, target types.Amount, useTWAP bool) (bool, types.Amount, error) {
	var basePrice, quotePrice *types.Amount

	if useTWAP {
		var err error
		basePrice, err = src.TWAP(baseAsset, twapRecords)
		if err != nil {
			return false, types.Amount{}, err
		}
		quotePrice, err = src.TWAP(quoteAsset, twapRecords)
		if err != nil {
			return false, types.Amount{}, err
		}
	} else {
		bp, err := src.LastPrice(baseAsset)
		if err != nil {
			return false, types.Amount{}, err
		}
		qp, err := src.LastPrice(quoteAsset)
		if err != nil {
			return false, types.Amount{}, err
		}
		if bp != nil {
			basePrice = &bp.Price
		}
		if qp != nil {
			quotePrice = &qp.Price
		}
	}

	// A missing feed never triggers.
	if basePrice == nil || quotePrice == nil || quotePrice.IsZero() {
		return false, types.NewAmount(0), nil
	}

	ratio := basePrice.MulDiv(Scale(src), *quotePrice)
	return ratio.Cmp(target) >= 0, ratio, nil
}

// twapRecords is the window used for trigger checks, matching the oracle's
// five-period convention.
const twapRecords = 5

// Feed is an in-memory Source fed by published observations. It keeps a
// bounded history per asset so historical and TWAP queries work.
type Feed struct {
	mu       sync.RWMutex
	decimals uint32
	history  int
	points   map[string][]PriceData
}

// NewFeed returns a Feed quoting prices at the given decimal scale.
func NewFeed(decimals uint32) *Feed {
	return &Feed{
		decimals: decimals,
		history:  256,
		points:   make(map[string][]PriceData),
	}
}

// Publish records a new observation for an asset. Observations must arrive
// in timestamp order per asset; out-of-order points are appended as-is and
// resolved by sorting at read time.
func (f *Feed) Publish(asset string, price types.Amount, ts int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pts := append(f.points[asset], PriceData{Price: price, Timestamp: ts})
	sort.Slice(pts, func(i, j int) bool { return pts[i].Timestamp < pts[j].Timestamp })
	if len(pts) > f.history {
		pts = pts[len(pts)-f.history:]
	}
	f.points[asset] = pts
}

func (f *Feed) Decimals() uint32 {
	return f.decimals
}

func (f *Feed) Assets() ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	assets := make([]string, 0, len(f.points))
	for asset := range f.points {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets, nil
}

func (f *Feed) LastPrice(asset string) (*PriceData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	pts := f.points[asset]
	if len(pts) == 0 {
		return nil, nil
	}
	last := pts[len(pts)-1]
	return &last, nil
}

func (f *Feed) Price(asset string, ts int64) (*PriceData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	pts := f.points[asset]
	for i := len(pts) - 1; i >= 0; i-- {
		if pts[i].Timestamp <= ts {
			p := pts[i]
			return &p, nil
		}
	}
	return nil, nil
}

func (f *Feed) TWAP(asset string, records int) (*types.Amount, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	pts := f.points[asset]
	if len(pts) == 0 || records <= 0 {
		return nil, nil
	}
	if records > len(pts) {
		records = len(pts)
	}

	sum := types.NewAmount(0)
	for _, p := range pts[len(pts)-records:] {
		sum = sum.Add(p.Price)
	}
	avg := sum.MulDiv(types.NewAmount(1), types.NewAmount(int64(records)))
	return &avg, nil
}

func (f *Feed) CrossRate(base, quote string) (*PriceData, error) {
	bp, err := f.LastPrice(base)
	if err != nil || bp == nil {
		return nil, err
	}
	qp, err := f.LastPrice(quote)
	if err != nil || qp == nil {
		return nil, err
	}
	if qp.Price.IsZero() {
		return nil, nil
	}

	ts := bp.Timestamp
	if qp.Timestamp > ts {
		ts = qp.Timestamp
	}
	return &PriceData{
		Price:     bp.Price.MulDiv(Scale(f), qp.Price),
		Timestamp: ts,
	}, nil
}

func (f *Feed) CrossTWAP(base, quote string, records int) (*types.Amount, error) {
	bp, err := f.TWAP(base, records)
	if err != nil || bp == nil {
		return nil, err
	}
	qp, err := f.TWAP(quote, records)
	if err != nil || qp == nil {
		return nil, err
	}
	if qp.IsZero() {
		return nil, nil
	}
	rate := bp.MulDiv(Scale(f), *qp)
	return &rate, nil
}

// ParseRecords parses a records query parameter, defaulting to the trigger
// window when absent.
func ParseRecords(raw string) int {
	if raw == "" {
		return twapRecords
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return twapRecords
	}
	return n
}
