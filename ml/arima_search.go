package ml

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// SearchConfig bounds the brute-force ARIMA order search.
type SearchConfig struct {
	MaxP int
	MaxD int
	MaxQ int
	// CacheSize bounds how many fit outcomes are kept for reuse. Zero
	// sizes the cache to one full grid.
	CacheSize int
}

func DefaultSearchConfig() SearchConfig {
	return SearchConfig{MaxP: 3, MaxD: 2, MaxQ: 3, CacheSize: 64}
}

func (c SearchConfig) gridSize() int {
	return (c.MaxP + 1) * (c.MaxD + 1) * (c.MaxQ + 1)
}

// FallbackOrder is used when no candidate in the grid can be fitted.
var FallbackOrder = Order{P: 1, D: 1, Q: 1}

// SearchResult reports the winning order and how the grid went.
type SearchResult struct {
	Order     Order
	AIC       float64
	Model     *ARIMA
	Evaluated int
	Failed    int
	CacheHits int
}

type fitKey struct {
	series string
	order  Order
}

// fitOutcome keeps failures too, so a repeated series skips candidates
// already known not to fit.
type fitOutcome struct {
	model *ARIMA
	err   error
}

// OrderSearcher runs order searches that share one cache of fits keyed by
// series content and order. Searching the same values twice, or the
// fallback order after the grid, reuses earlier fits.
type OrderSearcher struct {
	cfg  SearchConfig
	fits *lru.Cache[fitKey, fitOutcome]
}

func NewOrderSearcher(cfg SearchConfig) (*OrderSearcher, error) {
	if cfg.MaxP < 0 || cfg.MaxD < 0 || cfg.MaxQ < 0 {
		return nil, errors.New("search bounds must be non-negative")
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = cfg.gridSize()
	}
	fits, err := lru.New[fitKey, fitOutcome](size)
	if err != nil {
		return nil, err
	}
	return &OrderSearcher{cfg: cfg, fits: fits}, nil
}

// SearchOrder runs a single search with a private cache.
func SearchOrder(series []float64, cfg SearchConfig) (*SearchResult, error) {
	searcher, err := NewOrderSearcher(cfg)
	if err != nil {
		return nil, err
	}
	return searcher.Search(series)
}

// Search fits every order in the grid and keeps the one with the lowest
// AIC. Candidates that fail to fit are skipped. When none fit,
// FallbackOrder is used and its fit error returned if it fails.
func (s *OrderSearcher) Search(series []float64) (*SearchResult, error) {
	if len(series) == 0 {
		return nil, errors.New("series is empty")
	}
	fingerprint := seriesKey(series)

	result := &SearchResult{Order: FallbackOrder, AIC: math.Inf(1)}
	for p := 0; p <= s.cfg.MaxP; p++ {
		for d := 0; d <= s.cfg.MaxD; d++ {
			for q := 0; q <= s.cfg.MaxQ; q++ {
				order := Order{P: p, D: d, Q: q}
				result.Evaluated++
				outcome, hit := s.fit(fingerprint, series, order)
				if hit {
					result.CacheHits++
				}
				if outcome.err != nil {
					result.Failed++
					continue
				}
				if aic := outcome.model.AIC(); aic < result.AIC {
					result.AIC = aic
					result.Order = order
					result.Model = outcome.model
				}
			}
		}
	}
	if result.Model != nil {
		return result, nil
	}

	outcome, hit := s.fit(fingerprint, series, FallbackOrder)
	if hit {
		result.CacheHits++
	}
	if outcome.err != nil {
		return nil, outcome.err
	}
	result.Model = outcome.model
	result.AIC = outcome.model.AIC()
	return result, nil
}

func (s *OrderSearcher) fit(fingerprint string, series []float64, order Order) (fitOutcome, bool) {
	key := fitKey{series: fingerprint, order: order}
	if outcome, ok := s.fits.Get(key); ok {
		return outcome, true
	}
	model := NewARIMA(order.P, order.D, order.Q)
	outcome := fitOutcome{model: model}
	if err := model.Fit(series); err != nil {
		outcome = fitOutcome{err: err}
	}
	s.fits.Add(key, outcome)
	return outcome, false
}

// seriesKey encodes the exact float bits, so only identical series match.
func seriesKey(series []float64) string {
	var b strings.Builder
	b.Grow(8 * len(series))
	var buf [8]byte
	for _, v := range series {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		b.Write(buf[:])
	}
	return b.String()
}
