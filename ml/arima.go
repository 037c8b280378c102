package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Order holds the (p, d, q) orders of an ARIMA model.
type Order struct {
	P int `json:"p"`
	D int `json:"d"`
	Q int `json:"q"`
}

func (o Order) String() string {
	return fmt.Sprintf("(%d,%d,%d)", o.P, o.D, o.Q)
}

func (o Order) Valid() bool {
	return o.P >= 0 && o.D >= 0 && o.Q >= 0
}

// ConfidenceLevel is the coverage of the intervals returned by ConfInt.
const ConfidenceLevel = 0.95

const (
	maxIterations = 2000
	nonStationary = 1e12
	minimumSigma2 = 1e-12
)

// ARIMA is an autoregressive integrated moving-average model estimated by
// conditional sum of squares. A mean term is estimated only when D == 0.
type ARIMA struct {
	Order Order

	series    []float64
	diffed    []float64
	residuals []float64
	ar        []float64
	ma        []float64
	mean      float64
	sigma2    float64
	aic       float64
	fitted    bool
}

type arimaFile struct {
	Order  Order     `json:"order"`
	Series []float64 `json:"series"`
	AR     []float64 `json:"ar"`
	MA     []float64 `json:"ma"`
	Mean   float64   `json:"mean"`
	Sigma2 float64   `json:"sigma2"`
	AIC    float64   `json:"aic"`
}

func NewARIMA(p, d, q int) *ARIMA {
	return &ARIMA{Order: Order{P: p, D: d, Q: q}}
}

func (m *ARIMA) Fit(series []float64) error {
	if !m.Order.Valid() {
		return fmt.Errorf("invalid order %s", m.Order)
	}
	for _, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("series contains non-finite values")
		}
	}
	p, q := m.Order.P, m.Order.Q
	w := difference(series, m.Order.D)
	k := m.paramCount()
	if len(w)-p <= k {
		return fmt.Errorf("series of %d points too short for ARIMA%s", len(series), m.Order)
	}

	mean := 0.0
	if m.Order.D == 0 {
		mean = stat.Mean(w, nil)
	}

	coefs := make([]float64, p+q)
	if p+q > 0 {
		problem := optimize.Problem{
			Func: func(x []float64) float64 {
				ar, ma := x[:p], x[p:]
				if !invertible(ar) || !invertible(ma) {
					return nonStationary + floats.Dot(w, w)
				}
				return css(residuals(w, mean, ar, ma), p)
			},
		}
		settings := &optimize.Settings{MajorIterations: maxIterations}
		result, err := optimize.Minimize(problem, coefs, settings, &optimize.NelderMead{})
		if result == nil {
			return fmt.Errorf("ARIMA%s estimation: %w", m.Order, err)
		}
		if floats.HasNaN(result.X) || result.F >= nonStationary {
			return fmt.Errorf("ARIMA%s estimation did not converge", m.Order)
		}
		copy(coefs, result.X)
	}

	m.series = append([]float64(nil), series...)
	m.ar = append([]float64(nil), coefs[:p]...)
	m.ma = append([]float64(nil), coefs[p:]...)
	m.mean = mean
	m.refresh()

	n := float64(len(w) - p)
	logLik := -0.5 * n * (math.Log(2*math.Pi*m.sigma2) + 1)
	m.aic = -2*logLik + 2*float64(k)
	return nil
}

func (m *ARIMA) AIC() float64 {
	return m.aic
}

func (m *ARIMA) Sigma2() float64 {
	return m.sigma2
}

func (m *ARIMA) Coefficients() (ar, ma []float64) {
	return append([]float64(nil), m.ar...), append([]float64(nil), m.ma...)
}

func (m *ARIMA) Forecast(steps int) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	if steps <= 0 {
		return nil, fmt.Errorf("steps must be positive, got %d", steps)
	}
	p, q := m.Order.P, m.Order.Q
	w := append([]float64(nil), m.diffed...)
	e := append([]float64(nil), m.residuals...)
	for h := 0; h < steps; h++ {
		t := len(w)
		pred := m.mean
		for i := 1; i <= p; i++ {
			if t-i >= 0 {
				pred += m.ar[i-1] * (w[t-i] - m.mean)
			}
		}
		for j := 1; j <= q; j++ {
			if t-j >= 0 {
				pred += m.ma[j-1] * e[t-j]
			}
		}
		w = append(w, pred)
		e = append(e, 0)
	}
	out := append([]float64(nil), w[len(m.diffed):]...)

	// undo differencing one level at a time, anchored on each level's last value
	for level := m.Order.D - 1; level >= 0; level-- {
		base := difference(m.series, level)
		last := base[len(base)-1]
		for h := range out {
			last += out[h]
			out[h] = last
		}
	}
	return out, nil
}

// ConfInt returns ConfidenceLevel intervals built from the psi weights of
// the integrated process.
func (m *ARIMA) ConfInt(steps int) ([]Interval, error) {
	forecast, err := m.Forecast(steps)
	if err != nil {
		return nil, err
	}
	if m.sigma2 <= 0 || math.IsNaN(m.sigma2) {
		return nil, errors.New("residual variance unavailable")
	}
	psi := m.psiWeights(steps)
	z := distuv.UnitNormal.Quantile(1 - (1-ConfidenceLevel)/2)
	intervals := make([]Interval, steps)
	variance := 0.0
	for h := 0; h < steps; h++ {
		variance += psi[h] * psi[h]
		half := z * math.Sqrt(m.sigma2*variance)
		intervals[h] = Interval{Lower: forecast[h] - half, Upper: forecast[h] + half}
	}
	return intervals, nil
}

func (m *ARIMA) Save(path string) error {
	if !m.fitted {
		return ErrNotFitted
	}
	payload, err := json.MarshalIndent(arimaFile{
		Order:  m.Order,
		Series: m.series,
		AR:     m.ar,
		MA:     m.ma,
		Mean:   m.mean,
		Sigma2: m.sigma2,
		AIC:    m.aic,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

func (m *ARIMA) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file arimaFile
	if err := json.Unmarshal(payload, &file); err != nil {
		return err
	}
	if !file.Order.Valid() || len(file.AR) != file.Order.P || len(file.MA) != file.Order.Q {
		return fmt.Errorf("%s: coefficients do not match order %s", path, file.Order)
	}
	if len(file.Series) <= file.Order.D+file.Order.P {
		return fmt.Errorf("%s: series too short for order %s", path, file.Order)
	}
	m.Order = file.Order
	m.series = file.Series
	m.ar = file.AR
	m.ma = file.MA
	m.mean = file.Mean
	m.refresh()
	m.aic = file.AIC
	return nil
}

func (m *ARIMA) paramCount() int {
	k := m.Order.P + m.Order.Q + 1
	if m.Order.D == 0 {
		k++
	}
	return k
}

// refresh recomputes the differenced series, residuals and variance from
// the stored series and coefficients.
func (m *ARIMA) refresh() {
	m.diffed = difference(m.series, m.Order.D)
	m.residuals = residuals(m.diffed, m.mean, m.ar, m.ma)
	n := len(m.diffed) - m.Order.P
	m.sigma2 = math.Max(css(m.residuals, m.Order.P)/float64(n), minimumSigma2)
	m.fitted = true
}

func (m *ARIMA) psiWeights(steps int) []float64 {
	psi := make([]float64, steps)
	psi[0] = 1
	for j := 1; j < steps; j++ {
		if j <= len(m.ma) {
			psi[j] = m.ma[j-1]
		}
		for i := 1; i <= len(m.ar) && i <= j; i++ {
			psi[j] += m.ar[i-1] * psi[j-i]
		}
	}
	for level := 0; level < m.Order.D; level++ {
		floats.CumSum(psi, psi)
	}
	return psi
}

func residuals(w []float64, mean float64, ar, ma []float64) []float64 {
	e := make([]float64, len(w))
	for t := len(ar); t < len(w); t++ {
		pred := mean
		for i := 1; i <= len(ar); i++ {
			pred += ar[i-1] * (w[t-i] - mean)
		}
		for j := 1; j <= len(ma) && t-j >= 0; j++ {
			pred += ma[j-1] * e[t-j]
		}
		e[t] = w[t] - pred
	}
	return e
}

func css(e []float64, skip int) float64 {
	total := 0.0
	for _, v := range e[skip:] {
		total += v * v
	}
	return total
}

// invertible applies the sufficient condition sum|c| < 1, which keeps both
// the AR and MA polynomials' roots outside the unit circle.
func invertible(coefs []float64) bool {
	total := 0.0
	for _, c := range coefs {
		total += math.Abs(c)
	}
	return total < 1
}

func difference(series []float64, d int) []float64 {
	out := append([]float64(nil), series...)
	for i := 0; i < d && len(out) > 0; i++ {
		next := make([]float64, len(out)-1)
		for t := 1; t < len(out); t++ {
			next[t-1] = out[t] - out[t-1]
		}
		out = next
	}
	return out
}
