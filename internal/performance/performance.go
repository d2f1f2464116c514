// Package performance turns nameplate capacity and daily weather into an
// expected energy figure and judges actual production against it.
package performance

const (
	// DefaultEfficiency is the cumulative real-world loss factor versus the
	// nameplate rating at standard test conditions (1 kWh/m² => rated output).
	DefaultEfficiency = 0.80

	// DefaultThreshold is the performance ratio below which a day is flagged.
	DefaultThreshold = 0.50
)

// Weather is the daily weather context for one installation.
type Weather struct {
	SunHours        float64 `json:"sun_hours"`
	IrradianceKWhM2 float64 `json:"solar_irradiance_kwh_m2"`
}

// Estimator computes expected production.
type Estimator struct {
	Efficiency float64
}

func NewEstimator(efficiency float64) Estimator {
	return Estimator{Efficiency: efficiency}
}

// Expected returns peakKW × irradiance × efficiency. Sun hours are not part
// of the formula. Non-positive irradiance yields a non-positive result.
func (e Estimator) Expected(peakKW, irradianceKWhM2 float64) float64 {
	return peakKW * irradianceKWhM2 * e.Efficiency
}

// Classifier compares actual to expected production.
type Classifier struct {
	Threshold float64
}

func NewClassifier(threshold float64) Classifier {
	return Classifier{Threshold: threshold}
}

// Classify returns the performance ratio and whether it falls below the
// threshold. Without a positive expectation there is no ratio and the day
// is never flagged.
func (c Classifier) Classify(actual, expected float64) (*float64, bool) {
	if expected <= 0 {
		return nil, false
	}
	ratio := actual / expected
	return &ratio, ratio < c.Threshold
}

// Assessment holds the nullable performance columns of one observation.
type Assessment struct {
	PeakPowerKW     *float64
	SunHours        *float64
	IrradianceKWhM2 *float64
	ExpectedKWh     *float64
	Ratio           *float64
	Underperforming bool
}

// Evaluator runs the estimator and classifier together.
type Evaluator struct {
	Estimator  Estimator
	Classifier Classifier
}

func NewEvaluator(efficiency, threshold float64) *Evaluator {
	return &Evaluator{
		Estimator:  NewEstimator(efficiency),
		Classifier: NewClassifier(threshold),
	}
}

// Assess evaluates one installation-day. Missing weather or a non-positive
// peak capacity leaves every performance input empty.
func (ev *Evaluator) Assess(actualKWh, peakKW float64, w *Weather) Assessment {
	var a Assessment
	if peakKW > 0 {
		a.PeakPowerKW = float64Ptr(peakKW)
	}
	if w == nil || peakKW <= 0 {
		return a
	}

	expected := ev.Estimator.Expected(peakKW, w.IrradianceKWhM2)
	a.SunHours = float64Ptr(w.SunHours)
	a.IrradianceKWhM2 = float64Ptr(w.IrradianceKWhM2)
	a.ExpectedKWh = float64Ptr(expected)
	a.Ratio, a.Underperforming = ev.Classifier.Classify(actualKWh, expected)
	return a
}

func float64Ptr(v float64) *float64 { return &v }
