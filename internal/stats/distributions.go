package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Distributions provides the p-value calculations shared by every test
type Distributions struct{}

// NewDistributions creates a new distributions utility
func NewDistributions() *Distributions {
	return &Distributions{}
}

// TTestPValue computes the two-tailed p-value of a t statistic. Degrees of freedom
// may be fractional (Welch-Satterthwaite).
func (d *Distributions) TTestPValue(tStatistic, degreesOfFreedom float64) float64 {
	if degreesOfFreedom <= 0 || math.IsNaN(tStatistic) {
		return 1.0
	}
	if math.IsInf(tStatistic, 0) {
		return 0
	}
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: degreesOfFreedom}
	return clampP(2 * (1 - tDist.CDF(math.Abs(tStatistic))))
}

// CorrelationPValue computes the p-value of a correlation coefficient
func (d *Distributions) CorrelationPValue(correlation float64, sampleSize int) float64 {
	if sampleSize < 3 {
		return 1.0
	}
	df := float64(sampleSize - 2)
	if math.Abs(correlation) >= 1 {
		return 0
	}
	tStatistic := correlation * math.Sqrt(df/(1-correlation*correlation))
	return d.TTestPValue(tStatistic, df)
}

// FTestPValue computes the upper-tail p-value of an F statistic (ANOVA)
func (d *Distributions) FTestPValue(fStatistic float64, df1, df2 float64) float64 {
	if df1 <= 0 || df2 <= 0 || math.IsNaN(fStatistic) {
		return 1.0
	}
	if math.IsInf(fStatistic, 1) {
		return 0
	}
	fDist := distuv.F{D1: df1, D2: df2}
	return clampP(1 - fDist.CDF(fStatistic))
}

// ChiSquarePValue computes the upper-tail p-value of a chi-square statistic
func (d *Distributions) ChiSquarePValue(chiSquare float64, degreesOfFreedom int) float64 {
	if degreesOfFreedom <= 0 || math.IsNaN(chiSquare) {
		return 1.0
	}
	chiDist := distuv.ChiSquared{K: float64(degreesOfFreedom)}
	return clampP(1 - chiDist.CDF(chiSquare))
}

// JarqueBera tests normality from sample skewness and kurtosis. It returns the
// statistic and its chi-square(2) p-value.
func (d *Distributions) JarqueBera(data []float64) (float64, float64) {
	n := float64(len(data))
	if n < 3 {
		return 0, 1.0
	}
	m2 := stat.Moment(2, data, nil)
	if m2 == 0 {
		return 0, 1.0
	}
	skew := stat.Moment(3, data, nil) / math.Pow(m2, 1.5)
	kurt := stat.Moment(4, data, nil) / (m2 * m2)
	jb := n / 6 * (skew*skew + (kurt-3)*(kurt-3)/4)
	return jb, d.ChiSquarePValue(jb, 2)
}

// EffectSizeCohenD computes Cohen's d for two groups using the pooled standard deviation
func (d *Distributions) EffectSizeCohenD(mean1, mean2, var1, var2 float64, n1, n2 int) float64 {
	if n1+n2 <= 2 {
		return 0
	}
	pooled := math.Sqrt((float64(n1-1)*var1 + float64(n2-1)*var2) / float64(n1+n2-2))
	if pooled == 0 {
		return 0
	}
	return (mean1 - mean2) / pooled
}

func clampP(p float64) float64 {
	switch {
	case math.IsNaN(p):
		return 1.0
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
