package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gostudio/domain/core"
	"gostudio/domain/hypothesis"
	"gostudio/domain/profile"
	domainstats "gostudio/domain/stats"
	"gostudio/domain/table"
	"gostudio/internal"
)

// Config controls test selection and execution
type Config struct {
	MinSamples     int           // complete cases required before any test runs
	NormalityAlpha float64       // Jarque-Bera threshold that switches Pearson to Spearman
	Timeout        time.Duration // budget for a single test
	Parallelism    int           // tests allowed to run at once
	RidgeLambda    float64       // per-row penalty of the importance model
}

// DefaultConfig returns the standard execution settings
func DefaultConfig() Config {
	return Config{
		MinSamples:     8,
		NormalityAlpha: 0.05,
		Timeout:        10 * time.Second,
		Parallelism:    4,
		RidgeLambda:    0.01,
	}
}

// Engine selects and runs the statistical test for each hypothesis
type Engine struct {
	cfg    Config
	dist   *Distributions
	logger *internal.Logger

	// execute runs one hypothesis; replaced in tests to simulate slow work
	execute func(ctx context.Context, t *table.Table, h hypothesis.Hypothesis) domainstats.Result
}

// NewEngine creates a test engine; zero-valued settings fall back to defaults
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.NormalityAlpha <= 0 {
		cfg.NormalityAlpha = def.NormalityAlpha
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = def.Parallelism
	}
	if cfg.RidgeLambda <= 0 {
		cfg.RidgeLambda = def.RidgeLambda
	}
	e := &Engine{cfg: cfg, dist: NewDistributions(), logger: internal.DefaultLogger}
	e.execute = e.runTest
	return e
}

// completeCases holds the rows where both predictor and target are present
type completeCases struct {
	x       []float64 // predictor as numbers
	groups  []string  // predictor as labels
	y       []float64 // target as numbers
	classes []string  // target as labels
}

// extract collects the complete rows. When numericPred or numericTarget is set,
// rows whose value has no numeric reading are skipped instead of read as zero.
func extract(pred, target *table.Column, numericPred, numericTarget bool) completeCases {
	var cc completeCases
	for i := 0; i < pred.Len(); i++ {
		if pred.IsNull(i) || target.IsNull(i) {
			continue
		}
		x, okX := numericAt(pred, i)
		y, okY := numericAt(target, i)
		if (numericPred && !okX) || (numericTarget && !okY) {
			continue
		}
		cc.x = append(cc.x, x)
		cc.groups = append(cc.groups, pred.StringAt(i))
		cc.y = append(cc.y, y)
		cc.classes = append(cc.classes, target.StringAt(i))
	}
	return cc
}

// numericAt reads cell i as a number. Text that parses as a date becomes Unix seconds.
func numericAt(col *table.Column, i int) (float64, bool) {
	if v, ok := col.FloatAt(i); ok {
		return v, true
	}
	if col.Kind == table.KindString && !col.IsNull(i) {
		if ts, ok := table.ParseTime(col.StringAt(i)); ok {
			return float64(ts.Unix()), true
		}
	}
	return 0, false
}

// runTest dispatches on the relationship kind. It never returns nil.
func (e *Engine) runTest(ctx context.Context, t *table.Table, h hypothesis.Hypothesis) domainstats.Result {
	subject := domainstats.Subject{Predictor: h.Predictor, Target: h.Target}
	pred, ok := t.Column(h.Predictor)
	if !ok {
		return failed(subject, h.Kind, core.KindInternal, fmt.Sprintf("column %s not found", h.Predictor))
	}
	target, ok := t.Column(h.Target)
	if !ok {
		return failed(subject, h.Kind, core.KindInternal, fmt.Sprintf("column %s not found", h.Target))
	}

	numericPred := h.Kind == hypothesis.KindCorrelation ||
		(h.Kind == hypothesis.KindClassificationSignal && h.PredictorRole != profile.RoleCategorical && h.PredictorRole != profile.RoleBoolean)
	cc := extract(pred, target, numericPred, h.Kind != hypothesis.KindClassificationSignal)
	subject.SampleSize = len(cc.x)
	if subject.SampleSize < e.cfg.MinSamples {
		return e.insufficientResult(subject, h.Kind, fmt.Sprintf("%d complete rows, need %d", subject.SampleSize, e.cfg.MinSamples))
	}

	var (
		result domainstats.Result
		err    error
	)
	switch h.Kind {
	case hypothesis.KindCorrelation:
		result, err = e.correlation(subject, cc)
	case hypothesis.KindGroupDifference:
		result, err = e.groupDifference(subject, cc)
	case hypothesis.KindClassificationSignal:
		result, err = e.classificationSignal(subject, h.PredictorRole, cc)
	default:
		err = fmt.Errorf("no test for relationship %q", h.Kind)
	}
	if err != nil {
		var short insufficient
		if errors.As(err, &short) {
			return e.insufficientResult(subject, h.Kind, short.reason)
		}
		return failed(subject, h.Kind, core.KindInternal, err.Error())
	}
	return result
}

func (e *Engine) correlation(subject domainstats.Subject, cc completeCases) (domainstats.Result, error) {
	res := &domainstats.CorrelationResult{Subject: subject, Method: domainstats.TestPearson}

	if err := requireVariance(cc.x, subject.Predictor); err != nil {
		return nil, err
	}
	if err := requireVariance(cc.y, subject.Target); err != nil {
		return nil, err
	}
	if len(cc.x) >= 8 {
		if _, p := e.dist.JarqueBera(cc.x); p < e.cfg.NormalityAlpha {
			res.FallbackReason = fmt.Sprintf("%s is not normally distributed (Jarque-Bera p=%.4f)", subject.Predictor, p)
		} else if _, p := e.dist.JarqueBera(cc.y); p < e.cfg.NormalityAlpha {
			res.FallbackReason = fmt.Sprintf("%s is not normally distributed (Jarque-Bera p=%.4f)", subject.Target, p)
		}
	}

	var err error
	if res.FallbackReason != "" {
		res.Method = domainstats.TestSpearman
		res.Coefficient, res.PValue, err = e.Spearman(cc.x, cc.y)
	} else {
		res.Coefficient, res.PValue, err = e.Pearson(cc.x, cc.y)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) groupDifference(subject domainstats.Subject, cc completeCases) (domainstats.Result, error) {
	k := len(indexLevels(cc.groups))
	if err := e.checkGroups(k, len(cc.groups)); err != nil {
		return nil, err
	}
	res := &domainstats.GroupDifferenceResult{Subject: subject, Groups: k}
	var err error
	if k == 2 {
		res.Method = domainstats.TestWelchT
		res.Statistic, res.PValue, res.EffectSize, res.GroupMeans, err = e.WelchT(cc.groups, cc.y)
	} else {
		res.Method = domainstats.TestANOVA
		res.Statistic, res.PValue, res.EffectSize, res.GroupMeans, err = e.OneWayANOVA(cc.groups, cc.y)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) classificationSignal(subject domainstats.Subject, role profile.Role, cc completeCases) (domainstats.Result, error) {
	classes := len(indexLevels(cc.classes))
	if classes < 2 {
		return nil, insufficientf("target has fewer than 2 classes among complete rows")
	}
	res := &domainstats.ClassificationSignalResult{Subject: subject, Classes: classes}

	var err error
	switch role {
	case profile.RoleCategorical, profile.RoleBoolean:
		if err := e.checkGroups(len(indexLevels(cc.groups)), len(cc.groups)); err != nil {
			return nil, err
		}
		res.Method = domainstats.TestChiSquare
		res.Statistic, res.PValue, res.EffectSize, err = e.ChiSquare(cc.groups, cc.classes)
	default:
		if classes == 2 {
			res.Method = domainstats.TestPointBiserial
			res.Statistic, res.PValue, err = e.PointBiserial(cc.x, cc.classes)
			if res.Statistic < 0 {
				res.EffectSize = -res.Statistic
			} else {
				res.EffectSize = res.Statistic
			}
		} else {
			res.Method = domainstats.TestANOVA
			res.Statistic, res.PValue, res.EffectSize, _, err = e.OneWayANOVA(cc.classes, cc.x)
		}
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) checkGroups(k, n int) error {
	if k < 2 {
		return insufficientf("fewer than 2 groups")
	}
	if k > n/2 {
		return insufficientf("more unique values (%d) than %d rows allow", k, n)
	}
	return nil
}

func (e *Engine) insufficientResult(subject domainstats.Subject, kind hypothesis.Kind, reason string) domainstats.Result {
	err := &core.InsufficientDataError{Predictor: subject.Predictor, Reason: reason}
	e.logger.Debug("[Stats] %v", err)
	return failed(subject, kind, err.Kind(), err.Error())
}

func failed(subject domainstats.Subject, kind hypothesis.Kind, errorKind, reason string) *domainstats.FailedResult {
	return &domainstats.FailedResult{Subject: subject, Kind: kind, ErrorKind: errorKind, Reason: reason}
}
