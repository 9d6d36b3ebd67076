// Package training turns a dataset into a stepwise model fit. A Trainer
// advances one step at a time so the caller controls pacing and reporting.
package training

import (
	"context"
	"fmt"
)

// Family is the step procedure a model is trained with.
type Family string

const (
	// FamilyEpoch runs one optimizer pass over the training set per step.
	FamilyEpoch Family = "epoch"
	// FamilyEnsemble adds a slice of estimators per step.
	FamilyEnsemble Family = "ensemble"
	// FamilyLearningCurve refits a fresh model on a growing training prefix.
	FamilyLearningCurve Family = "learning_curve"
	// FamilyMargin runs one margin-refinement pass per step.
	FamilyMargin Family = "margin"
)

// Measurement is one named value produced by a step.
type Measurement struct {
	Name  string
	Value float64
}

// Trainer is a stepwise model fit over a prepared split.
type Trainer interface {
	Family() Family
	// Steps is the number of steps the fit runs.
	Steps() int
	// Step advances to step i, counted from 1, and returns the measurements
	// taken on the training and validation sets. A nil slice with a nil error
	// means the step was skipped.
	Step(ctx context.Context, i int) ([]Measurement, error)
	// Summary scores the latest model on the validation and held-out test
	// sets.
	Summary() (map[string]float64, error)
}

// curveSteps is the step count for the ensemble and learning-curve families.
const curveSteps = 20

type base struct {
	split   *Split
	current Predictor
}

func (b *base) measure(p Predictor, xTrain [][]float64, yTrain []int) ([]Measurement, error) {
	k := b.split.NumClasses()
	train := Evaluate(p, xTrain, yTrain, k)
	val := Evaluate(p, b.split.XVal, b.split.YVal, k)
	out := []Measurement{
		{Name: "train_accuracy", Value: train.Accuracy},
		{Name: "test_accuracy", Value: val.Accuracy},
		{Name: "f1_score", Value: val.F1},
		{Name: "precision", Value: val.Precision},
		{Name: "recall", Value: val.Recall},
		{Name: "train_loss", Value: train.LogLoss},
		{Name: "test_loss", Value: val.LogLoss},
	}
	for _, m := range out {
		if !finite(m.Value) {
			return nil, fmt.Errorf("%w: %s is not finite", ErrNumerical, m.Name)
		}
	}
	b.current = p
	return out, nil
}

func (b *base) Summary() (map[string]float64, error) {
	if b.current == nil {
		return nil, fmt.Errorf("%w: no step produced a model", ErrInsufficientData)
	}
	k := b.split.NumClasses()
	test := Evaluate(b.current, b.split.XTest, b.split.YTest, k)
	val := Evaluate(b.current, b.split.XVal, b.split.YVal, k)
	summary := map[string]float64{
		"final_accuracy":      test.Accuracy,
		"validation_accuracy": val.Accuracy,
		"final_loss":          test.LogLoss,
		"f1_score":            test.F1,
		"precision":           test.Precision,
		"recall":              test.Recall,
	}
	for name, v := range summary {
		if !finite(v) {
			return nil, fmt.Errorf("%w: %s is not finite", ErrNumerical, name)
		}
	}
	return summary, nil
}

type epochLearner interface {
	Predictor
	Epoch(ctx context.Context, X [][]float64, y []int, k int) error
}

type epochTrainer struct {
	base
	learner epochLearner
	epochs  int
}

func (t *epochTrainer) Family() Family { return FamilyEpoch }
func (t *epochTrainer) Steps() int     { return t.epochs }

func (t *epochTrainer) Step(ctx context.Context, i int) ([]Measurement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := t.split
	if err := t.learner.Epoch(ctx, s.XTrain, s.YTrain, s.NumClasses()); err != nil {
		return nil, err
	}
	return t.measure(t.learner, s.XTrain, s.YTrain)
}

type marginTrainer struct {
	base
	svm    *SVM
	passes int
}

func (t *marginTrainer) Family() Family { return FamilyMargin }
func (t *marginTrainer) Steps() int     { return t.passes }

func (t *marginTrainer) Step(ctx context.Context, i int) ([]Measurement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := t.split
	if err := t.svm.Epoch(ctx, s.XTrain, s.YTrain, s.NumClasses()); err != nil {
		return nil, err
	}
	out, err := t.measure(t.svm, s.XTrain, s.YTrain)
	if err != nil {
		return nil, err
	}
	return append(out, Measurement{Name: "margin_violations", Value: t.svm.MarginViolations(s.XTrain, s.YTrain)}), nil
}

type grower interface {
	Predictor
	Grow(ctx context.Context, X [][]float64, y []int, k, n int) error
}

type ensembleTrainer struct {
	base
	model   grower
	perStep int
}

func (t *ensembleTrainer) Family() Family { return FamilyEnsemble }
func (t *ensembleTrainer) Steps() int     { return curveSteps }

func (t *ensembleTrainer) Step(ctx context.Context, i int) ([]Measurement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := t.split
	if err := t.model.Grow(ctx, s.XTrain, s.YTrain, s.NumClasses(), t.perStep); err != nil {
		return nil, err
	}
	return t.measure(t.model, s.XTrain, s.YTrain)
}

// minCurveRows is the smallest training prefix a learning-curve step fits.
const minCurveRows = 10

type curveTrainer struct {
	base
	fresh func() Classifier
}

func (t *curveTrainer) Family() Family { return FamilyLearningCurve }
func (t *curveTrainer) Steps() int     { return curveSteps }

func (t *curveTrainer) Step(ctx context.Context, i int) ([]Measurement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := t.split
	size := len(s.XTrain) * i / curveSteps
	size = min(max(size, minCurveRows), len(s.XTrain))
	x, y := s.XTrain[:size], s.YTrain[:size]
	if distinct(y) < 2 {
		return nil, nil
	}

	model := t.fresh()
	if err := model.Fit(ctx, x, y, s.NumClasses()); err != nil {
		return nil, err
	}
	return t.measure(model, x, y)
}

// Classifier is a model fit in one shot. Fit returns ctx's error if ctx
// ends before the fit does.
type Classifier interface {
	Predictor
	Fit(ctx context.Context, X [][]float64, y []int, k int) error
}
