package training

import (
	"fmt"
	"maps"
	"slices"
)

type modelSpec struct {
	family   Family
	defaults map[string]any
	build    func(p Params, user Params, split *Split, seed uint64) (Trainer, error)
}

// Models lists the recognized model names.
var Models = []string{
	"RandomForest",
	"LogisticRegression",
	"MLPClassifier",
	"SVM",
	"GradientBoosting",
	"DecisionTree",
	"KNN",
	"NaiveBayes",
	"AdaBoost",
}

var registry = map[string]modelSpec{
	"RandomForest": {
		family:   FamilyEnsemble,
		defaults: map[string]any{"n_estimators": 100, "max_depth": 10},
		build:    buildRandomForest,
	},
	"GradientBoosting": {
		family:   FamilyEnsemble,
		defaults: map[string]any{"n_estimators": 100, "learning_rate": 0.1},
		build:    buildGradientBoosting,
	},
	"AdaBoost": {
		family:   FamilyEnsemble,
		defaults: map[string]any{"n_estimators": 50, "learning_rate": 1.0},
		build:    buildAdaBoost,
	},
	"MLPClassifier": {
		family: FamilyEpoch,
		defaults: map[string]any{
			"hidden_layer_sizes": []int{64, 32},
			"learning_rate_init": 0.001,
			"max_iter":           500,
			"batch_size":         32,
			"activation":         "relu",
		},
		build: buildMLP,
	},
	"SVM": {
		family:   FamilyMargin,
		defaults: map[string]any{"C": 1.0, "kernel": "rbf", "probability": true},
		build:    buildSVM,
	},
	"LogisticRegression": {
		family:   FamilyLearningCurve,
		defaults: map[string]any{"C": 1.0},
		build:    buildLogisticRegression,
	},
	"DecisionTree": {
		family:   FamilyLearningCurve,
		defaults: map[string]any{"max_depth": 10},
		build:    buildDecisionTree,
	},
	"KNN": {
		family:   FamilyLearningCurve,
		defaults: map[string]any{"n_neighbors": 5, "weights": "uniform"},
		build:    buildKNN,
	},
	"NaiveBayes": {
		family:   FamilyLearningCurve,
		defaults: map[string]any{"var_smoothing": 1e-9},
		build:    buildNaiveBayes,
	},
}

// Known reports whether model is a recognized model name.
func Known(model string) bool {
	_, ok := registry[model]
	return ok
}

// FamilyOf returns the step procedure used for model.
func FamilyOf(model string) (Family, error) {
	spec, ok := registry[model]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	return spec.family, nil
}

// DefaultParams returns a copy of the default hyperparameters for model.
func DefaultParams(model string) (map[string]any, error) {
	spec, ok := registry[model]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	return maps.Clone(spec.defaults), nil
}

// New builds a trainer for model over split. User params override the
// model's defaults; keys the model does not read are ignored.
func New(model string, params map[string]any, split *Split, seed uint64) (Trainer, error) {
	spec, ok := registry[model]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownModel, model, slices.Clone(Models))
	}
	user := Params(params)
	if user == nil {
		user = Params{}
	}
	return spec.build(Merge(spec.defaults, user), user, split, seed)
}

// ValidateParams reports the first error New would return for model and
// params, without needing a dataset.
func ValidateParams(model string, params map[string]any) error {
	_, err := New(model, params, nil, 0)
	return err
}

// Upper bounds on the knobs that scale training time and memory.
const (
	maxEstimators   = 5000
	maxIterations   = 10000
	maxHiddenLayers = 8
	maxHiddenUnits  = 1024
)

func perStep(total int) int {
	return max(1, total/curveSteps)
}

func buildRandomForest(p, _ Params, split *Split, seed uint64) (Trainer, error) {
	n, err := p.BoundedInt("n_estimators", 100, maxEstimators)
	if err != nil {
		return nil, err
	}
	m := NewRandomForest(seed)
	if m.MaxDepth, err = p.MaxDepth(0); err != nil {
		return nil, err
	}
	if m.MinSamplesSplit, err = p.PositiveInt("min_samples_split", 2); err != nil {
		return nil, err
	}
	if m.MinSamplesLeaf, err = p.PositiveInt("min_samples_leaf", 1); err != nil {
		return nil, err
	}
	if m.MaxFeatures, err = p.String("max_features", "sqrt"); err != nil {
		return nil, err
	}
	if b, ok := p["bootstrap"].(bool); ok {
		m.Bootstrap = b
	}
	return &ensembleTrainer{base: base{split: split}, model: m, perStep: perStep(n)}, nil
}

func buildGradientBoosting(p, _ Params, split *Split, seed uint64) (Trainer, error) {
	n, err := p.BoundedInt("n_estimators", 100, maxEstimators)
	if err != nil {
		return nil, err
	}
	m := NewGradientBoosting(seed)
	if m.LearningRate, err = p.PositiveFloat("learning_rate", 0.1); err != nil {
		return nil, err
	}
	if m.MaxDepth, err = p.MaxDepth(3); err != nil {
		return nil, err
	}
	if m.MinSamplesLeaf, err = p.PositiveInt("min_samples_leaf", 1); err != nil {
		return nil, err
	}
	if m.Subsample, err = p.PositiveFloat("subsample", 1); err != nil {
		return nil, err
	}
	return &ensembleTrainer{base: base{split: split}, model: m, perStep: perStep(n)}, nil
}

func buildAdaBoost(p, _ Params, split *Split, _ uint64) (Trainer, error) {
	n, err := p.BoundedInt("n_estimators", 50, maxEstimators)
	if err != nil {
		return nil, err
	}
	m := &AdaBoost{}
	if m.LearningRate, err = p.PositiveFloat("learning_rate", 1); err != nil {
		return nil, err
	}
	return &ensembleTrainer{base: base{split: split}, model: m, perStep: perStep(n)}, nil
}

// defaultEpochs applies when the caller does not set max_iter; the model
// default of max_iter is far too long for an interactive run.
const defaultEpochs = 50

func buildMLP(p, user Params, split *Split, seed uint64) (Trainer, error) {
	epochs, err := user.BoundedInt("max_iter", defaultEpochs, maxIterations)
	if err != nil {
		return nil, err
	}
	m := NewMLP(seed)
	if m.Hidden, err = p.Ints("hidden_layer_sizes", []int{64, 32}); err != nil {
		return nil, err
	}
	if m.LearningRate, err = p.PositiveFloat("learning_rate_init", 0.001); err != nil {
		return nil, err
	}
	if m.BatchSize, err = p.PositiveInt("batch_size", 32); err != nil {
		return nil, err
	}
	if m.Activation, err = p.String("activation", "relu"); err != nil {
		return nil, err
	}
	if m.Alpha, err = p.Float("alpha", 1e-4); err != nil {
		return nil, err
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &epochTrainer{base: base{split: split}, learner: m, epochs: epochs}, nil
}

func buildSVM(p, user Params, split *Split, seed uint64) (Trainer, error) {
	passes, err := user.BoundedInt("max_iter", curveSteps, maxIterations)
	if err != nil {
		return nil, err
	}
	m := NewSVM(seed)
	if m.C, err = p.PositiveFloat("C", 1); err != nil {
		return nil, err
	}
	if m.Kernel, err = p.String("kernel", "rbf"); err != nil {
		return nil, err
	}
	switch m.Kernel {
	case "linear", "rbf":
	default:
		return nil, fmt.Errorf("%w: unsupported kernel %q", ErrInvalidParams, m.Kernel)
	}
	if g, ok := p["gamma"].(string); !ok || (g != "scale" && g != "auto") {
		if m.Gamma, err = p.Float("gamma", 0); err != nil {
			return nil, err
		}
	}
	return &marginTrainer{base: base{split: split}, svm: m, passes: passes}, nil
}

func buildLogisticRegression(p, _ Params, split *Split, _ uint64) (Trainer, error) {
	c, err := p.PositiveFloat("C", 1)
	if err != nil {
		return nil, err
	}
	iters, err := p.BoundedInt("max_iter", 100, maxIterations)
	if err != nil {
		return nil, err
	}
	return &curveTrainer{base: base{split: split}, fresh: func() Classifier {
		return &LogisticRegression{C: c, MaxIter: iters}
	}}, nil
}

func buildDecisionTree(p, _ Params, split *Split, _ uint64) (Trainer, error) {
	depth, err := p.MaxDepth(0)
	if err != nil {
		return nil, err
	}
	minSplit, err := p.PositiveInt("min_samples_split", 2)
	if err != nil {
		return nil, err
	}
	minLeaf, err := p.PositiveInt("min_samples_leaf", 1)
	if err != nil {
		return nil, err
	}
	return &curveTrainer{base: base{split: split}, fresh: func() Classifier {
		return &DecisionTree{MaxDepth: depth, MinSamplesSplit: minSplit, MinSamplesLeaf: minLeaf}
	}}, nil
}

func buildKNN(p, _ Params, split *Split, _ uint64) (Trainer, error) {
	k, err := p.PositiveInt("n_neighbors", 5)
	if err != nil {
		return nil, err
	}
	weights, err := p.String("weights", "uniform")
	if err != nil {
		return nil, err
	}
	if weights != "uniform" && weights != "distance" {
		return nil, fmt.Errorf("%w: unsupported weights %q", ErrInvalidParams, weights)
	}
	return &curveTrainer{base: base{split: split}, fresh: func() Classifier {
		return &KNN{Neighbors: k, Distance: weights == "distance"}
	}}, nil
}

func buildNaiveBayes(p, _ Params, split *Split, _ uint64) (Trainer, error) {
	smoothing, err := p.Float("var_smoothing", 1e-9)
	if err != nil {
		return nil, err
	}
	if smoothing < 0 {
		return nil, fmt.Errorf("%w: var_smoothing must not be negative", ErrInvalidParams)
	}
	return &curveTrainer{base: base{split: split}, fresh: func() Classifier {
		return &NaiveBayes{VarSmoothing: smoothing}
	}}, nil
}
