package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Booster evaluates a gradient-boosted tree ensemble saved with
// xgboost's Booster.save_model("*.json"). Only numerical splits are
// supported, which is all the HDB model uses.
type Booster struct {
	trees     []tree
	baseScore float64
	logLink   bool
	// featureIndex[i] is the position in Features.Vector() of model feature i
	featureIndex []int
}

type tree struct {
	left      []int
	right     []int
	feature   []int
	threshold []float64
	defLeft   []bool
}

type boosterFile struct {
	Learner struct {
		FeatureNames    []string `json:"feature_names"`
		GradientBooster struct {
			Name  string `json:"name"`
			Model struct {
				Trees []treeFile `json:"trees"`
			} `json:"model"`
		} `json:"gradient_booster"`
		LearnerModelParam struct {
			BaseScore  string `json:"base_score"`
			NumFeature string `json:"num_feature"`
		} `json:"learner_model_param"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
	} `json:"learner"`
}

type treeFile struct {
	LeftChildren    []int         `json:"left_children"`
	RightChildren   []int         `json:"right_children"`
	SplitIndices    []int         `json:"split_indices"`
	SplitConditions []float64     `json:"split_conditions"`
	DefaultLeft     flexibleBools `json:"default_left"`
}

// flexibleBools accepts both [0,1] and [false,true]; xgboost has written both.
type flexibleBools []bool

func (f *flexibleBools) UnmarshalJSON(data []byte) error {
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]bool, len(raw))
	for i, v := range raw {
		switch x := v.(type) {
		case bool:
			out[i] = x
		case float64:
			out[i] = x != 0
		default:
			return fmt.Errorf("default_left[%d]: unexpected %T", i, v)
		}
	}
	*f = out
	return nil
}

var logLinkObjectives = map[string]bool{
	"reg:gamma":     true,
	"reg:tweedie":   true,
	"count:poisson": true,
}

// LoadBooster reads a JSON model from disk
func LoadBooster(path string) (*Booster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	return ParseBooster(data)
}

// ParseBooster decodes a JSON model
func ParseBooster(data []byte) (*Booster, error) {
	var file boosterFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}

	learner := file.Learner
	if name := learner.GradientBooster.Name; name != "" && name != "gbtree" {
		return nil, fmt.Errorf("unsupported booster %q", name)
	}
	if len(learner.GradientBooster.Model.Trees) == 0 {
		return nil, fmt.Errorf("model has no trees")
	}

	base, err := parseBaseScore(learner.LearnerModelParam.BaseScore)
	if err != nil {
		return nil, err
	}

	featureIndex, err := resolveFeatures(learner.FeatureNames, learner.LearnerModelParam.NumFeature)
	if err != nil {
		return nil, err
	}

	b := &Booster{
		baseScore:    base,
		logLink:      logLinkObjectives[learner.Objective.Name],
		featureIndex: featureIndex,
	}
	if b.logLink {
		if base <= 0 {
			return nil, fmt.Errorf("base_score %v invalid for %s", base, learner.Objective.Name)
		}
		b.baseScore = math.Log(base)
	}

	for i, tf := range learner.GradientBooster.Model.Trees {
		t, err := newTree(tf, len(featureIndex))
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		b.trees = append(b.trees, t)
	}
	return b, nil
}

// parseBaseScore handles "5E-1" as well as the bracketed "[4.5E5]" form
// newer xgboost releases write.
func parseBaseScore(raw string) (float64, error) {
	s := strings.Trim(strings.TrimSpace(raw), "[]")
	if s == "" {
		return 0.5, nil
	}
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[:i]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid base_score %q: %w", raw, err)
	}
	return v, nil
}

func resolveFeatures(names []string, numFeature string) ([]int, error) {
	if len(names) == 0 {
		n := len(FeatureNames)
		if numFeature != "" {
			parsed, err := strconv.Atoi(numFeature)
			if err != nil {
				return nil, fmt.Errorf("invalid num_feature %q", numFeature)
			}
			n = parsed
		}
		if n != len(FeatureNames) {
			return nil, fmt.Errorf("model expects %d features, have %d", n, len(FeatureNames))
		}
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx, nil
	}

	position := make(map[string]int, len(FeatureNames))
	for i, name := range FeatureNames {
		position[name] = i
	}
	idx := make([]int, len(names))
	for i, name := range names {
		p, ok := position[name]
		if !ok {
			return nil, fmt.Errorf("model feature %q is not provided", name)
		}
		idx[i] = p
	}
	return idx, nil
}

func newTree(tf treeFile, numFeatures int) (tree, error) {
	n := len(tf.LeftChildren)
	if n == 0 {
		return tree{}, fmt.Errorf("empty tree")
	}
	if len(tf.RightChildren) != n || len(tf.SplitIndices) != n || len(tf.SplitConditions) != n {
		return tree{}, fmt.Errorf("inconsistent node arrays")
	}

	defLeft := []bool(tf.DefaultLeft)
	if len(defLeft) != n {
		defLeft = make([]bool, n)
	}

	for i := 0; i < n; i++ {
		l, r := tf.LeftChildren[i], tf.RightChildren[i]
		if l == -1 {
			continue
		}
		if l <= i || r <= i || l >= n || r >= n {
			return tree{}, fmt.Errorf("node %d has invalid children %d/%d", i, l, r)
		}
		if f := tf.SplitIndices[i]; f < 0 || f >= numFeatures {
			return tree{}, fmt.Errorf("node %d splits on unknown feature %d", i, f)
		}
	}

	return tree{
		left:      tf.LeftChildren,
		right:     tf.RightChildren,
		feature:   tf.SplitIndices,
		threshold: tf.SplitConditions,
		defLeft:   defLeft,
	}, nil
}

// leaf walks the tree for one row; leaf values live in split_conditions.
func (t tree) leaf(row []float64) float64 {
	node := 0
	for t.left[node] != -1 {
		v := row[t.feature[node]]
		switch {
		case math.IsNaN(v):
			if t.defLeft[node] {
				node = t.left[node]
			} else {
				node = t.right[node]
			}
		case v < t.threshold[node]:
			node = t.left[node]
		default:
			node = t.right[node]
		}
	}
	return t.threshold[node]
}

// Predict implements Oracle
func (b *Booster) Predict(ctx context.Context, f Features) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	vec := f.Vector()
	row := make([]float64, len(b.featureIndex))
	for i, p := range b.featureIndex {
		row[i] = vec[p]
	}

	margin := b.baseScore
	for _, t := range b.trees {
		margin += t.leaf(row)
	}
	if b.logLink {
		return math.Exp(margin), nil
	}
	return margin, nil
}

// NumTrees returns the ensemble size
func (b *Booster) NumTrees() int { return len(b.trees) }
