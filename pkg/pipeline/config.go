// Package pipeline wires the registration and detection stages into
// the run-one-pair pipeline, and runs batches of independent pairs
// concurrently. A Config is an immutable value passed into each stage
// call; pipeline instances share nothing, so any number can run in
// parallel.
package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"skydiff/pkg/detect"
	"skydiff/pkg/register"
)

type Config struct {
	Verbosity int

	// Which geometric model to fit: rigid, similarity, homography.
	Method string

	// Central-region crop for speed on large frames.
	UseCentralRegion bool
	RegionSize       int
	MinImageSize     int

	// Preprocessing.
	LowPercentile   float64
	HighPercentile  float64
	PreprocessSigma float64

	// Feature detection and matching.
	MaxKeypoints  int
	FastThreshold float64
	PatchSize     int
	RatioTest     float64

	// Robust fitting.
	RansacTrials    int
	InlierTolerance float64
	MinInliers      int
	RandomSeed      int64

	// Resampling fill for pixels outside the source frame.
	FillValue float64

	// Differencing.
	DiffSigma     float64
	ThresholdMode string
	DiffThreshold float64
	SigmaK        float64
	Percentile    float64

	// Blob filtering.
	MinArea       int
	MaxArea       int
	FourConnected bool
}

// NewConfig carries the defaults the source tooling ships with.
func NewConfig() Config {
	return Config{
		Method:           string(register.Rigid),
		UseCentralRegion: false,
		RegionSize:       200,
		MinImageSize:     300,
		LowPercentile:    0.5,
		HighPercentile:   99.5,
		PreprocessSigma:  1.0,
		MaxKeypoints:     1000,
		FastThreshold:    0.08,
		PatchSize:        31,
		RatioTest:        0.75,
		RansacTrials:     2000,
		InlierTolerance:  3.0,
		MinInliers:       3,
		RandomSeed:       1,
		FillValue:        0.0,
		DiffSigma:        1.0,
		ThresholdMode:    string(detect.ThresholdSigma),
		DiffThreshold:    0.1,
		SigmaK:           3.0,
		Percentile:       99.5,
		MinArea:          10,
		MaxArea:          1000,
	}
}

func NewConfigFromYaml(b []byte) (Config, error) {
	c := NewConfig()
	err := yaml.Unmarshal(b, &c)
	return c, err
}

func LoadConfig(filename string) (Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", filename, err)
	}
	return NewConfigFromYaml(b)
}

func (c Config) AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("# can't marshal config: %v", err)
	}
	return string(b)
}

func (c Config) preprocessOptions() register.PreprocessOptions {
	return register.PreprocessOptions{
		LowPercentile:    c.LowPercentile,
		HighPercentile:   c.HighPercentile,
		BlurSigma:        c.PreprocessSigma,
		UseCentralRegion: c.UseCentralRegion,
		RegionSize:       c.RegionSize,
		MinImageSize:     c.MinImageSize,
	}
}

func (c Config) estimatorOptions(kind register.Kind) register.EstimatorOptions {
	tol := c.InlierTolerance
	if kind != register.Rigid && tol == 3.0 {
		// The looser models get the looser default the source tooling
		// pairs them with, unless the user overrode it.
		tol = 5.0
	}
	return register.EstimatorOptions{
		Kind:       kind,
		Trials:     c.RansacTrials,
		InlierTol:  tol,
		MinInliers: c.MinInliers,
		Seed:       c.RandomSeed,
	}
}

func (c Config) diffOptions() detect.DiffOptions {
	return detect.DiffOptions{
		BlurSigma:  c.DiffSigma,
		Mode:       detect.ThresholdMode(c.ThresholdMode),
		Threshold:  c.DiffThreshold,
		SigmaK:     c.SigmaK,
		Percentile: c.Percentile,
	}
}

func (c Config) blobOptions() detect.BlobOptions {
	return detect.BlobOptions{
		MinArea:       c.MinArea,
		MaxArea:       c.MaxArea,
		FourConnected: c.FourConnected,
	}
}
