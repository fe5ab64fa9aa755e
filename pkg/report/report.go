// Package report is the "write this table" collaborator: the
// delimited text report per pair, and a sqlite catalog accumulating
// detections across runs. It serializes nothing back into the core.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"skydiff/pkg/pipeline"
)

// WriteSpots writes the bright-spot table plus the transform summary
// in a delimited layout a spreadsheet or awk can eat directly.
func WriteSpots(w io.Writer, name string, res *pipeline.Result) error {
	s := res.Summary
	fmt.Fprintf(w, "# pair: %s\n", name)
	fmt.Fprintf(w, "# transform: %s translation=(%.2f,%.2f) rotation_deg=%.3f scale=%.4f inliers=%d inlier_ratio=%.2f\n",
		s.Kind, s.TranslateX, s.TranslateY, s.RotationDeg, s.ScaleFactor, s.InlierCount, s.InlierRatio)
	fmt.Fprintf(w, "# features: A=%d B=%d matches=%d\n", res.FeaturesA, res.FeaturesB, res.MatchStats.Count)
	fmt.Fprintf(w, "# bright spots: %d\n", len(res.Spots))
	fmt.Fprintf(w, "id\tcentroid_x\tcentroid_y\tarea_px\tpeak_value\tmean_value\n")

	for _, spot := range res.Spots {
		if _, err := fmt.Fprintf(w, "%d\t%.2f\t%.2f\t%d\t%.4f\t%.4f\n",
			spot.ID, spot.CentroidX, spot.CentroidY, spot.Area, spot.Peak, spot.Mean); err != nil {
			return err
		}
	}
	return nil
}

// WriteReportFile drops the report into outputDir with a timestamped
// name, mirroring how the rest of the tooling names its artifacts.
// Returns the path it wrote.
func WriteReportFile(outputDir, prefix, name string, res *pipeline.Result) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", outputDir, err)
	}
	stamp := time.Now().Format("20060102_150405")
	path := filepath.Join(outputDir, fmt.Sprintf("%s_bright_spots_%s.txt", prefix, stamp))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("open+w %s: %w", path, err)
	}
	defer f.Close()

	if err := WriteSpots(f, name, res); err != nil {
		return "", err
	}
	return path, nil
}
