package report

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"skydiff/pkg/detect"
	"skydiff/pkg/pipeline"
	"skydiff/pkg/register"
)

func sampleResult() *pipeline.Result {
	return &pipeline.Result{
		Summary: register.Summary{
			Kind:        register.Rigid,
			TranslateX:  6.0,
			TranslateY:  -4.0,
			RotationDeg: 0.25,
			ScaleFactor: 1.0,
			InlierCount: 40,
			InlierRatio: 0.8,
		},
		FeaturesA:  120,
		FeaturesB:  115,
		MatchStats: register.MatchStats{Count: 50},
		Spots: []detect.BrightSpot{
			{ID: 1, CentroidX: 112.4, CentroidY: 87.1, Area: 24, Peak: 0.42, Mean: 0.2},
			{ID: 2, CentroidX: 30.0, CentroidY: 150.5, Area: 11, Peak: 0.15, Mean: 0.11},
		},
	}
}

func TestWriteSpots(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, WriteSpots(&sb, "night1", sampleResult()))
	out := sb.String()

	require.Contains(t, out, "# pair: night1")
	require.Contains(t, out, "translation=(6.00,-4.00)")
	require.Contains(t, out, "# bright spots: 2")
	require.Contains(t, out, "id\tcentroid_x\tcentroid_y\tarea_px\tpeak_value\tmean_value")
	require.Contains(t, out, "1\t112.40\t87.10\t24\t0.4200\t0.2000")
	require.Contains(t, out, "2\t30.00\t150.50\t11\t0.1500\t0.1100")
}

func TestCatalogRecordRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	cat, err := OpenCatalog(path)
	require.NoError(t, err)
	defer cat.Close()

	res := sampleResult()
	id1, err := cat.RecordRun("night1", res)
	require.NoError(t, err)
	require.Greater(t, id1, int64(0))

	id2, err := cat.RecordRun("night2", res)
	require.NoError(t, err)
	require.Greater(t, id2, id1)

	n, err := cat.RunCount()
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestCatalogReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	cat, err := OpenCatalog(path)
	require.NoError(t, err)
	_, err = cat.RecordRun("n1", sampleResult())
	require.NoError(t, err)
	require.NoError(t, cat.Close())

	cat, err = OpenCatalog(path)
	require.NoError(t, err)
	defer cat.Close()

	n, err := cat.RunCount()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
