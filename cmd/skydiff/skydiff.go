package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"skydiff/pkg/imageio"
	"skydiff/pkg/pipeline"
	"skydiff/pkg/render"
	"skydiff/pkg/report"
)

var (
	fConfigFile    string
	fVerbosity     int
	fMethod        string
	fRegionSize    int
	fCentralRegion bool
	fThresholdMode string
	fThreshold     float64
	fSeed          int64
	fOutputDir     string
	fCatalogPath   string
	fWorkers       int
)

func main() {
	// .env is optional; absence is not an error.
	godotenv.Load()

	root := &cobra.Command{
		Use:   "skydiff",
		Short: "register pairs of sky frames and report what changed",
	}
	root.PersistentFlags().StringVar(&fConfigFile, "config", "", "yaml config file")
	root.PersistentFlags().IntVarP(&fVerbosity, "verbosity", "v", 0, "how verbose to get")
	root.PersistentFlags().StringVar(&fMethod, "method", "", "transform to fit: rigid, similarity, homography")
	root.PersistentFlags().IntVar(&fRegionSize, "region-size", 0, "central region size in pixels")
	root.PersistentFlags().BoolVar(&fCentralRegion, "central-region", false, "analyze only the central region, for speed")
	root.PersistentFlags().StringVar(&fThresholdMode, "threshold-mode", "", "significance cutoff: fixed, sigma, percentile")
	root.PersistentFlags().Float64Var(&fThreshold, "threshold", 0, "fixed cutoff, as a fraction of the dynamic range")
	root.PersistentFlags().Int64Var(&fSeed, "seed", 0, "RANSAC random seed (fix it for reproducible runs)")
	root.PersistentFlags().StringVarP(&fOutputDir, "output", "o", "skydiff-out", "output directory")
	root.PersistentFlags().StringVar(&fCatalogPath, "catalog", "", "sqlite detection catalog (optional)")

	compare := &cobra.Command{
		Use:   "compare <frameA> <frameB>",
		Short: "register frame B onto frame A and report the bright spots",
		Args:  cobra.ExactArgs(2),
		RunE:  runCompare,
	}

	batch := &cobra.Command{
		Use:   "batch <pairs-file>",
		Short: "process many pairs, one 'name frameA frameB' line each",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}
	batch.Flags().IntVar(&fWorkers, "workers", 4, "concurrent pipeline instances")

	root.AddCommand(compare, batch)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildConfig() (pipeline.Config, error) {
	cfg := pipeline.NewConfig()
	if fConfigFile != "" {
		var err error
		if cfg, err = pipeline.LoadConfig(fConfigFile); err != nil {
			return cfg, err
		}
	}

	cfg.Verbosity = fVerbosity
	if fMethod != "" {
		cfg.Method = fMethod
	}
	if fRegionSize > 0 {
		cfg.RegionSize = fRegionSize
	}
	if fCentralRegion {
		cfg.UseCentralRegion = true
	}
	if fThresholdMode != "" {
		cfg.ThresholdMode = fThresholdMode
	}
	if fThreshold > 0 {
		cfg.DiffThreshold = fThreshold
	}
	if fSeed != 0 {
		cfg.RandomSeed = fSeed
	}
	return cfg, nil
}

func runCompare(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	if cfg.Verbosity > 1 {
		log.Printf("Final configuration:-\n\n%s\n", cfg.AsYaml())
	}

	a, err := imageio.LoadGrid(args[0])
	if err != nil {
		return err
	}
	b, err := imageio.LoadGrid(args[1])
	if err != nil {
		return err
	}

	name := pairName(args[0], args[1])
	res, err := pipeline.Run(cfg, a, b)
	if err != nil {
		return fmt.Errorf("pair %s: %w", name, err)
	}

	log.Printf("%s: %s, %d bright spots in %s\n", name, res.Summary, len(res.Spots), res.Elapsed)
	if err := writeOutputs(name, res); err != nil {
		return err
	}
	return recordInCatalog(name, res)
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	pairs, err := loadPairsFile(args[0])
	if err != nil {
		return err
	}
	log.Printf("batch: %d pairs on %d workers\n", len(pairs), fWorkers)

	results := pipeline.RunBatch(cfg, pairs, fWorkers)

	nOK := 0
	for _, pr := range results {
		if pr.Err != nil {
			continue // already logged by the pool; keep going
		}
		nOK++
		if err := writeOutputs(pr.Name, pr.Result); err != nil {
			return err
		}
		if err := recordInCatalog(pr.Name, pr.Result); err != nil {
			return err
		}
	}
	log.Printf("batch done: %d/%d pairs succeeded\n", nOK, len(results))
	return nil
}

// loadPairsFile reads "name pathA pathB" lines; '#' starts a comment.
func loadPairsFile(filename string) ([]pipeline.Pair, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pairs := []pipeline.Pair{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("bad pairs line %q (want: name frameA frameB)", line)
		}
		a, err := imageio.LoadGrid(fields[1])
		if err != nil {
			return nil, err
		}
		b, err := imageio.LoadGrid(fields[2])
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pipeline.Pair{Name: fields[0], A: a, B: b})
	}
	return pairs, scanner.Err()
}

func writeOutputs(name string, res *pipeline.Result) error {
	if err := os.MkdirAll(fOutputDir, 0755); err != nil {
		return err
	}

	out := func(suffix string) string {
		return filepath.Join(fOutputDir, fmt.Sprintf("%s_%s", name, suffix))
	}

	if err := imageio.SaveGridPNG(res.Aligned, out("aligned.png")); err != nil {
		return err
	}
	if err := imageio.SaveGridPNG(res.Diff, out("difference.png")); err != nil {
		return err
	}
	if err := render.WritePNG(render.Heatmap(res.Diff), out("difference_heat.png")); err != nil {
		return err
	}
	if err := render.WritePNG(render.MaskImage(res.Mask), out("mask.png")); err != nil {
		return err
	}
	marked := render.AnnotateSpots(render.GrayImage(res.Aligned), res.Spots)
	if err := render.WritePNG(marked, out("marked.png")); err != nil {
		return err
	}
	if fVerbosity > 0 {
		mv := render.Matches(res.RefImage.Grid, res.CmpImage.Grid,
			res.KeypointsA, res.KeypointsB, res.Matches, 100)
		if err := render.WritePNG(mv, out("matches.png")); err != nil {
			return err
		}
	}

	path, err := report.WriteReportFile(fOutputDir, name, name, res)
	if err != nil {
		return err
	}
	log.Printf("%s: report written to %s\n", name, path)
	return nil
}

func recordInCatalog(name string, res *pipeline.Result) error {
	if fCatalogPath == "" {
		return nil
	}
	cat, err := report.OpenCatalog(fCatalogPath)
	if err != nil {
		return err
	}
	defer cat.Close()

	if _, err := cat.RecordRun(name, res); err != nil {
		return err
	}
	return nil
}

func pairName(a, b string) string {
	strip := func(p string) string {
		base := filepath.Base(p)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return strip(a) + "-" + strip(b)
}
