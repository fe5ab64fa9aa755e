package report

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"skydiff/pkg/pipeline"
)

// A Catalog is the persistent detection store: one row per run, one
// per bright spot, so repeat visitors to the same field can be chased
// across nights. Writes are serialized by the database itself; the
// pipeline never touches it.
type Catalog struct {
	db *sql.DB
}

const catalogSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	name         TEXT NOT NULL,
	run_at       TIMESTAMP NOT NULL,
	method       TEXT NOT NULL,
	translate_x  REAL, translate_y REAL,
	rotation_deg REAL, scale REAL,
	inliers      INTEGER, inlier_ratio REAL,
	features_a   INTEGER, features_b INTEGER, matches INTEGER,
	spot_count   INTEGER
);
CREATE TABLE IF NOT EXISTS detections (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     INTEGER NOT NULL REFERENCES runs(id),
	spot_id    INTEGER NOT NULL,
	centroid_x REAL, centroid_y REAL,
	area_px    INTEGER,
	peak_value REAL, mean_value REAL
);
CREATE INDEX IF NOT EXISTS detections_by_run ON detections(run_id);
`

func OpenCatalog(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	if _, err := db.Exec(catalogSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error { return c.db.Close() }

// RecordRun inserts the run summary and its detections in one
// transaction and returns the run id.
func (c *Catalog) RecordRun(name string, res *pipeline.Result) (int64, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	s := res.Summary
	ins, err := tx.Exec(`INSERT INTO runs
		(name, run_at, method, translate_x, translate_y, rotation_deg, scale,
		 inliers, inlier_ratio, features_a, features_b, matches, spot_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		name, time.Now().UTC(), string(s.Kind), s.TranslateX, s.TranslateY,
		s.RotationDeg, s.ScaleFactor, s.InlierCount, s.InlierRatio,
		res.FeaturesA, res.FeaturesB, res.MatchStats.Count, len(res.Spots))
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := ins.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, spot := range res.Spots {
		if _, err := tx.Exec(`INSERT INTO detections
			(run_id, spot_id, centroid_x, centroid_y, area_px, peak_value, mean_value)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, spot.ID, spot.CentroidX, spot.CentroidY, spot.Area, spot.Peak, spot.Mean); err != nil {
			return 0, fmt.Errorf("insert detection %d: %w", spot.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

// RunCount is mostly for tests and the batch summary line.
func (c *Catalog) RunCount() (int, error) {
	var n int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n)
	return n, err
}
