package bundle

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/simfolio-lab/simfolio/internal/logger"
	"github.com/simfolio-lab/simfolio/internal/types"
	"github.com/simfolio-lab/simfolio/internal/version"
	"github.com/simfolio-lab/simfolio/pkg/errors"
)

// VersionLatest resolves to the highest saved version of a bundle.
const VersionLatest = "latest"

// Store persists bundles in DuckDB: one metadata row and one bar table
// shared by all bundle versions. Saved versions are immutable; the only
// permitted mutation is the append-only live refresh, which keeps
// per-symbol timestamps monotonic so concurrent readers never observe a
// torn window.
type Store struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewStore opens a DuckDB-backed store at path (":memory:" for tests).
func NewStore(path string, log *logger.Logger) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle database: %w", err)
	}

	return &Store{
		db:     db,
		logger: log,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// Initialize creates the bundle tables.
func (s *Store) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS bundles (
			name TEXT,
			version TEXT,
			native_frequency TEXT,
			calendar TEXT,
			start_time TIMESTAMP,
			end_time TIMESTAMP,
			symbols TEXT,
			created_at TIMESTAMP,
			writer_version TEXT,
			PRIMARY KEY (name, version)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create bundles table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			bundle_name TEXT,
			bundle_version TEXT,
			time TIMESTAMP,
			symbol TEXT,
			open DOUBLE,
			high DOUBLE,
			low DOUBLE,
			close DOUBLE,
			volume DOUBLE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create bars table: %w", err)
	}

	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Versions lists the saved versions of a bundle in ascending order.
func (s *Store) Versions(name string) ([]*semver.Version, error) {
	rows, err := s.sq.
		Select("version").
		From("bundles").
		Where(squirrel.Eq{"name": name}).
		RunWith(s.db).
		Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query bundle versions: %w", err)
	}
	defer rows.Close()

	var versions []*semver.Version

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}

		version, err := semver.NewVersion(raw)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidVersion, err, "stored version %q is not semver", raw)
		}

		versions = append(versions, version)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}

	sort.Sort(semver.Collection(versions))

	return versions, nil
}

// Save writes a new immutable bundle version and returns it. The first
// version of a bundle is 1.0.0; subsequent ingestions bump the minor
// number. Bars must have monotonic, unique timestamps per symbol.
func (s *Store) Save(name string, bars []types.Bar, frequency types.Frequency, calendarName string) (*semver.Version, error) {
	if len(bars) == 0 {
		return nil, errors.Newf(errors.ErrCodeBundleWriteFailed, "refusing to save empty bundle %q", name)
	}

	if !frequency.IsValid() {
		return nil, errors.Newf(errors.ErrCodeInvalidFrequency, "invalid native frequency: %s", frequency)
	}

	if err := validateMonotonic(bars); err != nil {
		return nil, err
	}

	existing, err := s.Versions(name)
	if err != nil {
		return nil, err
	}

	version := semver.MustParse("1.0.0")
	if len(existing) > 0 {
		next := existing[len(existing)-1].IncMinor()
		version = &next
	}

	meta := buildMetadata(name, version, bars, frequency, calendarName)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	insertMeta := s.sq.
		Insert("bundles").
		Columns("name", "version", "native_frequency", "calendar", "start_time", "end_time", "symbols", "created_at", "writer_version").
		Values(
			meta.Name, meta.Version.String(), string(meta.NativeFrequency), meta.Calendar,
			meta.Start, meta.End, strings.Join(meta.Symbols, ","), meta.CreatedAt, meta.WriterVersion,
		).
		RunWith(tx)

	if _, err := insertMeta.Exec(); err != nil {
		tx.Rollback()

		return nil, errors.Wrap(errors.ErrCodeBundleWriteFailed, "failed to insert bundle metadata", err)
	}

	if err := insertBars(tx, s.sq, name, version.String(), bars); err != nil {
		tx.Rollback()

		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit bundle save: %w", err)
	}

	s.logger.Info("Bundle saved",
		zap.String("name", name),
		zap.String("version", version.String()),
		zap.Int("bars", len(bars)),
		zap.Strings("symbols", meta.Symbols),
	)

	return version, nil
}

// Load opens a read handle for (name, version). Version may be
// VersionLatest. Loading the same (name, version) twice always yields the
// same bar sequences.
func (s *Store) Load(name string, requested string) (*Bundle, error) {
	resolved := requested

	if requested == VersionLatest || requested == "" {
		versions, err := s.Versions(name)
		if err != nil {
			return nil, err
		}

		if len(versions) == 0 {
			return nil, errors.Newf(errors.ErrCodeBundleNotFound, "bundle %q has no saved versions", name)
		}

		resolved = versions[len(versions)-1].String()
	}

	row := s.sq.
		Select("name", "version", "native_frequency", "calendar", "start_time", "end_time", "symbols", "created_at", "writer_version").
		From("bundles").
		Where(squirrel.Eq{"name": name, "version": resolved}).
		RunWith(s.db).
		QueryRow()

	var (
		meta       Metadata
		rawVersion string
		rawFreq    string
		rawSymbols string
	)

	err := row.Scan(&meta.Name, &rawVersion, &rawFreq, &meta.Calendar, &meta.Start, &meta.End, &rawSymbols, &meta.CreatedAt, &meta.WriterVersion)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.ErrCodeBundleNotFound, "bundle %q version %q not found", name, resolved)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load bundle metadata: %w", err)
	}

	meta.Version, err = semver.NewVersion(rawVersion)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidVersion, err, "stored version %q is not semver", rawVersion)
	}

	meta.NativeFrequency = types.Frequency(rawFreq)
	meta.Symbols = strings.Split(rawSymbols, ",")

	if err := version.CheckCompatibility(meta.WriterVersion); err != nil {
		return nil, err
	}

	return &Bundle{store: s, meta: meta}, nil
}

// AppendBars appends live-refresh bars to an existing bundle version. The
// append is the only write that touches a saved version: timestamps must
// stay monotonic per symbol so a resampling read that snapshotted the
// extent before the append never sees a torn window.
func (s *Store) AppendBars(name string, version *semver.Version, bars []types.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	if err := validateMonotonic(bars); err != nil {
		return err
	}

	handle, err := s.Load(name, version.String())
	if err != nil {
		return err
	}

	extent, err := handle.extent()
	if err != nil {
		return err
	}

	for _, bar := range bars {
		if !bar.Time.After(extent) {
			return errors.Newf(errors.ErrCodeBundleWriteFailed,
				"append would break timestamp monotonicity: bar at %s is not after extent %s", bar.Time, extent)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := insertBars(tx, s.sq, name, version.String(), bars); err != nil {
		tx.Rollback()

		return err
	}

	newEnd := bars[len(bars)-1].Time

	update := s.sq.
		Update("bundles").
		Set("end_time", newEnd).
		Where(squirrel.Eq{"name": name, "version": version.String()}).
		RunWith(tx)

	if _, err := update.Exec(); err != nil {
		tx.Rollback()

		return errors.Wrap(errors.ErrCodeBundleWriteFailed, "failed to extend bundle range", err)
	}

	return tx.Commit()
}

// ExportParquet writes a bundle version's bars to a parquet file.
func (s *Store) ExportParquet(name string, version string, path string) error {
	query := fmt.Sprintf(
		`COPY (SELECT time, symbol, open, high, low, close, volume FROM bars WHERE bundle_name = '%s' AND bundle_version = '%s' ORDER BY time, symbol) TO '%s' (FORMAT PARQUET)`,
		name, version, path,
	)

	if _, err := s.db.Exec(query); err != nil {
		return errors.Wrap(errors.ErrCodeBundleWriteFailed, "failed to export bundle to parquet", err)
	}

	s.logger.Info("Bundle exported to parquet",
		zap.String("name", name),
		zap.String("version", version),
		zap.String("path", path),
	)

	return nil
}

func insertBars(tx *sql.Tx, sq squirrel.StatementBuilderType, name string, version string, bars []types.Bar) error {
	const batchSize = 1000

	for start := 0; start < len(bars); start += batchSize {
		end := start + batchSize
		if end > len(bars) {
			end = len(bars)
		}

		insert := sq.
			Insert("bars").
			Columns("bundle_name", "bundle_version", "time", "symbol", "open", "high", "low", "close", "volume")

		for _, bar := range bars[start:end] {
			insert = insert.Values(name, version, bar.Time, bar.Symbol, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
		}

		if _, err := insert.RunWith(tx).Exec(); err != nil {
			return errors.Wrap(errors.ErrCodeBundleWriteFailed, "failed to insert bars", err)
		}
	}

	return nil
}

func validateMonotonic(bars []types.Bar) error {
	lastSeen := make(map[string]time.Time)

	for _, bar := range bars {
		if previous, ok := lastSeen[bar.Symbol]; ok && !bar.Time.After(previous) {
			return errors.Newf(errors.ErrCodeBundleWriteFailed,
				"bars for %s are not monotonic: %s follows %s", bar.Symbol, bar.Time, previous)
		}

		lastSeen[bar.Symbol] = bar.Time
	}

	return nil
}

func buildMetadata(name string, bundleVersion *semver.Version, bars []types.Bar, frequency types.Frequency, calendarName string) Metadata {
	symbolSet := make(map[string]struct{})
	start := bars[0].Time
	end := bars[0].Time

	for _, bar := range bars {
		symbolSet[bar.Symbol] = struct{}{}

		if bar.Time.Before(start) {
			start = bar.Time
		}

		if bar.Time.After(end) {
			end = bar.Time
		}
	}

	symbols := make([]string, 0, len(symbolSet))
	for symbol := range symbolSet {
		symbols = append(symbols, symbol)
	}

	sort.Strings(symbols)

	return Metadata{
		Name:            name,
		Version:         bundleVersion,
		NativeFrequency: frequency,
		Calendar:        calendarName,
		Start:           start,
		End:             end,
		Symbols:         symbols,
		CreatedAt:       time.Now().UTC(),
		WriterVersion:   version.Version,
	}
}
