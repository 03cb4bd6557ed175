package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alexivanou/guide-offline/internal/model"
	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type packageRepository struct {
	db     *sqlx.DB
	quota  *quotaGuard
	logger *zap.Logger
}

type packageRow struct {
	CityID        string         `db:"city_id"`
	Name          string         `db:"name"`
	Country       string         `db:"country"`
	Lat           float64        `db:"lat"`
	Lng           float64        `db:"lng"`
	Zoom          int            `db:"zoom"`
	CruisePort    sql.NullString `db:"cruise_port"`
	VersionTag    string         `db:"version_tag"`
	Version       int            `db:"package_version"`
	LandmarkCount int            `db:"landmark_count"`
	SizeBytes     int64          `db:"size_bytes"`
	DownloadedAt  time.Time      `db:"downloaded_at"`
}

type landmarkRow struct {
	CityID   string  `db:"city_id"`
	ID       string  `db:"id"`
	Position int     `db:"position"`
	Name     string  `db:"name"`
	Category string  `db:"category"`
	Lat      float64 `db:"lat"`
	Lng      float64 `db:"lng"`
	Data     string  `db:"data"`
}

func (r packageRow) city() (*model.CityInfo, error) {
	city := &model.CityInfo{
		ID:      r.CityID,
		Name:    r.Name,
		Country: r.Country,
		Lat:     r.Lat,
		Lng:     r.Lng,
		Zoom:    r.Zoom,
	}
	if r.CruisePort.Valid && r.CruisePort.String != "" {
		var port model.CruisePort
		if err := json.Unmarshal([]byte(r.CruisePort.String), &port); err != nil {
			return nil, fmt.Errorf("failed to decode cruise port for %s: %w", r.CityID, err)
		}
		city.CruisePort = &port
	}
	return city, nil
}

func (r packageRow) metadata() model.PackageMetadata {
	return model.PackageMetadata{
		CityID:        r.CityID,
		Name:          r.Name,
		Country:       r.Country,
		LandmarkCount: r.LandmarkCount,
		Version:       r.Version,
		VersionTag:    r.VersionTag,
		SizeBytes:     r.SizeBytes,
		DownloadedAt:  r.DownloadedAt,
	}
}

const selectPackageColumns = `SELECT city_id, name, country, lat, lng, zoom, cruise_port, version_tag,
	package_version, landmark_count, size_bytes, downloaded_at FROM city_packages`

func (r *packageRepository) getRow(ctx context.Context, q sqlx.QueryerContext, cityID string) (*packageRow, error) {
	var row packageRow
	err := sqlx.GetContext(ctx, q, &row, r.db.Rebind(selectPackageColumns+" WHERE city_id = ?"), cityID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *packageRepository) GetMetadata(ctx context.Context, cityID string) (*model.PackageMetadata, error) {
	row, err := r.getRow(ctx, r.db, cityID)
	if err != nil || row == nil {
		return nil, err
	}
	meta := row.metadata()
	return &meta, nil
}

func (r *packageRepository) ListMetadata(ctx context.Context) ([]model.PackageMetadata, error) {
	var rows []packageRow
	if err := r.db.SelectContext(ctx, &rows, selectPackageColumns+" ORDER BY name"); err != nil {
		return nil, err
	}
	result := make([]model.PackageMetadata, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.metadata())
	}
	return result, nil
}

// Save replaces the stored package for pkg.City.ID in a single transaction.
// Either the new package becomes visible in full or the previous one stays untouched.
func (r *packageRepository) Save(ctx context.Context, pkg *model.CityPackage, versionTag string) error {
	if pkg == nil || pkg.City.ID == "" {
		return fmt.Errorf("%w: missing city id", model.ErrInvalidPackage)
	}
	cityID := pkg.City.ID

	landmarks := make([]landmarkRow, 0, len(pkg.Landmarks))
	var size int64
	for i, l := range pkg.Landmarks {
		l.CityID = cityID
		data, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("failed to encode landmark %s: %w", l.ID, err)
		}
		size += int64(len(data))
		landmarks = append(landmarks, landmarkRow{
			CityID:   cityID,
			ID:       l.ID,
			Position: i,
			Name:     l.Name,
			Category: l.Category,
			Lat:      l.Lat,
			Lng:      l.Lng,
			Data:     string(data),
		})
	}

	row := packageRow{
		CityID:        cityID,
		Name:          pkg.City.Name,
		Country:       pkg.City.Country,
		Lat:           pkg.City.Lat,
		Lng:           pkg.City.Lng,
		Zoom:          pkg.City.Zoom,
		VersionTag:    versionTag,
		Version:       pkg.Version,
		LandmarkCount: len(landmarks),
		DownloadedAt:  pkg.DownloadedAt.UTC(),
	}
	if row.DownloadedAt.IsZero() {
		row.DownloadedAt = time.Now().UTC()
	}
	if row.Zoom == 0 {
		row.Zoom = 14
	}
	if pkg.City.CruisePort != nil {
		data, err := json.Marshal(pkg.City.CruisePort)
		if err != nil {
			return fmt.Errorf("failed to encode cruise port: %w", err)
		}
		row.CruisePort = sql.NullString{String: string(data), Valid: true}
	}
	cityData, err := json.Marshal(pkg.City)
	if err != nil {
		return fmt.Errorf("failed to encode city: %w", err)
	}
	row.SizeBytes = size + int64(len(cityData))

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return translateStorageError(err)
	}
	defer tx.Rollback()

	var released int64
	if err := tx.GetContext(ctx, &released, tx.Rebind("SELECT COALESCE(SUM(size_bytes), 0) FROM city_packages WHERE city_id = ?"), cityID); err != nil {
		return err
	}
	if err := r.quota.check(ctx, tx, released, row.SizeBytes); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM landmarks WHERE city_id = ?"), cityID); err != nil {
		return translateStorageError(err)
	}

	upsert := `
		INSERT INTO city_packages (city_id, name, country, lat, lng, zoom, cruise_port, version_tag,
			package_version, landmark_count, size_bytes, downloaded_at)
		VALUES (:city_id, :name, :country, :lat, :lng, :zoom, :cruise_port, :version_tag,
			:package_version, :landmark_count, :size_bytes, :downloaded_at)
		ON CONFLICT (city_id) DO UPDATE SET
			name = excluded.name,
			country = excluded.country,
			lat = excluded.lat,
			lng = excluded.lng,
			zoom = excluded.zoom,
			cruise_port = excluded.cruise_port,
			version_tag = excluded.version_tag,
			package_version = excluded.package_version,
			landmark_count = excluded.landmark_count,
			size_bytes = excluded.size_bytes,
			downloaded_at = excluded.downloaded_at`
	if _, err := tx.NamedExecContext(ctx, upsert, row); err != nil {
		return translateStorageError(err)
	}

	// 100 rows * 8 params stays well within the sqlite variable limit
	chunkSize := 100
	for i := 0; i < len(landmarks); i += chunkSize {
		end := i + chunkSize
		if end > len(landmarks) {
			end = len(landmarks)
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO landmarks (city_id, id, position, name, category, lat, lng, data)
			VALUES (:city_id, :id, :position, :name, :category, :lat, :lng, :data)`,
			landmarks[i:end])
		if err != nil {
			return translateStorageError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return translateStorageError(err)
	}

	r.logger.Info("Saved offline package",
		zap.String("city_id", cityID),
		zap.Int("landmarks", len(landmarks)),
		zap.String("version_tag", versionTag),
		zap.Int64("size_bytes", row.SizeBytes),
	)
	return nil
}

func (r *packageRepository) GetCity(ctx context.Context, cityID string) (*model.CityInfo, error) {
	row, err := r.getRow(ctx, r.db, cityID)
	if err != nil || row == nil {
		return nil, err
	}
	return row.city()
}

func (r *packageRepository) GetAllCities(ctx context.Context) ([]model.CityInfo, error) {
	var rows []packageRow
	if err := r.db.SelectContext(ctx, &rows, selectPackageColumns+" ORDER BY name"); err != nil {
		return nil, err
	}
	cities := make([]model.CityInfo, 0, len(rows))
	for _, row := range rows {
		city, err := row.city()
		if err != nil {
			return nil, err
		}
		cities = append(cities, *city)
	}
	return cities, nil
}

// GetPackage reads the city row and its landmarks in one transaction so a
// concurrent Save can never produce a mixed view.
func (r *packageRepository) GetPackage(ctx context.Context, cityID string) (*model.CityPackage, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row, err := r.getRow(ctx, tx, cityID)
	if err != nil || row == nil {
		return nil, err
	}
	city, err := row.city()
	if err != nil {
		return nil, err
	}
	landmarks, err := r.selectLandmarks(ctx, tx, "SELECT data FROM landmarks WHERE city_id = ? ORDER BY position", cityID)
	if err != nil {
		return nil, err
	}
	return &model.CityPackage{
		City:         *city,
		Landmarks:    landmarks,
		Version:      row.Version,
		VersionTag:   row.VersionTag,
		DownloadedAt: row.DownloadedAt,
	}, nil
}

func (r *packageRepository) selectLandmarks(ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) ([]model.Landmark, error) {
	var data []string
	if err := sqlx.SelectContext(ctx, q, &data, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	landmarks := make([]model.Landmark, 0, len(data))
	for _, d := range data {
		var l model.Landmark
		if err := json.Unmarshal([]byte(d), &l); err != nil {
			return nil, fmt.Errorf("failed to decode landmark: %w", err)
		}
		landmarks = append(landmarks, l)
	}
	return landmarks, nil
}

func (r *packageRepository) GetLandmarks(ctx context.Context, cityID string) ([]model.Landmark, error) {
	if cityID == "" {
		return r.selectLandmarks(ctx, r.db, "SELECT data FROM landmarks ORDER BY city_id, position")
	}
	return r.selectLandmarks(ctx, r.db, "SELECT data FROM landmarks WHERE city_id = ? ORDER BY position", cityID)
}

func (r *packageRepository) GetLandmark(ctx context.Context, id string) (*model.Landmark, error) {
	landmarks, err := r.selectLandmarks(ctx, r.db, "SELECT data FROM landmarks WHERE id = ? ORDER BY city_id LIMIT 1", id)
	if err != nil {
		return nil, err
	}
	if len(landmarks) == 0 {
		return nil, nil
	}
	return &landmarks[0], nil
}

func (r *packageRepository) IsDownloaded(ctx context.Context, cityID string) (bool, error) {
	meta, err := r.GetMetadata(ctx, cityID)
	if err != nil {
		return false, err
	}
	return meta != nil, nil
}

func (r *packageRepository) Delete(ctx context.Context, cityID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM landmarks WHERE city_id = ?"), cityID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM city_packages WHERE city_id = ?"), cityID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	r.logger.Info("Deleted offline package", zap.String("city_id", cityID))
	return nil
}

func (r *packageRepository) SizeSummary(ctx context.Context) (*model.SizeSummary, error) {
	q := `SELECT
		(SELECT COUNT(*) FROM city_packages) AS packages,
		(SELECT COUNT(*) FROM landmarks) AS landmarks,
		(SELECT COALESCE(SUM(size_bytes), 0) FROM city_packages) AS estimated_bytes`
	var summary model.SizeSummary
	if err := r.db.GetContext(ctx, &summary, q); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (r *packageRepository) ClearAll(ctx context.Context) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM landmarks"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM city_packages"); err != nil {
		return err
	}
	return tx.Commit()
}
