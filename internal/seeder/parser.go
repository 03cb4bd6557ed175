package seeder

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alexivanou/guide-offline/internal/model"
	"github.com/alexivanou/guide-offline/internal/repository"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// maxPackageBytes caps a single bundled package file
const maxPackageBytes = 64 << 20

// Parser reads bundled offline packages from a data directory
type Parser struct {
	dataDir  string
	validate *validator.Validate
}

// NewParser creates a new parser for dataDir
func NewParser(dataDir string) *Parser {
	return &Parser{dataDir: dataDir, validate: validator.New()}
}

// ParsePackages reads every *.json file and every *.json entry of *.zip archives
// in the data directory. When a city appears more than once the highest version wins.
func (p *Parser) ParsePackages() ([]model.CityPackage, error) {
	entries, err := os.ReadDir(p.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory %s: %w", p.dataDir, err)
	}

	var packages []model.CityPackage
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(p.dataDir, e.Name())
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json":
			pkg, err := p.parseFile(path)
			if err != nil {
				return nil, err
			}
			packages = append(packages, *pkg)
		case ".zip":
			pkgs, err := p.parseZip(path)
			if err != nil {
				return nil, err
			}
			packages = append(packages, pkgs...)
		}
	}

	return LatestByCity(packages), nil
}

func (p *Parser) parseFile(path string) (*model.CityPackage, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	pkg, err := p.ParseReader(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return pkg, nil
}

func (p *Parser) parseZip(zipPath string) ([]model.CityPackage, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	var packages []model.CityPackage
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ".json") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open file in zip: %w", err)
		}
		pkg, err := p.ParseReader(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%s!%s: %w", filepath.Base(zipPath), f.Name, err)
		}
		packages = append(packages, *pkg)
	}

	if len(packages) == 0 {
		return nil, fmt.Errorf("no json package found in %s", filepath.Base(zipPath))
	}
	return packages, nil
}

// ParseReader decodes and validates one package
func (p *Parser) ParseReader(reader io.Reader) (*model.CityPackage, error) {
	data, err := io.ReadAll(io.LimitReader(reader, maxPackageBytes))
	if err != nil {
		return nil, err
	}
	var pkg model.CityPackage
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidPackage, err)
	}
	for i := range pkg.Landmarks {
		if pkg.Landmarks[i].CityID == "" {
			pkg.Landmarks[i].CityID = pkg.City.ID
		}
	}
	if err := p.validate.Struct(pkg); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidPackage, err)
	}
	if id := pkg.DuplicateLandmark(); id != "" {
		return nil, fmt.Errorf("%w: landmark %q appears more than once", model.ErrInvalidPackage, id)
	}
	return &pkg, nil
}

// LatestByCity keeps the highest version of each city, ordered by city id
func LatestByCity(packages []model.CityPackage) []model.CityPackage {
	latest := make(map[string]model.CityPackage, len(packages))
	for _, pkg := range packages {
		if cur, ok := latest[pkg.City.ID]; !ok || pkg.Version > cur.Version {
			latest[pkg.City.ID] = pkg
		}
	}
	result := make([]model.CityPackage, 0, len(latest))
	for _, pkg := range latest {
		result = append(result, pkg)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].City.ID < result[j].City.ID })
	return result
}

// SeedResult counts what Seed stored
type SeedResult struct {
	Saved   int
	Skipped int
}

// Seed stores packages that are absent or older in the store. Landmark data
// already downloaded from the server is never replaced by an older bundle.
func Seed(ctx context.Context, repo repository.PackageRepository, packages []model.CityPackage, logger *zap.Logger) (*SeedResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	result := &SeedResult{}
	for i := range packages {
		pkg := &packages[i]
		meta, err := repo.GetMetadata(ctx, pkg.City.ID)
		if err != nil {
			return result, err
		}
		if meta != nil && meta.Version >= pkg.Version {
			result.Skipped++
			continue
		}
		if err := repo.Save(ctx, pkg, pkg.VersionTag); err != nil {
			return result, fmt.Errorf("failed to seed %s: %w", pkg.City.ID, err)
		}
		logger.Info("Seeded bundled package",
			zap.String("city_id", pkg.City.ID),
			zap.Int("version", pkg.Version),
			zap.Int("landmarks", len(pkg.Landmarks)),
		)
		result.Saved++
	}
	return result, nil
}
