package location_list

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"tripplanner/internal/route"
)

// Importer receives scanned locations. trip.Model satisfies it.
type Importer interface {
	AddLocation(ctx context.Context, loc route.Location) (route.Location, error)
}

type Scanner struct {
	dir       string
	logger    *zap.Logger
	locations []route.Location
}

func New(dir string, logger *zap.Logger) *Scanner {
	return &Scanner{
		dir:       dir,
		logger:    logger,
		locations: []route.Location{},
	}
}

// Scan reads every *.json file of the directory in name order. A file holds
// either one location object or an array of them. Unreadable or malformed
// files are logged and skipped. A missing directory yields no locations.
func (s *Scanner) Scan() error {
	s.locations = []route.Location{}

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("Location directory does not exist", zap.String("dir", s.dir))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read location directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || strings.ToLower(filepath.Ext(entry.Name())) != ".json" {
			continue
		}

		path := s.getFilePath(entry.Name())
		locs, err := s.loadFile(path)
		if err != nil {
			s.logger.Warn("Failed to load location file, skipping", zap.String("path", path), zap.Error(err))
			continue
		}
		s.locations = append(s.locations, locs...)
	}

	s.logger.Info("Scanned location files", zap.String("dir", s.dir), zap.Int("locations", len(s.locations)))
	return nil
}

// Import hands every scanned location to dst. Rejected locations are logged
// and skipped; the number of imported locations is returned.
func (s *Scanner) Import(ctx context.Context, dst Importer) (int, error) {
	imported := 0
	for _, loc := range s.locations {
		if err := ctx.Err(); err != nil {
			return imported, err
		}
		if _, err := dst.AddLocation(ctx, loc); err != nil {
			s.logger.Warn("Failed to import location", zap.String("name", loc.Name), zap.Error(err))
			continue
		}
		imported++
	}
	return imported, nil
}

func (s *Scanner) GetLocations() []route.Location {
	return s.locations
}

func (s *Scanner) getFilePath(filename string) string {
	return filepath.Join(s.dir, filename)
}

func (s *Scanner) loadFile(path string) ([]route.Location, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid JSON")
	}

	switch doc := gjson.ParseBytes(data); {
	case doc.IsArray():
		var locs []route.Location
		if err := json.Unmarshal(data, &locs); err != nil {
			return nil, fmt.Errorf("failed to parse locations: %w", err)
		}
		return locs, nil
	case doc.IsObject():
		var loc route.Location
		if err := json.Unmarshal(data, &loc); err != nil {
			return nil, fmt.Errorf("failed to parse location: %w", err)
		}
		return []route.Location{loc}, nil
	default:
		return nil, fmt.Errorf("expected a location object or array, got %s", doc.Type)
	}
}
