package integration

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/droiddeck/backend/internal/catalog"
	"github.com/droiddeck/backend/internal/infrastructure/logging"
	"github.com/droiddeck/backend/internal/shared/types"
	"go.uber.org/zap"
)

// CatalogLister is the catalog surface discovery needs.
type CatalogLister interface {
	GetAllApplications(ctx context.Context) ([]catalog.Record, error)
}

// MetadataSource extracts metadata from a candidate package file.
type MetadataSource interface {
	Extract(ctx context.Context, path string) (*types.PackageMetadata, error)
}

// Discovery maps a package name onto a stored package file. Catalog
// entries with a stored package id match without touching the file;
// unidentified entries are probed with the metadata extractor. Records
// are walked in a fixed order, so repeated lookups of an ambiguous name
// resolve to the same file.
type Discovery struct {
	catalog  CatalogLister
	metadata MetadataSource
	log      *logging.Logger
}

// NewDiscovery wires a discovery helper.
func NewDiscovery(catalog CatalogLister, metadata MetadataSource, log *logging.Logger) *Discovery {
	if log == nil {
		log = logging.NewNop()
	}
	return &Discovery{catalog: catalog, metadata: metadata, log: log.Named("discovery")}
}

// FindPackageFile returns the stored file for a package name.
func (d *Discovery) FindPackageFile(ctx context.Context, packageName string) (string, error) {
	records, err := d.catalog.GetAllApplications(ctx)
	if err != nil {
		return "", fmt.Errorf("discovery: %w", err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	// Pass 1: trust stored identities.
	for _, rec := range records {
		if rec.PackageID != nil && *rec.PackageID == packageName && fileExists(rec.FilePath) {
			return rec.FilePath, nil
		}
	}

	// Pass 2: probe unidentified files.
	for _, rec := range records {
		if rec.PackageID != nil || rec.FilePath == "" || !fileExists(rec.FilePath) {
			continue
		}
		meta, err := d.metadata.Extract(ctx, rec.FilePath)
		if err != nil {
			d.log.Debug("candidate unreadable",
				zap.String("path", rec.FilePath), zap.Error(err))
			continue
		}
		if meta.PackageName == packageName {
			return rec.FilePath, nil
		}
	}

	return "", fmt.Errorf("no stored package file for %s", packageName)
}

// ScanDir lists package files under a directory tree, recursively.
func (d *Discovery) ScanDir(dir string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(dir + "/**/*.{apk,xapk}")
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(matches)
	return matches, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
