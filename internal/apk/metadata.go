package apk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/droiddeck/backend/internal/cache"
	"github.com/droiddeck/backend/internal/infrastructure/logging"
	"github.com/droiddeck/backend/internal/shared/types"
	"github.com/droiddeck/backend/internal/shared/utils"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
)

// maxHeuristicVersion clamps version codes guessed from file names;
// anything larger is a timestamp or junk, not a version.
const maxHeuristicVersion = 1 << 31

type cachedMeta struct {
	meta    types.PackageMetadata
	size    int64
	modTime time.Time
}

// Extractor produces package metadata through ordered tiers: the asset
// tool, then archive structure, then file-name heuristics. Results are
// cached per absolute path and invalidated when the file's size or
// mtime changes.
type Extractor struct {
	session Session
	hasher  *utils.Hasher
	cache   *cache.Map[string, cachedMeta]
	log     *logging.Logger
}

// NewExtractor creates an extractor with an empty cache.
func NewExtractor(session Session, log *logging.Logger) *Extractor {
	if log == nil {
		log = logging.NewNop()
	}
	return &Extractor{
		session: session,
		hasher:  utils.DefaultHasher(),
		cache:   cache.NewMap[string, cachedMeta](),
		log:     log.Named("apk.metadata"),
	}
}

// Extract returns metadata for a package file. Every returned record
// passes Valid(); when no tier can produce one, an error is returned
// instead of a partial record.
func (e *Extractor) Extract(ctx context.Context, path string) (*types.PackageMetadata, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("package file: %w", err)
	}

	if entry, ok := e.cache.Get(abs); ok && entry.size == info.Size() && entry.modTime.Equal(info.ModTime()) {
		meta := entry.meta
		return &meta, nil
	}

	meta := e.extract(ctx, abs)
	if !meta.Valid() {
		return nil, fmt.Errorf("no tier produced usable metadata for %s", filepath.Base(abs))
	}

	meta.FileSize = info.Size()
	meta.ModifiedAt = info.ModTime()
	if sum, err := e.hasher.HashFile(abs); err == nil {
		meta.SHA256 = sum
	}

	e.cache.Put(abs, cachedMeta{meta: *meta, size: info.Size(), modTime: info.ModTime()})
	return meta, nil
}

// Invalidate drops the cached record for a path.
func (e *Extractor) Invalidate(path string) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	e.cache.Delete(path)
}

func (e *Extractor) extract(ctx context.Context, abs string) *types.PackageMetadata {
	if DetectFormat(abs) == FormatXAPK {
		if bundle, err := ReadBundleManifest(abs); err == nil {
			meta := bundle.ToPackage()
			return &meta
		}
		return e.fromFilename(abs)
	}

	if meta := e.fromTool(ctx, abs); meta.Valid() {
		return meta
	}
	if meta := e.fromArchive(abs); meta.Valid() {
		return meta
	}
	return e.fromFilename(abs)
}

func (e *Extractor) fromTool(ctx context.Context, abs string) *types.PackageMetadata {
	res, err := e.session.Aapt(ctx, aaptTimeout, "dump", "badging", abs)
	if err != nil || !res.Success() {
		return nil
	}
	return parseBadging(res.Stdout)
}

// fromArchive confirms the file is a real package and salvages what the
// file name offers; the binary manifest inside is not parseable without
// the asset tool.
func (e *Extractor) fromArchive(abs string) *types.PackageMetadata {
	r, err := zip.OpenReader(abs)
	if err != nil {
		return nil
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name == "AndroidManifest.xml" {
			e.log.Debug("metadata from archive structure", zap.String("path", abs))
			return e.fromFilename(abs)
		}
	}
	return nil
}

var filenameVersionRe = regexp.MustCompile(`[_-]v?(\d+(?:\.\d+)*)$`)

// fromFilename guesses metadata from names like
// com.example.app_42.apk or com.example.app-1.2.3.apk: a trailing
// integer becomes the version code, a dotted tail the version name.
func (e *Extractor) fromFilename(abs string) *types.PackageMetadata {
	base := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	meta := &types.PackageMetadata{Label: base}

	if m := filenameVersionRe.FindStringSubmatch(base); m != nil {
		if strings.Contains(m[1], ".") {
			meta.VersionName = m[1]
		} else if code, err := strconv.ParseInt(m[1], 10, 64); err == nil && code < maxHeuristicVersion {
			meta.VersionCode = code
		}
		base = base[:len(base)-len(m[0])]
	}

	// A plausible package id has at least two dot-separated segments.
	if strings.Count(base, ".") >= 1 && !strings.ContainsAny(base, " ()") {
		meta.PackageName = base
		meta.Label = base
	}
	return meta
}
