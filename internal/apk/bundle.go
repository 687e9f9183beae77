package apk

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/droiddeck/backend/internal/shared/types"
	"github.com/klauspost/compress/zip"
)

// manifest.json inside an .xapk. Version codes appear both quoted and
// bare in the wild; split lists appear as split_apks objects or a plain
// apk_files array depending on the packer.
type bundleManifest struct {
	Name        string      `json:"name"`
	PackageName string      `json:"package_name"`
	VersionCode flexInt64   `json:"version_code"`
	VersionName string      `json:"version_name"`
	MinSDK      flexInt64   `json:"min_sdk_version"`
	TargetSDK   flexInt64   `json:"target_sdk_version"`
	Permissions []string    `json:"permissions"`
	SplitAPKs   []splitAPK  `json:"split_apks"`
	APKFiles    []string    `json:"apk_files"`
	Expansions  []expansion `json:"expansions"`
}

type splitAPK struct {
	File string `json:"file"`
	ID   string `json:"id"`
}

type expansion struct {
	File        string `json:"file"`
	InstallPath string `json:"install_path"`
}

// flexInt64 accepts both 42 and "42".
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("numeric field: %w", err)
	}
	*f = flexInt64(v)
	return nil
}

const maxManifestSize = 4 << 20

// ReadBundleManifest parses the bundle manifest out of an .xapk without
// extracting the archive.
func ReadBundleManifest(path string) (*types.BundleMetadata, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer r.Close()

	var raw []byte
	for _, f := range r.File {
		if f.Name != "manifest.json" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open bundle manifest: %w", err)
		}
		raw, err = io.ReadAll(io.LimitReader(rc, maxManifestSize))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read bundle manifest: %w", err)
		}
		break
	}
	if raw == nil {
		return nil, fmt.Errorf("bundle has no manifest.json")
	}

	var manifest bundleManifest
	if err := sonic.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("parse bundle manifest: %w", err)
	}
	if manifest.PackageName == "" {
		return nil, fmt.Errorf("bundle manifest missing package name")
	}

	bundle := &types.BundleMetadata{
		PackageMetadata: types.PackageMetadata{
			PackageName: manifest.PackageName,
			VersionCode: int64(manifest.VersionCode),
			VersionName: manifest.VersionName,
			MinSDK:      int(manifest.MinSDK),
			TargetSDK:   int(manifest.TargetSDK),
			Label:       manifest.Name,
			Permissions: manifest.Permissions,
		},
	}
	if bundle.Label == "" {
		bundle.Label = manifest.PackageName
	}
	for _, s := range manifest.SplitAPKs {
		bundle.SplitFiles = append(bundle.SplitFiles, s.File)
	}
	if len(bundle.SplitFiles) == 0 {
		bundle.SplitFiles = append(bundle.SplitFiles, manifest.APKFiles...)
	}
	for _, exp := range manifest.Expansions {
		bundle.Expansions = append(bundle.Expansions, exp.File)
	}
	return bundle, nil
}

// extractBundle unpacks the inner package files (and only those) into
// dir and returns their paths in manifest order when the manifest lists
// them, archive order otherwise.
func extractBundle(path, dir string, bundle *types.BundleMetadata) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer r.Close()

	byName := make(map[string]*zip.File, len(r.File))
	var archiveOrder []string
	for _, f := range r.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".apk") {
			byName[f.Name] = f
			archiveOrder = append(archiveOrder, f.Name)
		}
	}

	order := bundle.SplitFiles
	if len(order) == 0 {
		order = archiveOrder
	}

	var extracted []string
	for _, name := range order {
		f, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("bundle manifest names %s but the archive lacks it", name)
		}
		dest, err := extractEntry(f, dir)
		if err != nil {
			return nil, err
		}
		extracted = append(extracted, dest)
	}
	if len(extracted) == 0 {
		return nil, fmt.Errorf("bundle contains no packages")
	}
	return extracted, nil
}

func extractEntry(f *zip.File, dir string) (string, error) {
	// Flatten: entry paths inside bundles are packer-controlled input.
	base := filepath.Base(filepath.Clean(f.Name))
	if base == "." || base == ".." || base == "/" {
		return "", fmt.Errorf("bundle entry has unusable name %q", f.Name)
	}
	dest := filepath.Join(dir, base)

	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open bundle entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return "", fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return dest, nil
}
