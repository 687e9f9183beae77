package apk

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/droiddeck/backend/internal/infrastructure/logging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
)

const aaptTimeout = 20 * time.Second

// Validator decides whether a file is an installable package. An invalid
// file is a normal answer, not an error.
type Validator struct {
	session Session
	log     *logging.Logger
}

// NewValidator creates a validator. session's asset tool is preferred;
// archive inspection covers hosts without it.
func NewValidator(session Session, log *logging.Logger) *Validator {
	if log == nil {
		log = logging.NewNop()
	}
	return &Validator{session: session, log: log.Named("apk.validate")}
}

// Validate reports whether path is an installable package and, when it
// is not, a short reason.
func (v *Validator) Validate(ctx context.Context, path string) (bool, string) {
	info, err := os.Stat(path)
	if err != nil {
		return false, "file not found"
	}
	if info.IsDir() || info.Size() == 0 {
		return false, "not a regular non-empty file"
	}

	format := DetectFormat(path)
	if format == FormatUnknown {
		return false, "unsupported extension"
	}

	// Both containers are zip files; reject impostors before spawning
	// any tool.
	if !isZipFamily(path) {
		return false, "not an archive"
	}

	switch format {
	case FormatXAPK:
		return v.validateBundle(path)
	default:
		return v.validateAPK(ctx, path)
	}
}

// validateAPK prefers the asset tool's verdict and falls back to archive
// structure when the tool is absent.
func (v *Validator) validateAPK(ctx context.Context, path string) (bool, string) {
	res, err := v.session.Aapt(ctx, aaptTimeout, "dump", "badging", path)
	if err == nil {
		if res.Success() && hasPackageDeclaration(res.Stdout) {
			return true, ""
		}
		if res.Success() {
			return false, "no package declaration"
		}
		if !res.TimedOut {
			return false, "asset tool rejected package"
		}
		// Tool hung; fall through to archive inspection.
	}

	v.log.Debug("asset tool unavailable, inspecting archive", zap.String("path", path))
	return v.validateArchive(path)
}

// validateArchive checks the structural minimum of an installable
// package: a binary manifest and at least one dex payload.
func (v *Validator) validateArchive(path string) (bool, string) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return false, "unreadable archive"
	}
	defer r.Close()

	var manifest, dex bool
	for _, f := range r.File {
		switch {
		case f.Name == "AndroidManifest.xml":
			manifest = true
		case strings.HasSuffix(f.Name, ".dex"):
			dex = true
		}
	}
	if !manifest {
		return false, "missing binary manifest"
	}
	if !dex {
		return false, "missing code payload"
	}
	return true, ""
}

// validateBundle checks an XAPK container: a bundle manifest plus at
// least one inner package.
func (v *Validator) validateBundle(path string) (bool, string) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return false, "unreadable archive"
	}
	defer r.Close()

	var manifest, inner bool
	for _, f := range r.File {
		switch {
		case f.Name == "manifest.json":
			manifest = true
		case strings.HasSuffix(strings.ToLower(f.Name), ".apk"):
			inner = true
		}
	}
	if !manifest {
		return false, "missing bundle manifest"
	}
	if !inner {
		return false, "bundle contains no packages"
	}
	return true, ""
}

// isZipFamily sniffs the file content; apk containers descend from zip
// in the detection hierarchy.
func isZipFamily(path string) bool {
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	for ; m != nil; m = m.Parent() {
		if m.Is("application/zip") || m.Is("application/jar") {
			return true
		}
	}
	return false
}
