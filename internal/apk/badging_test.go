package apk

import "testing"

func TestParseBadging(t *testing.T) {
	meta := parseBadging(sampleBadging)
	if meta == nil {
		t.Fatal("expected metadata")
	}
	if meta.PackageName != "com.example.app" {
		t.Errorf("package = %q", meta.PackageName)
	}
	if meta.VersionCode != 42 {
		t.Errorf("versionCode = %d", meta.VersionCode)
	}
	if meta.VersionName != "1.2.3" {
		t.Errorf("versionName = %q", meta.VersionName)
	}
	if meta.MinSDK != 26 || meta.TargetSDK != 33 {
		t.Errorf("sdk = %d/%d, want 26/33", meta.MinSDK, meta.TargetSDK)
	}
	if meta.Label != "Example App" {
		t.Errorf("label = %q", meta.Label)
	}
	if len(meta.Permissions) != 2 || meta.Permissions[0] != "android.permission.INTERNET" {
		t.Errorf("permissions = %v", meta.Permissions)
	}
	if !meta.Valid() {
		t.Error("parsed metadata must be valid")
	}
}

func TestParseBadgingWithoutPackageLine(t *testing.T) {
	if meta := parseBadging("sdkVersion:'26'\n"); meta != nil {
		t.Errorf("expected nil, got %+v", meta)
	}
}

func TestHasPackageDeclaration(t *testing.T) {
	if !hasPackageDeclaration(sampleBadging) {
		t.Error("sample output carries a declaration")
	}
	if hasPackageDeclaration("ERROR: dump failed") {
		t.Error("error output must not count")
	}
	if hasPackageDeclaration("package: name='x'") {
		t.Error("declaration without a version code must not count")
	}
}
