// Package http exposes the REST surface over the integration facade.
package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/droiddeck/backend/internal/infrastructure/logging"
	"github.com/droiddeck/backend/internal/infrastructure/monitoring"
	"github.com/droiddeck/backend/internal/integration"
	"github.com/droiddeck/backend/internal/lifecycle"
	"github.com/droiddeck/backend/internal/shared/types"
)

// Orchestrator is the facade surface the REST handlers drive.
type Orchestrator interface {
	Status(ctx context.Context) integration.Status
	Diagnostics(ctx context.Context) integration.Diagnostics
	StartSubsystem(ctx context.Context) error
	StopSubsystem(ctx context.Context) error
	Connect(ctx context.Context) error
	InstallPackage(ctx context.Context, path string) (types.InstallOutcome, error)
	InstallByName(ctx context.Context, packageName string) (types.InstallOutcome, error)
	ValidatePackage(ctx context.Context, path string) (bool, string)
	PackageMetadata(ctx context.Context, path string) (*types.PackageMetadata, error)
	ScanPackages(dir string) ([]string, error)
	ListPackages(ctx context.Context, includeSystem, useCache bool) ([]types.InstalledPackage, error)
	Launch(ctx context.Context, packageName string) error
	StopApp(ctx context.Context, packageName string) error
	Uninstall(ctx context.Context, packageName string) error
	ClearData(ctx context.Context, packageName string) error
	History(limit int) []types.InstallOutcome
}

// Handlers contains all HTTP request handlers.
type Handlers struct {
	orch    Orchestrator
	metrics *monitoring.Metrics
	log     *logging.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(orch Orchestrator, metrics *monitoring.Metrics, log *logging.Logger) *Handlers {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handlers{
		orch:    orch,
		metrics: metrics,
		log:     log.Named("http"),
	}
}

// Root handles the root endpoint.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "droiddeck-backend",
		"status":  "running",
	})
}

// Health reports liveness.
func (h *Handlers) Health(c *gin.Context) {
	resp := gin.H{"status": "healthy"}
	if h.metrics != nil {
		resp["uptime_seconds"] = int64(h.metrics.Uptime().Seconds())
	}
	c.JSON(http.StatusOK, resp)
}

// Status reports the composite subsystem state without side effects.
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Status(c.Request.Context()))
}

// Diagnostics returns the status plus a recent subsystem log tail.
func (h *Handlers) Diagnostics(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Diagnostics(c.Request.Context()))
}

// StartSubsystem starts the subsystem on explicit request.
func (h *Handlers) StartSubsystem(c *gin.Context) {
	if err := h.orch.StartSubsystem(c.Request.Context()); err != nil {
		h.operationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"started": true})
}

// StopSubsystem stops the subsystem.
func (h *Handlers) StopSubsystem(c *gin.Context) {
	if err := h.orch.StopSubsystem(c.Request.Context()); err != nil {
		h.operationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": true})
}

// Connect establishes the bridge session.
func (h *Handlers) Connect(c *gin.Context) {
	if err := h.orch.Connect(c.Request.Context()); err != nil {
		h.operationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": true})
}

type packageFileRequest struct {
	Path string `json:"path" binding:"required"`
}

// Validate checks a package file for installability.
func (h *Handlers) Validate(c *gin.Context) {
	var req packageFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}
	ok, reason := h.orch.ValidatePackage(c.Request.Context(), req.Path)
	resp := gin.H{"path": req.Path, "valid": ok}
	if reason != "" {
		resp["reason"] = reason
	}
	c.JSON(http.StatusOK, resp)
}

// Metadata extracts metadata from a package file.
func (h *Handlers) Metadata(c *gin.Context) {
	var req packageFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}
	meta, err := h.orch.PackageMetadata(c.Request.Context(), req.Path)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, meta)
}

// Discover scans a directory for package files.
func (h *Handlers) Discover(c *gin.Context) {
	dir := c.Query("dir")
	if dir == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dir is required"})
		return
	}
	found, err := h.orch.ScanPackages(dir)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"files": found,
		"count": len(found),
	})
}

type installRequest struct {
	Path        string `json:"path"`
	PackageName string `json:"package_name"`
}

// Install sideloads a package, either from an explicit file path or by
// resolving a package name through the catalog.
func (h *Handlers) Install(c *gin.Context) {
	var req installRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var (
		outcome types.InstallOutcome
		err     error
	)
	switch {
	case req.Path != "":
		outcome, err = h.orch.InstallPackage(c.Request.Context(), req.Path)
	case req.PackageName != "":
		outcome, err = h.orch.InstallByName(c.Request.Context(), req.PackageName)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "path or package_name is required"})
		return
	}
	if err != nil {
		h.operationError(c, err)
		return
	}

	status := http.StatusOK
	if !outcome.Success {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, outcome)
}

// ListPackages lists installed packages. ?system=true includes system
// packages; ?refresh=true bypasses the snapshot cache.
func (h *Handlers) ListPackages(c *gin.Context) {
	includeSystem := c.Query("system") == "true"
	useCache := c.Query("refresh") != "true"

	packages, err := h.orch.ListPackages(c.Request.Context(), includeSystem, useCache)
	if err != nil {
		h.operationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"packages": packages,
		"count":    len(packages),
	})
}

// LaunchPackage starts an installed package.
func (h *Handlers) LaunchPackage(c *gin.Context) {
	name := c.Param("name")
	if err := h.orch.Launch(c.Request.Context(), name); err != nil {
		h.operationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"package_name": name, "launched": true})
}

// StopPackage force-stops a package.
func (h *Handlers) StopPackage(c *gin.Context) {
	name := c.Param("name")
	if err := h.orch.StopApp(c.Request.Context(), name); err != nil {
		h.operationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"package_name": name, "stopped": true})
}

// ClearPackageData wipes a package's data.
func (h *Handlers) ClearPackageData(c *gin.Context) {
	name := c.Param("name")
	if err := h.orch.ClearData(c.Request.Context(), name); err != nil {
		h.operationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"package_name": name, "cleared": true})
}

// UninstallPackage removes a package.
func (h *Handlers) UninstallPackage(c *gin.Context) {
	name := c.Param("name")
	if err := h.orch.Uninstall(c.Request.Context(), name); err != nil {
		h.operationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"package_name": name, "uninstalled": true})
}

// History returns recent install outcomes, newest first.
func (h *Handlers) History(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	history := h.orch.History(limit)
	c.JSON(http.StatusOK, gin.H{
		"history": history,
		"count":   len(history),
	})
}

// operationError maps facade errors onto HTTP statuses. A disabled
// integration is a client-visible configuration state, not a fault.
func (h *Handlers) operationError(c *gin.Context, err error) {
	if errors.Is(err, lifecycle.ErrDisabled) {
		c.JSON(http.StatusConflict, gin.H{"error": "subsystem integration is disabled"})
		return
	}
	h.log.Warn("operation failed",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
}
