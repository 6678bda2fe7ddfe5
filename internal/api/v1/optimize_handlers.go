package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"station-aflowx-optimizer/internal/apierr"
	"station-aflowx-optimizer/internal/auth"
	"station-aflowx-optimizer/internal/db/repositories"
	"station-aflowx-optimizer/internal/domain"
	"station-aflowx-optimizer/internal/idempotency"
	"station-aflowx-optimizer/internal/jobqueue"
	"station-aflowx-optimizer/internal/metrics"
	"station-aflowx-optimizer/internal/optimize"
	"station-aflowx-optimizer/internal/taxonomy"
)

// OptimizeHandlers serves the optimization-service HTTP surface: /healthz,
// /metrics, /v1/agents/optimize[/async], version management, and
// manual-parity benchmarking. RegisterRoutes wires the routes, each served
// by its own handler method.
type OptimizeHandlers struct {
	svc              *optimize.Service
	repo             *repositories.OptimizationRepo
	jobs             *jobqueue.Queue
	idempo           *idempotency.Store
	metricsReg       *metrics.Registry
	tenantMiddleware *auth.TenantMiddleware
	allowRoot        string
	taxonomyRules    taxonomy.Rules
}

// NewOptimizeHandlers builds an OptimizeHandlers bound to its collaborators.
func NewOptimizeHandlers(svc *optimize.Service, repo *repositories.OptimizationRepo, jobs *jobqueue.Queue, idempo *idempotency.Store, metricsReg *metrics.Registry, tenantMiddleware *auth.TenantMiddleware, manualBlueprintAllowRoot string, taxonomyRules taxonomy.Rules) *OptimizeHandlers {
	return &OptimizeHandlers{
		svc:              svc,
		repo:             repo,
		jobs:             jobs,
		idempo:           idempo,
		metricsReg:       metricsReg,
		tenantMiddleware: tenantMiddleware,
		allowRoot:        manualBlueprintAllowRoot,
		taxonomyRules:    taxonomyRules,
	}
}

// RegisterRoutes wires every optimization-service route onto router.
func (h *OptimizeHandlers) RegisterRoutes(router *gin.RouterGroup) {
	router.Use(h.metricsMiddleware())
	router.GET("/healthz", h.healthz)
	router.GET("/metrics", h.metricsSnapshot)

	router.Use(h.tenantMiddleware.Authenticate())

	agents := router.Group("/agents")
	agents.POST("/optimize", h.tenantMiddleware.RequirePermission(auth.PermOptimizeRun), h.optimize)
	agents.POST("/optimize/async", h.tenantMiddleware.RequirePermission(auth.PermOptimizeRun), h.optimizeAsync)
	agents.GET("/:agent_name/versions", h.tenantMiddleware.RequirePermission(auth.PermVersionsRead), h.listVersions)
	agents.GET("/:agent_name/versions/:version", h.tenantMiddleware.RequirePermission(auth.PermVersionsRead), h.getVersion)
	agents.POST("/:agent_name/versions/:version/deploy", h.tenantMiddleware.RequirePermission(auth.PermVersionsDeploy), h.deployVersion)
	agents.POST("/:agent_name/versions/:version/rollback", h.tenantMiddleware.RequirePermission(auth.PermVersionsRollback), h.rollbackVersion)
	agents.POST("/benchmark/manual-parity", h.tenantMiddleware.RequirePermission(auth.PermParityRun), h.manualParity)
	agents.POST("/benchmark/manual-parity/async", h.tenantMiddleware.RequirePermission(auth.PermParityRun), h.manualParityAsync)
	agents.GET("/jobs/:job_id", h.tenantMiddleware.RequirePermission(auth.PermVersionsRead), h.getJob)
}

func (h *OptimizeHandlers) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		key := fmt.Sprintf("%s %s", c.Request.Method, c.FullPath())
		h.metricsReg.RecordRequest(key, float64(time.Since(start).Milliseconds()), c.Writer.Status() >= 400)
	}
}

// renderError writes err using the apierr taxonomy's HTTP-status mapping
// when err is (or wraps) an *apierr.Error, falling back to a generic
// runtime_error/500 for anything else a collaborator returns.
func renderError(c *gin.Context, err error) {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.HTTPStatus(), gin.H{"error": string(apiErr.Kind), "message": apiErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": string(apierr.KindRuntime), "message": err.Error()})
}

func (h *OptimizeHandlers) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *OptimizeHandlers) metricsSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.metricsReg.Snapshot())
}

type optimizeRequest struct {
	AgentName   string `json:"agent_name" binding:"required"`
	TaskDesc    string `json:"task_desc" binding:"required"`
	DatasetSize int    `json:"dataset_size"`
	Profile     string `json:"profile"`
	Seed        *int64 `json:"seed"`
}

func (h *OptimizeHandlers) optimize(c *gin.Context) {
	principal, _ := auth.PrincipalFromContext(c)

	var req optimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.Validation("%v", err))
		return
	}
	if req.Profile == "" {
		req.Profile = "full_system"
	}

	scope := fmt.Sprintf("%s:optimize", principal.TenantID)
	idemKey, handled := h.handleIdempotency(c, scope)
	if handled {
		return
	}

	report, err := h.svc.Optimize(c.Request.Context(), principal.TenantID, req.AgentName, req.TaskDesc, req.DatasetSize, req.Profile, req.Seed)
	if err != nil {
		h.discardIdempotency(scope, idemKey)
		renderError(c, apierr.Runtime(err, "optimize run failed"))
		return
	}

	resp := gin.H{
		"run_id":          report.RunID,
		"profile":         report.Profile,
		"agent_name":      req.AgentName,
		"version":         report.Version.Version,
		"blueprint_id":    report.BestBlueprint.BlueprintID,
		"train_score":     report.BestEvaluation.MeanScore,
		"artifact_path":   report.Version.ArtifactPath,
		"evaluated_cases": report.BestEvaluation.TotalCases,
	}
	if report.ValidationEvaluation != nil {
		resp["val_score"] = report.ValidationEvaluation.MeanScore
	}
	if report.TestEvaluation != nil {
		resp["test_score"] = report.TestEvaluation.MeanScore
	}

	h.completeIdempotency(scope, idemKey, resp)
	c.JSON(http.StatusOK, resp)
}

func (h *OptimizeHandlers) optimizeAsync(c *gin.Context) {
	principal, _ := auth.PrincipalFromContext(c)

	var req optimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.Validation("%v", err))
		return
	}
	if req.Profile == "" {
		req.Profile = "full_system"
	}

	h.metricsReg.RecordJobSubmitted()
	job := h.jobs.Submit(domain.JobTypeOptimize, principal.TenantID, req.AgentName, map[string]string{"profile": req.Profile}, func() ([]byte, error) {
		ctx := c.Request.Context()
		report, err := h.svc.Optimize(ctx, principal.TenantID, req.AgentName, req.TaskDesc, req.DatasetSize, req.Profile, req.Seed)
		if err != nil {
			h.metricsReg.RecordJobFinished(false)
			return nil, err
		}
		h.metricsReg.RecordJobFinished(true)
		return json.Marshal(report)
	})

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":     job.JobID,
		"job_type":   job.JobType,
		"status":     job.Status,
		"tenant_id":  job.TenantID,
		"agent_name": job.AgentName,
		"created_at": job.CreatedAt,
		"updated_at": job.UpdatedAt,
		"metadata":   job.Metadata,
	})
}

func (h *OptimizeHandlers) listVersions(c *gin.Context) {
	principal, _ := auth.PrincipalFromContext(c)
	versions, err := h.repo.ListVersions(c.Request.Context(), principal.TenantID, c.Param("agent_name"))
	if err != nil {
		renderError(c, apierr.Persistence(err, "list versions failed"))
		return
	}
	c.JSON(http.StatusOK, versions)
}

func (h *OptimizeHandlers) getVersion(c *gin.Context) {
	principal, _ := auth.PrincipalFromContext(c)
	version, err := strconv.ParseInt(c.Param("version"), 10, 64)
	if err != nil {
		renderError(c, apierr.Validation("invalid version"))
		return
	}
	row, err := h.repo.GetVersion(c.Request.Context(), principal.TenantID, c.Param("agent_name"), version)
	if err != nil {
		renderError(c, apierr.NotFound("version not found"))
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *OptimizeHandlers) deployVersion(c *gin.Context) {
	h.transitionLifecycle(c, domain.LifecycleDeployed)
}

// rollbackVersion is intentionally wired identically to deployVersion:
// rolling back means redeploying an earlier, already-validated version.
func (h *OptimizeHandlers) rollbackVersion(c *gin.Context) {
	h.transitionLifecycle(c, domain.LifecycleDeployed)
}

func (h *OptimizeHandlers) transitionLifecycle(c *gin.Context, lifecycle domain.Lifecycle) {
	principal, _ := auth.PrincipalFromContext(c)
	version, err := strconv.ParseInt(c.Param("version"), 10, 64)
	if err != nil {
		renderError(c, apierr.Validation("invalid version"))
		return
	}
	row, err := h.repo.UpdateLifecycle(c.Request.Context(), principal.TenantID, c.Param("agent_name"), version, lifecycle)
	if err != nil {
		renderError(c, apierr.NotFound("version not found"))
		return
	}
	c.JSON(http.StatusOK, row)
}

type manualParityRequest struct {
	AgentName           string  `json:"agent_name" binding:"required"`
	TaskDesc            string  `json:"task_desc" binding:"required"`
	ManualBlueprintPath string  `json:"manual_blueprint_path" binding:"required"`
	DatasetSize         int     `json:"dataset_size"`
	Profile             string  `json:"profile"`
	Seed                *int64  `json:"seed"`
	ParityMargin        float64 `json:"parity_margin"`
}

func (h *OptimizeHandlers) manualParity(c *gin.Context) {
	principal, _ := auth.PrincipalFromContext(c)

	var req manualParityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.Validation("%v", err))
		return
	}
	if req.Profile == "" {
		req.Profile = "full_system"
	}
	if req.ParityMargin == 0 {
		req.ParityMargin = 0.03
	}

	report, err := h.svc.BenchmarkManualParity(c.Request.Context(), principal.TenantID, req.AgentName, req.TaskDesc, h.allowRoot, req.ManualBlueprintPath, req.DatasetSize, req.Profile, req.Seed, req.ParityMargin, h.taxonomyRules)
	if err != nil {
		if strings.Contains(err.Error(), "allow-list") || strings.Contains(err.Error(), "traversal") {
			renderError(c, apierr.Validation("%v", err))
			return
		}
		renderError(c, apierr.Runtime(err, "manual parity benchmark failed"))
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *OptimizeHandlers) manualParityAsync(c *gin.Context) {
	principal, _ := auth.PrincipalFromContext(c)

	var req manualParityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.Validation("%v", err))
		return
	}
	if req.Profile == "" {
		req.Profile = "full_system"
	}
	if req.ParityMargin == 0 {
		req.ParityMargin = 0.03
	}

	h.metricsReg.RecordJobSubmitted()
	job := h.jobs.Submit(domain.JobTypeManualParity, principal.TenantID, req.AgentName, map[string]string{"profile": req.Profile}, func() ([]byte, error) {
		ctx := c.Request.Context()
		report, err := h.svc.BenchmarkManualParity(ctx, principal.TenantID, req.AgentName, req.TaskDesc, h.allowRoot, req.ManualBlueprintPath, req.DatasetSize, req.Profile, req.Seed, req.ParityMargin, h.taxonomyRules)
		if err != nil {
			h.metricsReg.RecordJobFinished(false)
			return nil, err
		}
		h.metricsReg.RecordJobFinished(true)
		return json.Marshal(report)
	})

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":     job.JobID,
		"job_type":   job.JobType,
		"status":     job.Status,
		"tenant_id":  job.TenantID,
		"agent_name": job.AgentName,
		"created_at": job.CreatedAt,
		"updated_at": job.UpdatedAt,
		"metadata":   job.Metadata,
	})
}

func (h *OptimizeHandlers) getJob(c *gin.Context) {
	principal, _ := auth.PrincipalFromContext(c)
	job, ok := h.jobs.Get(c.Param("job_id"))
	if !ok || job.TenantID != principal.TenantID {
		renderError(c, apierr.NotFound("job not found"))
		return
	}
	c.JSON(http.StatusOK, job)
}

// handleIdempotency checks the Idempotency-Key header (if present) and, on
// a replay, writes the cached response directly and returns handled=true.
// An empty (post-trim) key is rejected with 400.
func (h *OptimizeHandlers) handleIdempotency(c *gin.Context, scope string) (key string, handled bool) {
	key = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if key == "" {
		if c.GetHeader("Idempotency-Key") != "" {
			renderError(c, apierr.Validation("idempotency key must not be empty"))
			return "", true
		}
		return "", false
	}

	status, cached := h.idempo.Begin(scope, key)
	switch status {
	case idempotency.Replay:
		c.Data(http.StatusOK, "application/json", cached)
		return key, true
	case idempotency.InProgress:
		renderError(c, apierr.Conflict("request already in progress"))
		return key, true
	default:
		return key, false
	}
}

func (h *OptimizeHandlers) completeIdempotency(scope, key string, response interface{}) {
	if key == "" {
		return
	}
	body, err := json.Marshal(response)
	if err != nil {
		return
	}
	h.idempo.Complete(scope, key, body)
}

func (h *OptimizeHandlers) discardIdempotency(scope, key string) {
	if key == "" {
		return
	}
	h.idempo.Discard(scope, key)
}
