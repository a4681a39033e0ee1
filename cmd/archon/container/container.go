package container

import (
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/archonhq/archon/cmd/archon/repository"
	"github.com/archonhq/archon/cmd/archon/service"
	"github.com/archonhq/archon/common/bootstrap"
	"github.com/archonhq/archon/common/cache"
	"github.com/archonhq/archon/common/clients"
	"github.com/archonhq/archon/common/llm"
	"github.com/archonhq/archon/common/ratelimit"
	rediscommon "github.com/archonhq/archon/common/redis"
)

// Container holds all initialized repositories and services (singleton
// pattern, built once at startup)
type Container struct {
	Components *bootstrap.Components
	Redis      *rediscommon.Client

	// Repositories
	WorkflowRepo   *repository.WorkflowRepository
	VersionRepo    *repository.VersionRepository
	BranchRepo     *repository.BranchRepository
	PipelineRepo   *repository.PipelineRepository
	RunRepo        *repository.RunRepository
	DeploymentRepo *repository.DeploymentRepository
	AuditRepo      *repository.AuditRepository
	AgentRepo      *repository.AgentRepository
	ArtifactRepo   *repository.ArtifactRepository

	// Services
	Workflows *service.WorkflowService
	Branches  *service.BranchService
	Versions  *service.VersionService
	Merges    *service.MergeService
	Pipelines *service.PipelineService
	Agents    *service.AgentService
	Runs      *service.RunService
	Audits    *service.AuditService
	Artifacts *service.ArtifactService
	Events    *service.Events

	// Optional, nil when the feature flag is off
	RateLimiter     *ratelimit.RateLimiter
	Recommendations *service.RecommendationService
}

// NewContainer initializes all repositories and services once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config
	log := components.Logger

	redisRaw, err := createRedisClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	redisClient := rediscommon.NewClient(redisRaw, log.WithComponent("redis"))

	events := service.NewEvents(redisClient, log.WithComponent("events"), cfg.Features.EnableEvents)

	// Repositories
	workflowRepo := repository.NewWorkflowRepository(components.DB)
	versionRepo := repository.NewVersionRepository(components.DB)
	branchRepo := repository.NewBranchRepository(components.DB)
	pipelineRepo := repository.NewPipelineRepository(components.DB)
	runRepo := repository.NewRunRepository(components.DB)
	deploymentRepo := repository.NewDeploymentRepository(components.DB)
	auditRepo := repository.NewAuditRepository(components.DB)
	agentRepo := repository.NewAgentRepository(components.DB)
	artifactRepo := repository.NewArtifactRepository(components.DB)

	// Services (bottom-up: dependencies first)
	artifacts := service.NewArtifactService(artifactRepo, log.WithComponent("artifacts"))

	workflows := service.NewWorkflowService(&service.WorkflowServiceOpts{
		Workflows: workflowRepo,
		Versions:  versionRepo,
		Branches:  branchRepo,
		Audits:    auditRepo,
		Events:    events,
		Logger:    log.WithComponent("workflows"),
	})

	branches := service.NewBranchService(branchRepo, workflowRepo, versionRepo, auditRepo, log.WithComponent("branches"))

	versions := service.NewVersionService(&service.VersionServiceOpts{
		Versions:    versionRepo,
		Workflows:   workflowRepo,
		Branches:    branchRepo,
		Runs:        runRepo,
		Deployments: deploymentRepo,
		Audits:      auditRepo,
		Events:      events,
		Logger:      log.WithComponent("versions"),
	})

	merges := service.NewMergeService(&service.MergeServiceOpts{
		Branches:  branchRepo,
		Versions:  versionRepo,
		Workflows: workflowRepo,
		Audits:    auditRepo,
		Events:    events,
		Logger:    log.WithComponent("merges"),
	})

	pipelines := service.NewPipelineService(&service.PipelineServiceOpts{
		Pipelines:   pipelineRepo,
		Workflows:   workflowRepo,
		Versions:    versionRepo,
		Agents:      agentRepo,
		Deployments: deploymentRepo,
		Artifacts:   artifacts,
		Audits:      auditRepo,
		Events:      events,
		Locker:      redisClient,
		Config:      cfg.Pipeline,
		Logger:      log.WithComponent("pipelines"),
	})

	agents := service.NewAgentService(agentRepo, log.WithComponent("agents"))
	runs := service.NewRunService(runRepo, workflowRepo, log.WithComponent("runs"))
	audits := service.NewAuditService(auditRepo, log.WithComponent("audits"))

	c := &Container{
		Components:     components,
		Redis:          redisClient,
		WorkflowRepo:   workflowRepo,
		VersionRepo:    versionRepo,
		BranchRepo:     branchRepo,
		PipelineRepo:   pipelineRepo,
		RunRepo:        runRepo,
		DeploymentRepo: deploymentRepo,
		AuditRepo:      auditRepo,
		AgentRepo:      agentRepo,
		ArtifactRepo:   artifactRepo,
		Workflows:      workflows,
		Branches:       branches,
		Versions:       versions,
		Merges:         merges,
		Pipelines:      pipelines,
		Agents:         agents,
		Runs:           runs,
		Audits:         audits,
		Artifacts:      artifacts,
		Events:         events,
	}

	if cfg.Features.EnableRateLimits {
		c.RateLimiter = ratelimit.NewRateLimiter(redisRaw, log.WithComponent("ratelimit"))
	}

	if cfg.Features.EnableRecommendations {
		llmLog := log.WithComponent("llm")
		llmClient, err := llm.NewOpenAIClient(llm.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
		}, llmLog)
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}

		retrier := clients.NewRetrier(clients.Policy{
			MaxAttempts: cfg.LLM.MaxAttempts,
			BaseDelay:   cfg.LLM.RetryBaseDelay,
			MaxDelay:    cfg.LLM.RetryMaxDelay,
			Timeout:     cfg.LLM.RequestTimeout,
		}, llmLog)

		var recCache cache.Cache
		if cfg.Cache.Enabled {
			recCache = cache.NewRedisCache(redisRaw, "archon:recommendations", log.WithComponent("cache"))
		}

		c.Recommendations = service.NewRecommendationService(&service.RecommendationServiceOpts{
			Workflows: workflowRepo,
			Limiter:   c.RateLimiter,
			LLM:       llmClient,
			Retrier:   retrier,
			Cache:     recCache,
			CacheTTL:  cfg.Cache.DefaultTTL,
			Logger:    log.WithComponent("recommendations"),
		})
	}

	return c, nil
}

// createRedisClient creates a Redis client from environment variables
func createRedisClient() (*redis.Client, error) {
	redisHost := getEnv("REDIS_HOST", "localhost")
	redisPort := getEnv("REDIS_PORT", "6379")
	redisPassword := getEnv("REDIS_PASSWORD", "")

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", redisHost, redisPort),
		Password: redisPassword,
		DB:       0,
	})

	return client, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
