// Broker is the conversational sales-funnel broker server: it wires the
// Store, Asset Library, LLM Client, Outbound Sender, Response Processor,
// Trigger Engine, Funnel/Support Detectors, Scheduler, Ingress Dispatcher,
// billing webhook service, and the Gin HTTP boundary into one process.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/salesbroker/funnelbroker/pkg/assets"
	"github.com/salesbroker/funnelbroker/pkg/billing"
	"github.com/salesbroker/funnelbroker/pkg/cleanup"
	"github.com/salesbroker/funnelbroker/pkg/config"
	"github.com/salesbroker/funnelbroker/pkg/database"
	"github.com/salesbroker/funnelbroker/pkg/detect"
	"github.com/salesbroker/funnelbroker/pkg/dispatch"
	"github.com/salesbroker/funnelbroker/pkg/httpapi"
	"github.com/salesbroker/funnelbroker/pkg/llmclient"
	"github.com/salesbroker/funnelbroker/pkg/masking"
	"github.com/salesbroker/funnelbroker/pkg/models"
	"github.com/salesbroker/funnelbroker/pkg/response"
	"github.com/salesbroker/funnelbroker/pkg/scheduler"
	"github.com/salesbroker/funnelbroker/pkg/sender"
	"github.com/salesbroker/funnelbroker/pkg/slack"
	"github.com/salesbroker/funnelbroker/pkg/store"
	"github.com/salesbroker/funnelbroker/pkg/threadlock"
	"github.com/salesbroker/funnelbroker/pkg/trigger"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	ginMode := getEnv("GIN_MODE", "debug")
	gin.SetMode(ginMode)

	log.Printf("Starting funnel broker")
	log.Printf("Config Directory: %s", *configDir)

	ctx := context.Background()

	lib := assets.New(assets.BuiltinDefinitions())

	cfg, err := config.Initialize(ctx, *configDir, lib.Has)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}
	stats := cfg.Stats()

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Printf("Error closing database client: %v", err)
		}
	}()
	log.Println("✓ Connected to PostgreSQL database")
	log.Println("✓ Database schema initialized")

	st := store.New(dbClient.DB())

	var snd sender.Sender = sender.NewHTTPSender(getEnv("SENDER_BASE_URL", ""), os.Getenv("SENDER_AUTH_TOKEN"))

	proc := response.New(st, snd, lib, cfg.Funnels, cfg.App.PublicBaseURL)
	locks := threadlock.New()
	triggers := trigger.NewEngine(cfg.Funnels)

	funnelDet := detect.NewDetector(
		convertRules(cfg.Detection.Campaigns),
		convertRules(cfg.Detection.Products),
		convertRule(cfg.Detection.Default),
		convertTagRules(cfg.Detection.Tags),
	)

	var llm dispatch.LLMClient
	if apiKey := os.Getenv(cfg.LLM.APIKeyEnv); apiKey != "" {
		llm = llmclient.NewClient(apiKey, cfg.LLM.Model, cfg.LLM.SystemPrompt, cfg.LLM.HistoryWindow)
	} else {
		log.Fatalf("LLM API key env var %q is not set", cfg.LLM.APIKeyEnv)
	}

	var notifier *slack.Service
	if cfg.Slack.Enabled {
		notifier = slack.NewService(slack.ServiceConfig{
			Token:        os.Getenv(cfg.Slack.TokenEnv),
			Channel:      cfg.Slack.Channel,
			DashboardURL: getEnv("DASHBOARD_URL", ""),
		})
	}

	dispatcher := dispatch.New(st, proc, locks, triggers, funnelDet, llm, cfg.App.PublicBaseURL, notifier)

	recipient := func(ctx context.Context, th *models.Thread) (string, error) {
		contact, err := st.GetContact(ctx, th.ContactID)
		if err != nil {
			return "", err
		}
		return contact.Phone, nil
	}

	sched := scheduler.New(st, proc, locks, recipient, cfg.Scheduler, cfg.App.PublicBaseURL)
	sched.Start(ctx)
	defer sched.Stop()

	billingSvc := billing.New(st, proc, locks, recipient, notifier, cfg.Scheduler.CartRecoveryDelay)

	maskingSvc := masking.NewService(cfg.MaskingPatterns, cfg.PatternGroups)

	cleanupSvc := cleanup.NewService(cfg.Retention, st)
	cleanupSvc.Start(ctx)
	defer cleanupSvc.Stop()

	srv := httpapi.NewServer(st, dbClient.DB(), dispatcher, billingSvc, cfg.App.BillingWebhookSecret, maskingSvc, notifier, stats)
	router := httpapi.NewRouter(srv)

	log.Printf("HTTP server listening on :%d", cfg.App.HTTPPort)
	if err := router.Run(":" + strconv.Itoa(cfg.App.HTTPPort)); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func convertRule(r config.DetectionRuleConfig) detect.Rule {
	return detect.Rule{FunnelID: r.FunnelID, StageID: r.StageID, Keywords: r.Keywords, Source: r.Source}
}

func convertRules(rs []config.DetectionRuleConfig) []detect.Rule {
	out := make([]detect.Rule, len(rs))
	for i, r := range rs {
		out[i] = convertRule(r)
	}
	return out
}

func convertTagRules(rs []config.TagRuleConfig) []detect.TagRule {
	out := make([]detect.TagRule, len(rs))
	for i, r := range rs {
		out[i] = detect.TagRule{Tag: r.Tag, Keywords: r.Keywords}
	}
	return out
}
