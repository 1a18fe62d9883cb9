package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	awssm "github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/loadbench/loadbench/internal/api"
	"github.com/loadbench/loadbench/internal/endpoint"
	"github.com/loadbench/loadbench/internal/scheduler"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	endpointBaseURL := os.Getenv("ENDPOINT_BASE_URL")
	if endpointBaseURL == "" {
		log.Fatal("ENDPOINT_BASE_URL is required")
	}
	quotaBaseURL := os.Getenv("QUOTA_BASE_URL")
	if quotaBaseURL == "" {
		log.Fatal("QUOTA_BASE_URL is required")
	}

	ctx := context.Background()

	tokens, err := buildTokenSource(ctx)
	if err != nil {
		log.Fatalf("configure endpoint token source: %v", err)
	}

	preflight, err := buildPreflightChecker(ctx)
	if err != nil {
		log.Fatalf("configure image preflight check: %v", err)
	}

	driver := endpoint.New(endpointBaseURL, tokens, os.Getenv("ENDPOINT_IMAGE_TAG"), preflight)
	quotaFetcher := scheduler.NewHTTPQuotaFetcher(quotaBaseURL)

	k8sCfg, err := rest.InClusterConfig()
	if err != nil {
		log.Fatalf("load in-cluster config: %v", err)
	}
	k8sClient, err := kubernetes.NewForConfig(k8sCfg)
	if err != nil {
		log.Fatalf("create kubernetes client: %v", err)
	}

	registry := api.NewRegistry()
	srv := api.NewServer(registry, driver, quotaFetcher, k8sClient)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	srv.RegisterRoutes(mux)

	log.Printf("loadbench monitoring server starting on :%s", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

// buildTokenSource reads the endpoint control plane's bearer token either
// from ENDPOINT_TOKEN directly, or — if ENDPOINT_TOKEN_SECRET_ID is set —
// from AWS Secrets Manager, refreshed every 10 minutes.
func buildTokenSource(ctx context.Context) (endpoint.TokenSource, error) {
	if secretID := os.Getenv("ENDPOINT_TOKEN_SECRET_ID"); secretID != "" {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		client := awssm.NewFromConfig(cfg)
		return endpoint.NewSecretsToken(client, secretID, 10*time.Minute), nil
	}

	token := os.Getenv("ENDPOINT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("either ENDPOINT_TOKEN or ENDPOINT_TOKEN_SECRET_ID must be set")
	}
	return endpoint.StaticToken(token), nil
}

// buildPreflightChecker returns an ecr-backed ImagePreflightChecker when
// ENDPOINT_ECR_REPOSITORY is set, nil otherwise (Create then skips the
// preflight check and relies on the control plane's own image resolution).
func buildPreflightChecker(ctx context.Context) (endpoint.ImagePreflightChecker, error) {
	repository := os.Getenv("ENDPOINT_ECR_REPOSITORY")
	if repository == "" {
		return nil, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return endpoint.NewImageCheck(ecr.NewFromConfig(cfg), os.Getenv("ENDPOINT_ECR_REGISTRY_ID"), repository), nil
}
