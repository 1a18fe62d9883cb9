package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awssm "github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/loadbench/loadbench/cmd/bench/format"
	"github.com/loadbench/loadbench/internal/catalog"
	"github.com/loadbench/loadbench/internal/config"
	"github.com/loadbench/loadbench/internal/endpoint"
	"github.com/loadbench/loadbench/internal/planner"
	"github.com/loadbench/loadbench/internal/recommend"
	"github.com/loadbench/loadbench/internal/result"
	"github.com/loadbench/loadbench/internal/result/archive"
	"github.com/loadbench/loadbench/internal/scenario"
	"github.com/loadbench/loadbench/internal/scenario/execjob"
	"github.com/loadbench/loadbench/internal/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Submit an on-demand benchmark run against a single instance type",
	Long: `Plan a deployment for --model on --instance-type, deploy it, run one
constant-arrival-rate scenario against it, tear it down, and save the result
under --results-dir.

Examples:
  bench run --model meta-llama/Llama-3.1-8B --instance-type g5.xlarge --rate 5
  bench run --model mistralai/Mixtral-8x7B-Instruct-v0.1 --instance-type p4d.24xlarge -o json`,
	RunE: runBenchmark,
}

var (
	runModel        string
	runInstanceType string
	runVendor       string
	runRegionPrefix string
	runNamespace    string

	runCatalogURL    string
	runRecommendURL  string
	runQuotaURL      string
	runEndpointURL   string
	runEndpointToken string
	runTokenSecretID string
	runImageTag      string

	runLoadgenBinary string
	runDataset       string
	runRate          int
	runPreAllocVUs   int
	runDuration      string
	runMaxNewTokens  int

	runExecutorBackend string
	runExecjobImage    string
	runKubeconfig      string

	runEC2CrossCheck bool

	runECRRepository string
	runECRRegistryID string

	runArchiveBucket string
	runArchivePrefix string
)

func init() {
	runCmd.Flags().StringVar(&runModel, "model", "", "Model HuggingFace ID (required)")
	runCmd.Flags().StringVar(&runInstanceType, "instance-type", "", "Catalog instance type to deploy on (required)")
	runCmd.Flags().StringVar(&runVendor, "preferred-vendor", "aws", "Preferred vendor, used as a planner tie-breaker")
	runCmd.Flags().StringVar(&runRegionPrefix, "preferred-region-prefix", "us-", "Preferred region prefix, used as a planner tie-breaker")
	runCmd.Flags().StringVar(&runNamespace, "namespace", os.Getenv("LOADBENCH_NAMESPACE"), "Billing namespace")

	runCmd.Flags().StringVar(&runCatalogURL, "catalog-url", os.Getenv("CATALOG_BASE_URL"), "Compute catalog API base URL (required)")
	runCmd.Flags().StringVar(&runRecommendURL, "recommend-url", os.Getenv("RECOMMEND_BASE_URL"), "Runtime-config recommender API base URL (required)")
	runCmd.Flags().StringVar(&runQuotaURL, "quota-url", os.Getenv("QUOTA_BASE_URL"), "Quota API base URL (required)")
	runCmd.Flags().StringVar(&runEndpointURL, "endpoint-url", os.Getenv("ENDPOINT_BASE_URL"), "Endpoint control plane base URL (required)")
	runCmd.Flags().StringVar(&runEndpointToken, "endpoint-token", os.Getenv("ENDPOINT_TOKEN"), "Endpoint control plane bearer token")
	runCmd.Flags().StringVar(&runTokenSecretID, "endpoint-token-secret-id", os.Getenv("ENDPOINT_TOKEN_SECRET_ID"), "AWS Secrets Manager secret ID holding the bearer token, alternative to --endpoint-token")
	runCmd.Flags().StringVar(&runImageTag, "image-tag", os.Getenv("ENDPOINT_IMAGE_TAG"), "Inference container image tag")

	runCmd.Flags().StringVar(&runLoadgenBinary, "loadgen-binary", "k6", "Path to the load-generator binary")
	runCmd.Flags().StringVar(&runDataset, "dataset", "", "Path to the scenario's input dataset file")
	runCmd.Flags().IntVar(&runRate, "rate", 5, "Constant arrival rate (requests/sec)")
	runCmd.Flags().IntVar(&runPreAllocVUs, "pre-allocated-vus", 10, "Pre-allocated virtual users")
	runCmd.Flags().StringVar(&runDuration, "duration", "60s", "Scenario duration")
	runCmd.Flags().IntVar(&runMaxNewTokens, "max-new-tokens", 128, "Max new tokens per request")

	runCmd.Flags().StringVar(&runExecutorBackend, "executor-backend", "local", "Scenario executor backend: local or execjob")
	runCmd.Flags().StringVar(&runExecjobImage, "execjob-image", os.Getenv("EXECJOB_IMAGE"), "Load-generator container image, required when --executor-backend=execjob")
	runCmd.Flags().StringVar(&runKubeconfig, "kubeconfig", os.Getenv("KUBECONFIG"), "Path to a kubeconfig file, used only by the execjob executor backend")

	runCmd.Flags().BoolVar(&runEC2CrossCheck, "ec2-cross-check", false, "Cross-reference AWS catalog rows against ec2.DescribeInstanceTypes")

	runCmd.Flags().StringVar(&runECRRepository, "ecr-repository", os.Getenv("ECR_REPOSITORY_NAME"), "ECR repository name; when set, the inference image tag is preflight-checked via ecr.DescribeImages before Create submits")
	runCmd.Flags().StringVar(&runECRRegistryID, "ecr-registry-id", os.Getenv("ECR_REGISTRY_ID"), "AWS account ID owning --ecr-repository (default: caller's own account)")

	runCmd.Flags().StringVar(&runArchiveBucket, "archive-bucket", os.Getenv("ARCHIVE_S3_BUCKET"), "S3 bucket to additionally mirror the saved result tree to")
	runCmd.Flags().StringVar(&runArchivePrefix, "archive-prefix", os.Getenv("ARCHIVE_S3_PREFIX"), "S3 key prefix for --archive-bucket uploads")

	_ = runCmd.MarkFlagRequired("model")
	_ = runCmd.MarkFlagRequired("instance-type")
	RootCmd.AddCommand(runCmd)
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	for name, val := range map[string]string{
		"--catalog-url": runCatalogURL, "--recommend-url": runRecommendURL,
		"--quota-url": runQuotaURL, "--endpoint-url": runEndpointURL,
	} {
		if val == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	instances, err := catalog.New(runCatalogURL).ListGPUOptions(ctx)
	if err != nil {
		return fmt.Errorf("fetch catalog: %w", err)
	}

	if runEC2CrossCheck {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("load AWS config for ec2 cross-check: %w", err)
		}
		catalog.NewEC2Checker(ec2.NewFromConfig(awsCfg)).Check(ctx, instances)
	}

	ranked := planner.Plan(instances, []string{runInstanceType}, runVendor, runRegionPrefix)
	if len(ranked) == 0 {
		return fmt.Errorf("no catalog entry for instance type %s", runInstanceType)
	}

	rec := recommend.New(runRecommendURL)
	plans, err := planner.Viable(ctx, rec, runModel, ranked)
	if err != nil {
		return fmt.Errorf("query recommender: %w", err)
	}
	if len(plans) == 0 {
		return fmt.Errorf("model %s is not feasible on instance type %s", runModel, runInstanceType)
	}
	plan := plans[0]

	depCfg, err := config.NewDeploymentConfig(plan.Runtime, plan.Instance, runNamespace, nil)
	if err != nil {
		return err
	}
	dep := config.NewDeployment(*depCfg)

	sc := scenario.Scenario{
		ScenarioID:   "cli",
		Deployment:   dep,
		ExecutorName: "constant_arrival_rate",
		ExecutorVariables: map[string]any{
			"pre_allocated_vus": runPreAllocVUs,
			"rate":              runRate,
			"duration":          runDuration,
			"max_new_tokens":    runMaxNewTokens,
		},
		DatasetFilePath: runDataset,
	}
	group, err := scenario.NewGroup(dep, []scenario.Scenario{sc})
	if err != nil {
		return err
	}

	tokens, err := buildTokenSource(ctx)
	if err != nil {
		return err
	}
	preflight, err := buildPreflightChecker(ctx)
	if err != nil {
		return err
	}
	driver := endpoint.New(runEndpointURL, tokens, runImageTag, preflight)
	quotaFetcher := scheduler.NewHTTPQuotaFetcher(runQuotaURL)
	sched := scheduler.New(driver, quotaFetcher, runNamespace)
	runner, err := buildRunner()
	if err != nil {
		return err
	}

	groups, runErr := sched.Run(ctx, []scheduler.Task{{Group: group, Runner: runner}})
	// A scheduler-level error (e.g. context canceled, quota fetch failed) is
	// distinct from a per-scenario/per-deployment failure: the latter is
	// still fully captured in groups and gets persisted below.
	if runErr != nil && len(groups) == 0 {
		return fmt.Errorf("benchmark run failed: %w", runErr)
	}

	br := &result.BenchmarkResult{BenchmarkID: uuid.NewString(), Groups: groups}
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return fmt.Errorf("create results directory %s: %w", resultsDir, err)
	}
	if err := result.Save(resultsDir, br); err != nil {
		return fmt.Errorf("save result: %w", err)
	}

	if runArchiveBucket != "" {
		if err := archiveResult(ctx, br.BenchmarkID); err != nil {
			log.Printf("archive upload for benchmark %s failed: %v", br.BenchmarkID, err)
		}
	}

	switch getFormat() {
	case format.FormatJSON:
		return format.JSON(br)
	default:
		fmt.Printf("Benchmark %s saved under %s\n", br.BenchmarkID, resultsDir)
		fmt.Printf("Track details: bench status %s\n", br.BenchmarkID)
		return nil
	}
}

// buildTokenSource mirrors cmd/server's token source selection: a direct
// bearer token, or an AWS Secrets Manager-backed one refreshed every 10
// minutes.
func buildTokenSource(ctx context.Context) (endpoint.TokenSource, error) {
	if runTokenSecretID != "" {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		client := awssm.NewFromConfig(cfg)
		return endpoint.NewSecretsToken(client, runTokenSecretID, 10*time.Minute), nil
	}
	if runEndpointToken == "" {
		return nil, fmt.Errorf("either --endpoint-token or --endpoint-token-secret-id must be set")
	}
	return endpoint.StaticToken(runEndpointToken), nil
}

// buildPreflightChecker returns an ecr-backed ImagePreflightChecker when
// --ecr-repository is set, or nil (no preflight) otherwise.
func buildPreflightChecker(ctx context.Context) (endpoint.ImagePreflightChecker, error) {
	if runECRRepository == "" {
		return nil, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config for ecr preflight: %w", err)
	}
	return endpoint.NewImageCheck(ecr.NewFromConfig(awsCfg), runECRRegistryID, runECRRepository), nil
}

// buildRunner selects the scenario executor backend per --executor-backend:
// a local load-generator subprocess, or a Kubernetes Job per scenario.
func buildRunner() (scenario.Runner, error) {
	switch runExecutorBackend {
	case "", "local":
		return scenario.NewLocalExecutor(runLoadgenBinary), nil
	case "execjob":
		if runExecjobImage == "" {
			return nil, fmt.Errorf("--execjob-image is required when --executor-backend=execjob")
		}
		k8sCfg, err := clientcmd.BuildConfigFromFlags("", runKubeconfig)
		if err != nil {
			return nil, fmt.Errorf("load kubeconfig %s: %w", runKubeconfig, err)
		}
		client, err := kubernetes.NewForConfig(k8sCfg)
		if err != nil {
			return nil, fmt.Errorf("create kubernetes client: %w", err)
		}
		return execjob.New(client, runNamespace, runExecjobImage), nil
	default:
		return nil, fmt.Errorf("unknown --executor-backend %q (want local or execjob)", runExecutorBackend)
	}
}

// archiveResult mirrors the just-saved benchmark_<id> result tree to
// --archive-bucket, additive to the local filesystem copy.
func archiveResult(ctx context.Context, benchmarkID string) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("load AWS config for archive upload: %w", err)
	}
	uploader := archive.New(s3.NewFromConfig(awsCfg), runArchiveBucket, runArchivePrefix)
	return uploader.Upload(ctx, filepath.Join(resultsDir, "benchmark_"+benchmarkID))
}
