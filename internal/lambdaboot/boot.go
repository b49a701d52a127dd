// Package lambdaboot holds the cold-start wiring shared by the hunt
// Lambdas: AWS config, the clients each stage needs, the label oracle
// selected by ORACLE_BACKEND, and the startup log line.
//
// Helpers log fatally on missing required configuration; a Lambda that
// cannot reach its bucket or table should fail at init, not per event.
package lambdaboot

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/eduzsantillan/scavenger-hunt/internal/logging"
	"github.com/eduzsantillan/scavenger-hunt/internal/oracle"
	"github.com/eduzsantillan/scavenger-hunt/internal/pipeline"
	"github.com/eduzsantillan/scavenger-hunt/internal/pubsub"
	"github.com/eduzsantillan/scavenger-hunt/internal/s3util"
	"github.com/eduzsantillan/scavenger-hunt/internal/store"
)

// Environment variables read at cold start.
const (
	EnvUploadBucket       = "UPLOAD_BUCKET_NAME"
	EnvTableName          = "HUNT_TABLE_NAME"
	EnvEventBus           = "EVENT_BUS_NAME"
	EnvOracleBackend      = "ORACLE_BACKEND"
	EnvGeminiAPIKey       = "GEMINI_API_KEY"
	EnvGeminiKeyParam     = "SSM_API_KEY_PARAM"
	EnvAggregatorLambda   = "AGGREGATOR_LAMBDA_ARN"
	EnvStaleEventGuard    = "STALE_EVENT_GUARD"
	defaultGeminiKeyParam = "/scavenger-hunt/prod/gemini-api-key"
)

// AWSClients holds the loaded config and the SSM client.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// S3Clients holds the S3 client, presigner and bucket name.
type S3Clients struct {
	Client    *s3.Client
	Presigner *s3.PresignClient
	Bucket    string
}

// InitAWS loads the default AWS config.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitS3 creates the S3 clients. When bucketEnvVar is non-empty the bucket
// name is required.
func InitS3(cfg aws.Config, bucketEnvVar string) S3Clients {
	client := s3.NewFromConfig(cfg)
	var bucket string
	if bucketEnvVar != "" {
		bucket = requireEnv(bucketEnvVar, "Bucket environment variable is required")
	}
	return S3Clients{
		Client:    client,
		Presigner: s3.NewPresignClient(client),
		Bucket:    bucket,
	}
}

// InitDynamo creates the DynamoDB-backed store.
func InitDynamo(cfg aws.Config, tableEnvVar string) *store.DynamoStore {
	table := requireEnv(tableEnvVar, "DynamoDB table environment variable is required")
	return store.NewDynamoStore(dynamodb.NewFromConfig(cfg), table)
}

// InitEventBridge creates the verification event publisher. An unset bus
// name publishes to the default bus.
func InitEventBridge(cfg aws.Config, busEnvVar string) *pubsub.EventBridgePublisher {
	bus := os.Getenv(busEnvVar)
	if bus == "" {
		log.Warn().Str("envVar", busEnvVar).Msg("Event bus not set, using the default bus")
	}
	return pubsub.NewEventBridgePublisher(eventbridge.NewFromConfig(cfg), bus)
}

// InitAggregateTrigger invokes the aggregator Lambda asynchronously when
// AGGREGATOR_LAMBDA_ARN is set and aggregates inline otherwise.
func InitAggregateTrigger(cfg aws.Config, st store.Store) (pipeline.AggregateTrigger, string) {
	arn := os.Getenv(EnvAggregatorLambda)
	if arn == "" {
		log.Info().Msg("Aggregator Lambda not configured, aggregating inline")
		return pipeline.InlineTrigger{Aggregator: pipeline.NewAggregator(st)}, ""
	}
	return pipeline.NewLambdaTrigger(lambdasvc.NewFromConfig(cfg), arn), arn
}

// InitDetector builds the label oracle named by ORACLE_BACKEND
// (rekognition by default). The Gemini backend reads photos through reader.
func InitDetector(ctx context.Context, clients AWSClients, reader *s3util.ObjectReader) oracle.Detector {
	backend := logging.EnvOrDefault(EnvOracleBackend, oracle.BackendRekognition)
	switch backend {
	case oracle.BackendRekognition:
		return oracle.NewRekognitionDetector(rekognition.NewFromConfig(clients.Config))
	case oracle.BackendGemini:
		client, err := oracle.NewGeminiClient(ctx, LoadGeminiKey(clients.SSM))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Gemini client")
		}
		return oracle.NewGeminiDetector(client, reader, oracle.GeminiModelName())
	default:
		log.Fatal().Str("backend", backend).Msg("Unknown label oracle backend")
		return nil
	}
}

// LoadGeminiKey returns GEMINI_API_KEY, fetching it from SSM Parameter
// Store when the variable is unset.
func LoadGeminiKey(ssmClient *ssm.Client) string {
	if key := os.Getenv(EnvGeminiAPIKey); key != "" {
		return key
	}
	paramName := GeminiKeyParam()
	start := time.Now()
	result, err := ssmClient.GetParameter(context.Background(), &ssm.GetParameterInput{
		Name:           &paramName,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		log.Fatal().Err(err).Str("param", paramName).Msg("Failed to read API key from SSM")
	}
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(start)).Msg("Gemini API key loaded from SSM")
	return aws.ToString(result.Parameter.Value)
}

// GeminiKeyParam is the SSM parameter holding the Gemini API key, used when
// GEMINI_API_KEY is unset.
func GeminiKeyParam() string {
	return logging.EnvOrDefault(EnvGeminiKeyParam, defaultGeminiKeyParam)
}

// EnvBool parses a boolean environment variable, false when unset or
// malformed.
func EnvBool(name string) bool {
	v, err := strconv.ParseBool(os.Getenv(name))
	return err == nil && v
}

// StartupLog starts the cold-start summary with the elapsed init time.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}

func requireEnv(name, msg string) string {
	v := os.Getenv(name)
	if v == "" {
		log.Fatal().Str("envVar", name).Msg(msg)
	}
	return v
}
