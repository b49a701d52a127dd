// Package main is the image analyzer Lambda.
//
// It is triggered by S3 ObjectCreated events on the upload bucket. For each
// photo stored under {groupId}/{itemId}/image.{ext} it:
//
//  1. Reads the required terms from the object's requiredlist metadata
//  2. Asks the label oracle (Rekognition or Gemini) what the photo shows
//  3. Publishes one VerificationEvent to EventBridge
//  4. Tags the photo with the result
//
// Oracle and publish failures fail the invocation so S3's async retry
// delivers the notification again. Keys that do not follow the layout are
// logged and skipped.
package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/eduzsantillan/scavenger-hunt/internal/hunt"
	"github.com/eduzsantillan/scavenger-hunt/internal/lambdaboot"
	"github.com/eduzsantillan/scavenger-hunt/internal/logging"
	"github.com/eduzsantillan/scavenger-hunt/internal/oracle"
	"github.com/eduzsantillan/scavenger-hunt/internal/pipeline"
	"github.com/eduzsantillan/scavenger-hunt/internal/s3util"
)

func main() {
	initStart := time.Now()
	logging.Init()
	ctx := context.Background()

	clients := lambdaboot.InitAWS()
	s3s := lambdaboot.InitS3(clients.Config, lambdaboot.EnvUploadBucket)
	reader := s3util.NewObjectReader(s3s.Client)
	detector := lambdaboot.InitDetector(ctx, clients, reader)
	publisher := lambdaboot.InitEventBridge(clients.Config, lambdaboot.EnvEventBus)

	tagger := func(ctx context.Context, ref hunt.UploadReference, isMatch bool) error {
		return s3util.TagResult(ctx, s3s.Client, ref.ContainerID, ref.ObjectKey, isMatch)
	}
	h := &handler{analyzer: pipeline.NewAnalyzer(detector, reader, publisher, pipeline.WithResultTagger(tagger))}

	startup := lambdaboot.StartupLog("analyze-image-lambda", initStart).
		S3Bucket("uploads", s3s.Bucket).
		EventBus("verification", logging.EnvOrDefault(lambdaboot.EnvEventBus, "default")).
		Config("oracle", detector.Name())
	if detector.Name() == oracle.BackendGemini && os.Getenv(lambdaboot.EnvGeminiAPIKey) == "" {
		startup.SSMParam("geminiApiKey", lambdaboot.GeminiKeyParam())
	}
	startup.Log()
	log.Debug().Msg("Analyzer ready")

	lambda.Start(h.handle)
}
