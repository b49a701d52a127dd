// Package main is the hunt HTTP API behind API Gateway.
//
// Security:
//   - Origin-verify middleware blocks direct API Gateway access (CloudFront-only)
//   - groupId and itemId are validated before they become object key segments
//   - Upload content types are limited to the image allowlist
//
// Endpoints:
//
//	GET  /api/health              health check
//	POST /api/items               create or replace a catalog item
//	POST /api/groups              instantiate a team or session checklist
//	GET  /api/groups/{groupId}    group aggregate plus collection records
//	GET  /api/upload-url          presigned S3 PUT carrying the required terms
package main

import (
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/google/uuid"

	"github.com/eduzsantillan/scavenger-hunt/internal/lambdaboot"
	"github.com/eduzsantillan/scavenger-hunt/internal/logging"
)

func main() {
	initStart := time.Now()
	logging.Init()

	clients := lambdaboot.InitAWS()
	s3s := lambdaboot.InitS3(clients.Config, lambdaboot.EnvUploadBucket)
	st := lambdaboot.InitDynamo(clients.Config, lambdaboot.EnvTableName)

	srv := &server{
		store:        st,
		presigner:    s3s.Presigner,
		bucket:       s3s.Bucket,
		originSecret: os.Getenv("ORIGIN_VERIFY_SECRET"),
		newID:        uuid.NewString,
	}

	lambdaboot.StartupLog("upload-lambda", initStart).
		S3Bucket("uploads", s3s.Bucket).
		DynamoTable("hunt", st.TableName()).
		Feature("originVerify", srv.originSecret != "").
		Log()

	adapter := httpadapter.NewV2(srv.routes())
	lambda.Start(adapter.ProxyWithContext)
}
