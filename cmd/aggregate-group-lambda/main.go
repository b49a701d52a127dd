// Package main is the completion aggregator Lambda. The updater invokes it
// asynchronously with {"groupId": "..."} whenever a record becomes
// collected. It rescans every record of the group and marks the group
// complete once all are collected.
package main

import (
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/eduzsantillan/scavenger-hunt/internal/lambdaboot"
	"github.com/eduzsantillan/scavenger-hunt/internal/logging"
	"github.com/eduzsantillan/scavenger-hunt/internal/pipeline"
)

func main() {
	initStart := time.Now()
	logging.Init()

	clients := lambdaboot.InitAWS()
	st := lambdaboot.InitDynamo(clients.Config, lambdaboot.EnvTableName)
	h := &handler{aggregator: pipeline.NewAggregator(st)}

	lambdaboot.StartupLog("aggregate-group-lambda", initStart).
		DynamoTable("hunt", st.TableName()).
		Log()

	lambda.Start(h.handle)
}
