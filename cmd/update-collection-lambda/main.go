// Package main is the collection updater Lambda.
//
// An EventBridge rule forwards VerificationEvents to an SQS queue that
// triggers this function. Each message overwrites one CollectionRecord;
// when the record ends up collected the group is aggregated, either by an
// async invoke of the aggregator Lambda or inline.
//
// The function reports partial batch failures, so only messages whose
// store write failed are redelivered. Undecodable messages are
// acknowledged and counted.
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
	trigger, aggregatorARN := lambdaboot.InitAggregateTrigger(clients.Config, st)
	staleGuard := lambdaboot.EnvBool(lambdaboot.EnvStaleEventGuard)

	h := &handler{updater: pipeline.NewUpdater(st, trigger, pipeline.WithStaleEventGuard(staleGuard))}

	startup := lambdaboot.StartupLog("update-collection-lambda", initStart).
		DynamoTable("hunt", st.TableName()).
		Feature("staleEventGuard", staleGuard).
		Feature("inlineAggregation", aggregatorARN == "")
	if aggregatorARN != "" {
		startup.LambdaFunc("aggregator", aggregatorARN)
	}
	startup.Log()

	lambda.Start(h.handle)
}
