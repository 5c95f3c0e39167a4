package main

import (
	"context"
	"log"

	"github.com/popules/ticko-sub001/app"
	"github.com/popules/ticko-sub001/app/config"
	"github.com/popules/ticko-sub001/app/logging"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
)

var ginLambda *ginadapter.GinLambda

// init runs once per Lambda container (cold start)
func init() {
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Logs.Level, cfg.Logs.Style)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize app: %v", err)
	}

	// Wrap Gin router with Lambda adapter
	ginLambda = ginadapter.New(a.Router)
}

// Handler is the Lambda entrypoint for API Gateway REST/HTTP API (proxy integration)
func Handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return ginLambda.ProxyWithContext(ctx, req)
}

func main() {
	lambda.Start(Handler)
}
