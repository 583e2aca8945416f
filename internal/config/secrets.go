package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
)

// GetSecretValue retrieves a secret from AWS Secrets Manager
func GetSecretValue(ctx context.Context, secretName, region string) (string, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return "", fmt.Errorf("unable to create AWS session: %w", err)
	}

	client := secretsmanager.New(sess)

	input := &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	}

	result, err := client.GetSecretValueWithContext(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve secret: %w", err)
	}

	// Secrets Manager can store secrets as SecretString or SecretBinary
	var secretString string
	if result.SecretString != nil {
		secretString = *result.SecretString
	} else {
		return "", fmt.Errorf("secret is stored as binary, expected string")
	}

	return secretString, nil
}

// GetTronGridAPIKey retrieves the TronGrid API key from Secrets Manager or
// environment. The key is optional: public fallback explorers require none.
func GetTronGridAPIKey(ctx context.Context, region string) (string, error) {
	// First, try to get from environment variable (for local development)
	if apiKey := getEnv("TRONGRID_API_KEY", ""); apiKey != "" {
		return apiKey, nil
	}

	secretName := "usdt-verification/trongrid-api-key"
	apiKey, err := GetSecretValue(ctx, secretName, region)
	if err != nil {
		return "", fmt.Errorf("failed to get TronGrid API key: %w", err)
	}

	return apiKey, nil
}
