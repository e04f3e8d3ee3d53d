// internal/store/dynamodb/dynamodbconfig.go
package dynamodb

import (
	"errors"
	"time"
)

// DynamoDBConfig configures the DynamoDB lock store
type DynamoDBConfig struct {
	Region          string        `yaml:"region" mapstructure:"region"`
	Table           string        `yaml:"table" mapstructure:"table"`
	TTL             time.Duration `yaml:"ttl" mapstructure:"ttl"`
	Endpoints       []string      `yaml:"endpoints" mapstructure:"endpoints"`
	Profile         string        `yaml:"profile,omitempty" mapstructure:"profile"`
	AccessKeyID     string        `yaml:"accessKeyId,omitempty" mapstructure:"accessKeyId"`
	SecretAccessKey string        `yaml:"secretAccessKey,omitempty" mapstructure:"secretAccessKey"`
	// CreateTable creates the lock table on startup when it is missing.
	CreateTable bool `yaml:"createTable" mapstructure:"createTable"`
}

func (c *DynamoDBConfig) GetTableName() string {
	return c.Table
}

func (c *DynamoDBConfig) GetTTL() time.Duration {
	return c.TTL
}

func (c *DynamoDBConfig) GetEndpoints() []string {
	return c.Endpoints
}

func (c *DynamoDBConfig) Validate() error {
	if c.Region == "" {
		return errors.New("region is required")
	}
	if c.Table == "" {
		return errors.New("table is required")
	}
	if c.TTL <= 0 {
		return errors.New("invalid TTL")
	}
	if (c.AccessKeyID != "" && c.SecretAccessKey == "") ||
		(c.AccessKeyID == "" && c.SecretAccessKey != "") {
		return errors.New("both access key and secret key must be provided together")
	}
	return nil
}

// NewDynamoDBConfig creates a new DynamoDB configuration with default values
func NewDynamoDBConfig() *DynamoDBConfig {
	return &DynamoDBConfig{
		Region:      "us-west-2",
		Table:       "quorum-guard-locks",
		TTL:         15 * time.Second,
		CreateTable: true,
	}
}
