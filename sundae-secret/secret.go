// Package sundaesecret loads configuration secrets from AWS Secrets Manager
// into Go structs.
package sundaesecret

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/savaki/secrets"
)

// Registry holds the connection strings a rooms service may pull from a
// secret instead of the environment.
type Registry struct {
	MongoURL string `json:"mongodb_url"`
	RedisURL string `json:"redis_url"`
}

// LoadSecret decodes the named secret into data, which must be a pointer.
func LoadSecret(s *session.Session, secretName string, data interface{}) error {
	api := secrets.WithSecretsManager(secretsmanager.New(s))
	manager, err := secrets.NewManager(api)
	if err != nil {
		return fmt.Errorf("failed to initialize secrets: %w", err)
	}

	if err := manager.Decode(secretName, data); err != nil {
		return fmt.Errorf("failed to load secret %v: %w", secretName, err)
	}
	return nil
}

// LoadRegistry loads the registry connection strings from secretName.
func LoadRegistry(s *session.Session, secretName string) (Registry, error) {
	var r Registry
	if err := LoadSecret(s, secretName, &r); err != nil {
		return Registry{}, err
	}
	return r, nil
}
