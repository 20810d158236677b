package bootstrap

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"

	"github.com/statementdesk/ledgerlink/internal/config"
)

const secretRefPrefix = "sm://"

// ResolveSecretRefs replaces "sm://<secret-name>" values in the config with
// the latest secret version. Plain values pass through untouched so local
// runs can use env vars directly.
func ResolveSecretRefs(ctx context.Context, client *secretmanager.Client, cfg *config.Config) error {
	refs := []*string{
		&cfg.Google.ClientSecret,
		&cfg.Xero.ClientSecret,
		&cfg.QuickBooks.ClientSecret,
	}
	for _, ref := range refs {
		resolved, err := resolveRef(ctx, client, cfg.ProjectID, *ref)
		if err != nil {
			return err
		}
		*ref = resolved
	}
	return nil
}

func resolveRef(ctx context.Context, client *secretmanager.Client, projectID, value string) (string, error) {
	if !strings.HasPrefix(value, secretRefPrefix) {
		return value, nil
	}
	name := strings.TrimPrefix(value, secretRefPrefix)
	res, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, name),
	})
	if err != nil {
		return "", fmt.Errorf("resolving secret %s: %w", name, err)
	}
	return string(res.Payload.Data), nil
}
