// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"errors"
	"fmt"
	"os"

	apikeys "cloud.google.com/go/apikeys/apiv2"
	"cloud.google.com/go/apikeys/apiv2/apikeyspb"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"
)

const (
	// APIKeyEnv is checked before asking the API Keys service.
	APIKeyEnv = "GOOGLE_MAPS_API_KEY"

	// DefaultKeyDisplayName is the display name of the key looked up
	// through Application Default Credentials.
	DefaultKeyDisplayName = "Visor Geocoding Key"
)

// KeyOptions tells ResolveGoogleMapsAPIKey where to look.
type KeyOptions struct {
	// ProjectID overrides the project found in the credentials.
	ProjectID string

	// DisplayName of the key. Defaults to DefaultKeyDisplayName.
	DisplayName string

	Logger zerolog.Logger
}

// ResolveGoogleMapsAPIKey returns the key in GOOGLE_MAPS_API_KEY or, when
// unset, the key string of the API key with the configured display name in
// the ADC project.
func ResolveGoogleMapsAPIKey(ctx context.Context, opts KeyOptions) (string, error) {
	if key := os.Getenv(APIKeyEnv); key != "" {
		return key, nil
	}

	opts.Logger.Info().Msg(APIKeyEnv + " is not set, looking it up via ADC")

	return apiKeyFromADC(ctx, opts)
}

func apiKeyFromADC(ctx context.Context, opts KeyOptions) (string, error) {
	displayName := opts.DisplayName
	if displayName == "" {
		displayName = DefaultKeyDisplayName
	}

	projectID := opts.ProjectID
	if projectID == "" {
		creds, err := google.FindDefaultCredentials(ctx, "https://www.googleapis.com/auth/cloud-platform")
		if err != nil {
			return "", fmt.Errorf("finding default credentials: %w", err)
		}

		projectID = creds.ProjectID
	}

	if projectID == "" {
		return "", errors.New("no project id in the default credentials, set one explicitly")
	}

	client, err := apikeys.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("creating apikeys client: %w", err)
	}
	defer client.Close()

	it := client.ListKeys(ctx, &apikeyspb.ListKeysRequest{
		Parent: fmt.Sprintf("projects/%s/locations/global", projectID),
	})

	for {
		key, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}

		if err != nil {
			return "", fmt.Errorf("listing keys: %w", err)
		}

		if key.DisplayName != displayName {
			continue
		}

		// ListKeys redacts the secret.
		opts.Logger.Debug().Str("key", key.Name).Msg("found key resource, retrieving secret")

		resp, err := client.GetKeyString(ctx, &apikeyspb.GetKeyStringRequest{Name: key.Name})
		if err != nil {
			return "", fmt.Errorf("getting key string: %w", err)
		}

		if resp.KeyString == "" {
			return "", fmt.Errorf("key %q found but its key string is empty", displayName)
		}

		return resp.KeyString, nil
	}

	return "", fmt.Errorf("key with display name %q not found in project %s", displayName, projectID)
}
