/***************************************************************
 *
 * Copyright (C) 2025, Skyhook Project
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/eodiscover/skyhook/config"
)

type (
	// TempCredential is a short-lived, narrowly scoped object-store key
	// pair tied to a bearer token.  It must be revoked on every exit path
	// of a direct-path attempt.
	TempCredential struct {
		AccessID string `json:"access_id"`
		Secret   string `json:"secret"`
	}

	// KeysManager talks to the temporary-credential endpoint: bearer token
	// in, key pair out, plus revocation by access-key identifier.
	KeysManager struct {
		baseURL string
		client  *http.Client
	}

	// KeysManagerOption customizes a KeysManager at construction time.
	KeysManagerOption func(*KeysManager)

	tempCredentialWire struct {
		Credential *TempCredential `json:"credential"`
		AccessID   string          `json:"access_id"`
		Secret     string          `json:"secret"`
	}
)

// WithKeysManagerURL overrides the configured keys-manager endpoint.
func WithKeysManagerURL(base string) KeysManagerOption {
	return func(k *KeysManager) {
		k.baseURL = strings.TrimRight(base, "/")
	}
}

// WithKeysManagerClient overrides the HTTP client used by the keys manager.
func WithKeysManagerClient(client *http.Client) KeysManagerOption {
	return func(k *KeysManager) {
		k.client = client
	}
}

// NewKeysManager builds a client for the configured keys-manager endpoint.
func NewKeysManager(options ...KeysManagerOption) *KeysManager {
	k := &KeysManager{
		baseURL: strings.TrimRight(viper.GetString("Auth.KeysManagerUrl"), "/"),
		client: &http.Client{
			Transport: config.GetTransport(),
			Timeout:   viper.GetDuration("Auth.TokenTimeout"),
		},
	}
	for _, option := range options {
		option(k)
	}
	return k
}

// Acquire exchanges the bearer token for a temporary object-store key pair.
func (k *KeysManager) Acquire(ctx context.Context, bearer string) (TempCredential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL, nil)
	if err != nil {
		return TempCredential{}, &AuthError{Op: "temporary credential acquisition", err: err}
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return TempCredential{}, &AuthError{Op: "temporary credential acquisition", err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return TempCredential{}, &AuthError{Op: "temporary credential acquisition", err: errors.Wrap(err, "failed to read keys-manager response")}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return TempCredential{}, &AuthError{Op: "temporary credential acquisition", err: errors.Errorf("keys manager returned %s", resp.Status)}
	}

	// The endpoint has returned both a flat and a nested credential shape
	// over time; accept either.
	var wire tempCredentialWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return TempCredential{}, &AuthError{Op: "temporary credential acquisition", err: errors.Wrap(err, "failed to parse keys-manager response")}
	}
	cred := TempCredential{AccessID: wire.AccessID, Secret: wire.Secret}
	if wire.Credential != nil {
		cred = *wire.Credential
	}
	if cred.AccessID == "" || cred.Secret == "" {
		return TempCredential{}, &AuthError{Op: "temporary credential acquisition", err: errors.New("keys manager returned an incomplete credential")}
	}
	log.Debugln("Acquired temporary object-store credential", cred.AccessID)
	return cred, nil
}

// Revoke invalidates the temporary key pair by its access-key identifier.
func (k *KeysManager) Revoke(ctx context.Context, bearer, accessID string) error {
	if accessID == "" {
		return errors.New("cannot revoke a credential without an access-key identifier")
	}
	target := k.baseURL + "/access_id/" + accessID
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return errors.Wrap(err, "failed to construct revoke request")
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := k.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "credential revoke request failed")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("credential revoke returned %s", resp.Status)
	}
	log.Debugln("Revoked temporary object-store credential", accessID)
	return nil
}
