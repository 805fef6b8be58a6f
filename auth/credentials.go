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
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/sync/singleflight"

	"github.com/eodiscover/skyhook/config"
)

type (
	// A token's contents and its expiration time.
	//
	// Meant to be used atomically as part of the credential set.
	tokenInfo struct {
		Contents string
		Expiry   time.Time
	}

	// CredentialSet holds the long-lived username/password pair and the
	// short-lived bearer token derived from it.  The pair is never mutated
	// after construction; the token is refreshed in place on demand.
	//
	// Thread-safe.  At most one token refresh is in flight at a time;
	// concurrent callers block on the shared result.
	CredentialSet struct {
		username string
		password string

		tokenURL string
		clientID string
		client   *http.Client

		token atomic.Pointer[tokenInfo]
		group singleflight.Group
	}

	// CredentialOption customizes a CredentialSet at construction time.
	CredentialOption func(*CredentialSet)

	// AuthError wraps a failure to acquire or refresh credentials.  Batch
	// workflows treat it as fatal.
	AuthError struct {
		Op  string
		err error
	}

	tokenResponseWire struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
)

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed during %s: %v", e.Op, e.err)
}

func (e *AuthError) Unwrap() error {
	return e.err
}

// Renew slightly before the server-side expiry so an in-flight request never
// carries a token that lapses mid-call.
const tokenRenewalMargin = 30 * time.Second

// WithTokenURL overrides the configured token endpoint.
func WithTokenURL(tokenURL string) CredentialOption {
	return func(c *CredentialSet) {
		c.tokenURL = tokenURL
	}
}

// WithHTTPClient overrides the HTTP client used for token requests.
func WithHTTPClient(client *http.Client) CredentialOption {
	return func(c *CredentialSet) {
		c.client = client
	}
}

// NewCredentialSet builds a credential set for the given user.  No network
// activity happens until the first Token call.
func NewCredentialSet(username, password string, options ...CredentialOption) (*CredentialSet, error) {
	if username == "" || password == "" {
		return nil, errors.New("username and password must both be provided")
	}
	c := &CredentialSet{
		username: username,
		password: password,
		tokenURL: viper.GetString("Auth.TokenUrl"),
		clientID: viper.GetString("Auth.ClientId"),
		client: &http.Client{
			Transport: config.GetTransport(),
			Timeout:   viper.GetDuration("Auth.TokenTimeout"),
		},
	}
	for _, option := range options {
		option(c)
	}
	return c, nil
}

// Token returns a bearer token, acquiring or renewing one as needed.
func (c *CredentialSet) Token(ctx context.Context) (string, error) {
	if info := c.token.Load(); info != nil && time.Now().Add(tokenRenewalMargin).Before(info.Expiry) {
		return info.Contents, nil
	}
	return c.Refresh(ctx)
}

// Refresh forces a token renewal.  Concurrent refreshes are collapsed into a
// single request; every caller receives the same fresh token.
func (c *CredentialSet) Refresh(ctx context.Context) (string, error) {
	result, err, _ := c.group.Do("token", func() (interface{}, error) {
		info, err := c.acquire(ctx)
		if err != nil {
			return nil, err
		}
		c.token.Store(&info)
		return info.Contents, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *CredentialSet) acquire(ctx context.Context) (tokenInfo, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", c.clientID)
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenInfo{}, &AuthError{Op: "token acquisition", err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return tokenInfo{}, &AuthError{Op: "token acquisition", err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tokenInfo{}, &AuthError{Op: "token acquisition", err: errors.Wrap(err, "failed to read token response")}
	}
	if resp.StatusCode != http.StatusOK {
		return tokenInfo{}, &AuthError{Op: "token acquisition", err: errors.Errorf("token endpoint returned %s", resp.Status)}
	}

	var wire tokenResponseWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return tokenInfo{}, &AuthError{Op: "token acquisition", err: errors.Wrap(err, "failed to parse token response")}
	}
	if wire.AccessToken == "" {
		return tokenInfo{}, &AuthError{Op: "token acquisition", err: errors.New("token endpoint returned an empty access token")}
	}

	expiry := time.Now().Add(time.Duration(wire.ExpiresIn) * time.Second)
	log.Debugln("Acquired bearer token; expires", expiry.Format(time.RFC3339))
	return tokenInfo{Contents: wire.AccessToken, Expiry: expiry}, nil
}

// HasObjectStoreRole reports whether the token's granted-role claims include
// the configured object-store access role.  The token is parsed without
// signature verification; the claims only steer client-side path selection
// and grant nothing by themselves.
func HasObjectStoreRole(token string) (bool, error) {
	return hasRole(token, viper.GetString("Auth.ObjectStoreRole"))
}

func hasRole(token, role string) (bool, error) {
	parsed, err := jwt.ParseString(token, jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return false, errors.Wrap(err, "failed to parse bearer token claims")
	}
	realmAccess, ok := parsed.Get("realm_access")
	if !ok {
		return false, nil
	}
	accessMap, ok := realmAccess.(map[string]interface{})
	if !ok {
		return false, nil
	}
	roles, ok := accessMap["roles"].([]interface{})
	if !ok {
		return false, nil
	}
	for _, granted := range roles {
		if name, ok := granted.(string); ok && name == role {
			return true, nil
		}
	}
	return false, nil
}
