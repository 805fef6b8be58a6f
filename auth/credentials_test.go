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
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, hits *int32, token string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		assert.Equal(t, "someone", r.PostForm.Get("username"))
		assert.Equal(t, "hunter2", r.PostForm.Get("password"))

		w.Header().Set("Content-Type", "application/json")
		_, err := w.Write([]byte(`{"access_token": "` + token + `", "expires_in": 600}`))
		require.NoError(t, err)
	}))
}

func TestTokenAcquisitionAndCaching(t *testing.T) {
	var hits int32
	server := tokenServer(t, &hits, "tok-1")
	defer server.Close()

	creds, err := NewCredentialSet("someone", "hunter2", WithTokenURL(server.URL), WithHTTPClient(server.Client()))
	require.NoError(t, err)

	token, err := creds.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	// A valid cached token is reused without another round trip.
	token, err = creds.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	// An explicit refresh always hits the endpoint.
	_, err = creds.Refresh(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestConcurrentRefreshesCollapse(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		_, err := w.Write([]byte(`{"access_token": "tok-shared", "expires_in": 600}`))
		require.NoError(t, err)
	}))
	defer server.Close()

	creds, err := NewCredentialSet("someone", "hunter2", WithTokenURL(server.URL), WithHTTPClient(server.Client()))
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			tok, err := creds.Refresh(context.Background())
			assert.NoError(t, err)
			results[idx] = tok
		}(i)
	}
	close(release)
	wg.Wait()

	for _, tok := range results {
		assert.Equal(t, "tok-shared", tok)
	}
	// Callers that joined an in-flight request share its result.
	assert.LessOrEqual(t, atomic.LoadInt32(&hits), int32(callers))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&hits), int32(1))
}

func TestTokenAcquisitionFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid_grant"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	creds, err := NewCredentialSet("someone", "wrong", WithTokenURL(server.URL), WithHTTPClient(server.Client()))
	require.NoError(t, err)

	_, err = creds.Token(context.Background())
	require.Error(t, err)
	var authErr *AuthError
	assert.True(t, errors.As(err, &authErr))
}

func TestNewCredentialSetRequiresBothHalves(t *testing.T) {
	_, err := NewCredentialSet("", "hunter2")
	assert.Error(t, err)
	_, err = NewCredentialSet("someone", "")
	assert.Error(t, err)
}

func signedTestToken(t *testing.T, roles []string) string {
	t.Helper()
	builder := jwt.NewBuilder().Issuer("test")
	if roles != nil {
		rolesAny := make([]interface{}, len(roles))
		for i, r := range roles {
			rolesAny[i] = r
		}
		builder = builder.Claim("realm_access", map[string]interface{}{"roles": rolesAny})
	}
	tok, err := builder.Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("test-signing-key")))
	require.NoError(t, err)
	return string(signed)
}

func TestHasObjectStoreRole(t *testing.T) {
	viper.Set("Auth.ObjectStoreRole", "copernicus-s3-access")
	defer viper.Reset()

	ok, err := HasObjectStoreRole(signedTestToken(t, []string{"default-roles", "copernicus-s3-access"}))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = HasObjectStoreRole(signedTestToken(t, []string{"default-roles"}))
	require.NoError(t, err)
	assert.False(t, ok)

	// Tokens without the claim at all are simply role-less.
	ok, err = HasObjectStoreRole(signedTestToken(t, nil))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = HasObjectStoreRole("not-a-jwt")
	assert.Error(t, err)
}
