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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireTempCredentialFlatShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer some-token", r.Header.Get("Authorization"))
		_, err := w.Write([]byte(`{"access_id": "AKIA123", "secret": "s3cr3t"}`))
		require.NoError(t, err)
	}))
	defer server.Close()

	km := NewKeysManager(WithKeysManagerURL(server.URL), WithKeysManagerClient(server.Client()))
	cred, err := km.Acquire(context.Background(), "some-token")
	require.NoError(t, err)
	assert.Equal(t, "AKIA123", cred.AccessID)
	assert.Equal(t, "s3cr3t", cred.Secret)
}

func TestAcquireTempCredentialNestedShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte(`{"credential": {"access_id": "AKIA456", "secret": "n3st3d"}}`))
		require.NoError(t, err)
	}))
	defer server.Close()

	km := NewKeysManager(WithKeysManagerURL(server.URL), WithKeysManagerClient(server.Client()))
	cred, err := km.Acquire(context.Background(), "some-token")
	require.NoError(t, err)
	assert.Equal(t, "AKIA456", cred.AccessID)
	assert.Equal(t, "n3st3d", cred.Secret)
}

func TestAcquireTempCredentialFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer empty" {
			_, err := w.Write([]byte(`{"access_id": "", "secret": ""}`))
			require.NoError(t, err)
			return
		}
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer server.Close()

	km := NewKeysManager(WithKeysManagerURL(server.URL), WithKeysManagerClient(server.Client()))

	_, err := km.Acquire(context.Background(), "rejected")
	assert.Error(t, err)

	// A 2xx response with an incomplete credential is still a failure.
	_, err = km.Acquire(context.Background(), "empty")
	assert.Error(t, err)
}

func TestRevokeTempCredential(t *testing.T) {
	var gotPath, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		assert.Equal(t, "Bearer some-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	km := NewKeysManager(WithKeysManagerURL(server.URL), WithKeysManagerClient(server.Client()))
	require.NoError(t, km.Revoke(context.Background(), "some-token", "AKIA123"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/access_id/AKIA123", gotPath)

	// Revocation without an identifier is a programming error.
	assert.Error(t, km.Revoke(context.Background(), "some-token", ""))
}

func TestRevokeTempCredentialServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such key", http.StatusNotFound)
	}))
	defer server.Close()

	km := NewKeysManager(WithKeysManagerURL(server.URL), WithKeysManagerClient(server.Client()))
	assert.Error(t, km.Revoke(context.Background(), "some-token", "AKIA999"))
}
