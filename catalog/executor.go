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

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/eodiscover/skyhook/config"
)

type (
	// Executor issues catalog queries and parses the responses.  It holds
	// no per-query state; every call derives everything it needs from its
	// arguments and returns fresh values.
	Executor struct {
		baseURL string
		client  *http.Client
	}

	// ExecutorOption customizes an Executor at construction time.
	ExecutorOption func(*Executor)

	// HTTPError is returned when the catalog answers with a non-2xx status.
	HTTPError struct {
		StatusCode int
		Status     string
		Body       string
	}
)

func (e *HTTPError) Error() string {
	return fmt.Sprintf("catalog request failed: %s: %s", e.Status, e.Body)
}

// WithBaseURL overrides the configured catalog base address.
func WithBaseURL(base string) ExecutorOption {
	return func(e *Executor) {
		e.baseURL = strings.TrimRight(base, "/")
	}
}

// WithHTTPClient overrides the HTTP client used for catalog requests.
func WithHTTPClient(client *http.Client) ExecutorOption {
	return func(e *Executor) {
		e.client = client
	}
}

// NewExecutor builds an executor against the configured catalog endpoint,
// using the shared transport and the configured query timeout.
func NewExecutor(options ...ExecutorOption) *Executor {
	e := &Executor{
		baseURL: strings.TrimRight(viper.GetString("Catalog.BaseUrl"), "/"),
		client: &http.Client{
			Transport: config.GetTransport(),
			Timeout:   viper.GetDuration("Catalog.QueryTimeout"),
		},
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// Execute issues one catalog query and parses the result page.  Any non-2xx
// response is surfaced as a *HTTPError; there is no silent empty result.
func (e *Executor) Execute(ctx context.Context, q Query) (*QueryResult, error) {
	values := url.Values{}
	values.Set("$filter", string(q.Filter))
	values.Set("$orderby", q.OrderBy)
	values.Set("$top", strconv.Itoa(q.Top))
	values.Set("$expand", "Attributes")
	if q.Count {
		values.Set("$count", "true")
	}
	target := e.baseURL + "/" + q.Resource + "?" + values.Encode()
	return e.fetch(ctx, target)
}

// QueryByName looks up a product by its exact name.  A name-lookup miss
// (404) yields an empty result set rather than an error.
func (e *Executor) QueryByName(ctx context.Context, name string) (*QueryResult, error) {
	if name == "" {
		return nil, errors.New("product name cannot be empty")
	}
	values := url.Values{}
	values.Set("$filter", fmt.Sprintf("Name eq '%s'", name))
	values.Set("$expand", "Attributes")
	target := e.baseURL + "/" + ResourceProducts + "?" + values.Encode()

	result, err := e.fetch(ctx, target)
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
		log.Debugf("Product %q not found in catalog", name)
		return &QueryResult{}, nil
	}
	return result, err
}

// A name-pattern search's match types.
var validMatchTypes = []string{"exact", "contains", "startswith", "endswith"}

// QueryByNamePattern searches products whose names match the given pattern.
// matchType selects the comparison; an optional collection narrows the
// search.  top of zero uses the maximum page size.
func (e *Executor) QueryByNamePattern(ctx context.Context, pattern, matchType, collection string, top int) (*QueryResult, error) {
	if pattern == "" {
		return nil, errors.New("name pattern cannot be empty")
	}

	var nameClause string
	switch matchType {
	case "exact":
		nameClause = fmt.Sprintf("Name eq '%s'", pattern)
	case "contains", "startswith", "endswith":
		nameClause = fmt.Sprintf("%s(Name,'%s')", matchType, pattern)
	default:
		return nil, errors.Errorf("invalid match type %q; must be one of: %s", matchType, strings.Join(validMatchTypes, ", "))
	}

	clauses := []string{nameClause}
	if collection != "" {
		if !isValidCollection(collection) {
			return nil, criteriaErrorf("collection", "unknown collection %q; must be one of: %s", collection, strings.Join(ValidCollections(), ", "))
		}
		clauses = append(clauses, fmt.Sprintf("(Collection/Name eq '%s')", collection))
	}

	if top == 0 {
		top = 1000
	}
	if top < 1 || top > 1000 {
		return nil, errors.Errorf("the result cap must be between 1 and 1000, got %d", top)
	}

	values := url.Values{}
	values.Set("$filter", strings.Join(clauses, " and "))
	values.Set("$orderby", DefaultOrderBy)
	values.Set("$top", strconv.Itoa(top))
	values.Set("$expand", "Attributes")
	target := e.baseURL + "/" + ResourceProducts + "?" + values.Encode()
	return e.fetch(ctx, target)
}

func (e *Executor) fetch(ctx context.Context, target string) (*QueryResult, error) {
	log.Debugln("Issuing catalog query:", target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to construct catalog request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "catalog query failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read catalog response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: truncateBody(body)}
	}

	var wire queryResponseWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, errors.Wrap(err, "failed to parse catalog response")
	}

	result := &QueryResult{TotalCount: wire.Count}
	for _, entry := range wire.Value {
		result.Records = append(result.Records, entry.toRecord())
	}
	log.Debugf("Catalog query returned %d record(s)", len(result.Records))
	return result, nil
}

// Keep error payloads short enough to log without drowning the real cause.
func truncateBody(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
