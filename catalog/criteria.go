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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type (
	// AttributeKind tags the value variant carried by an AttributeValue.
	// The remote schema partitions extended attributes by type, so each
	// kind renders through a structurally different clause template.
	AttributeKind int

	// AttributeValue is a tagged string/integer/float value.  Construct it
	// with StringAttribute, IntegerAttribute, FloatAttribute, or
	// AttributeValueOf; the zero value is not valid.
	AttributeValue struct {
		kind    AttributeKind
		str     string
		integer int64
		float   float64
	}

	// Attribute is one named extended-attribute constraint.  Criteria carry
	// attributes as an ordered slice so the emitted filter is deterministic.
	Attribute struct {
		Name  string
		Value AttributeValue
	}

	// BurstCriteria holds the burst-mode search vocabulary.  Bursts are a
	// sub-product granularity addressed through a separate catalog
	// sub-resource, so these fields never mix with whole-product attributes.
	BurstCriteria struct {
		BurstID                  *int64
		SwathIdentifier          string
		ParentProductName        string
		ParentProductType        string
		PlatformSerialIdentifier string
		RelativeOrbitNumber      *int64
		PolarisationChannels     string
	}

	// SearchCriteria describes one catalog search.  Validate() must succeed
	// before the criteria can be turned into a filter expression; a criteria
	// value is treated as immutable once validated.
	SearchCriteria struct {
		Collection     string
		ProductType    string
		OrbitDirection string
		CloudCoverMax  *float64
		AOI            string // closed-ring WKT polygon, SRID 4326
		StartDate      string // RFC 3339
		EndDate        string // RFC 3339
		Top            int
		OrderBy        string
		Attributes     []Attribute
		Burst          *BurstCriteria
	}

	// CriteriaError reports which criteria field failed validation and why.
	CriteriaError struct {
		Field  string
		Reason string
	}
)

const (
	attributeInvalid AttributeKind = iota
	AttributeString
	AttributeInteger
	AttributeFloat
)

func (e *CriteriaError) Error() string {
	return fmt.Sprintf("invalid search criteria: %s: %s", e.Field, e.Reason)
}

func criteriaErrorf(field, format string, args ...interface{}) error {
	return &CriteriaError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// StringAttribute builds a string-typed attribute value.
func StringAttribute(v string) AttributeValue {
	return AttributeValue{kind: AttributeString, str: v}
}

// IntegerAttribute builds an integer-typed attribute value.
func IntegerAttribute(v int64) AttributeValue {
	return AttributeValue{kind: AttributeInteger, integer: v}
}

// FloatAttribute builds a float-typed attribute value.
func FloatAttribute(v float64) AttributeValue {
	return AttributeValue{kind: AttributeFloat, float: v}
}

// AttributeValueOf converts a dynamically typed value into a tagged
// AttributeValue.  Only strings, integers, and floats are representable in
// the catalog's attribute schema; anything else is a construction error.
func AttributeValueOf(v interface{}) (AttributeValue, error) {
	switch val := v.(type) {
	case string:
		return StringAttribute(val), nil
	case int:
		return IntegerAttribute(int64(val)), nil
	case int32:
		return IntegerAttribute(int64(val)), nil
	case int64:
		return IntegerAttribute(val), nil
	case float32:
		return FloatAttribute(float64(val)), nil
	case float64:
		return FloatAttribute(val), nil
	default:
		return AttributeValue{}, errors.Errorf("unsupported attribute value type %T; must be string, integer, or float", v)
	}
}

// Kind returns the variant tag of the value.
func (v AttributeValue) Kind() AttributeKind {
	return v.kind
}

// literal renders the value in the catalog query language: strings are
// single-quoted, numbers are bare.
func (v AttributeValue) literal() string {
	switch v.kind {
	case AttributeInteger:
		return strconv.FormatInt(v.integer, 10)
	case AttributeFloat:
		return strconv.FormatFloat(v.float, 'f', -1, 64)
	default:
		return "'" + v.str + "'"
	}
}

// burstMode reports whether the criteria target the burst sub-resource.
func (c *SearchCriteria) burstMode() bool {
	return c.Burst != nil
}

// Validate checks every precondition on the criteria.  All violations are
// reported through CriteriaError values and no clause is ever built from an
// invalid criteria object.
func (c *SearchCriteria) Validate() error {
	if c.burstMode() {
		if c.Collection != "" || c.ProductType != "" || c.OrbitDirection != "" || c.CloudCoverMax != nil || len(c.Attributes) > 0 {
			return criteriaErrorf("burst", "burst-mode criteria cannot carry whole-product fields; the two vocabularies target different catalog sub-resources")
		}
	} else {
		if err := c.validateCollection(); err != nil {
			return err
		}
		if err := c.validateProductType(); err != nil {
			return err
		}
		if err := c.validateOrbitDirection(); err != nil {
			return err
		}
		if err := c.validateCloudCover(); err != nil {
			return err
		}
		if err := c.validateAttributes(); err != nil {
			return err
		}
	}
	if err := c.validateAOI(); err != nil {
		return err
	}
	if err := c.validateDates(); err != nil {
		return err
	}
	if err := c.validateTop(); err != nil {
		return err
	}
	return c.validateOrderBy()
}

func (c *SearchCriteria) validateCollection() error {
	if c.Collection == "" {
		return criteriaErrorf("collection", "collection name cannot be empty")
	}
	if !isValidCollection(c.Collection) {
		return criteriaErrorf("collection", "unknown collection %q; must be one of: %s", c.Collection, strings.Join(ValidCollections(), ", "))
	}
	return nil
}

func (c *SearchCriteria) validateProductType() error {
	if c.ProductType == "" {
		return nil
	}
	if !isValidProductType(c.Collection, c.ProductType) {
		return criteriaErrorf("productType", "invalid product type %q for collection %s; must be one of: %s",
			c.ProductType, c.Collection, strings.Join(ValidProductTypes(c.Collection), ", "))
	}
	return nil
}

func (c *SearchCriteria) validateOrbitDirection() error {
	switch c.OrbitDirection {
	case "", "ASCENDING", "DESCENDING":
		return nil
	}
	return criteriaErrorf("orbitDirection", "invalid orbit direction %q; must be ASCENDING or DESCENDING", c.OrbitDirection)
}

func (c *SearchCriteria) validateCloudCover() error {
	if c.CloudCoverMax == nil {
		return nil
	}
	if *c.CloudCoverMax < 0 || *c.CloudCoverMax > 100 {
		return criteriaErrorf("cloudCover", "cloud cover ceiling must be between 0 and 100, got %v", *c.CloudCoverMax)
	}
	return nil
}

func (c *SearchCriteria) validateAOI() error {
	if c.AOI == "" {
		return nil
	}
	aoi := strings.TrimSpace(c.AOI)
	if !strings.HasPrefix(aoi, "POLYGON((") || !strings.HasSuffix(aoi, "))") {
		return criteriaErrorf("aoi", "area of interest must be a WKT POLYGON with a closed ring")
	}
	ring := aoi[len("POLYGON((") : len(aoi)-len("))")]
	coords := strings.Split(ring, ",")
	if len(coords) < 4 {
		return criteriaErrorf("aoi", "polygon ring needs at least four coordinate pairs")
	}
	first := strings.TrimSpace(coords[0])
	last := strings.TrimSpace(coords[len(coords)-1])
	if first != last {
		return criteriaErrorf("aoi", "polygon ring must start and end with the same point (got %q and %q)", first, last)
	}
	return nil
}

func (c *SearchCriteria) validateDates() error {
	var start, end time.Time
	var err error
	if c.StartDate != "" {
		if start, err = time.Parse(time.RFC3339, c.StartDate); err != nil {
			return criteriaErrorf("startDate", "not a valid RFC 3339 timestamp: %q", c.StartDate)
		}
	}
	if c.EndDate != "" {
		if end, err = time.Parse(time.RFC3339, c.EndDate); err != nil {
			return criteriaErrorf("endDate", "not a valid RFC 3339 timestamp: %q", c.EndDate)
		}
	}
	if c.StartDate != "" && c.EndDate != "" && !start.Before(end) {
		return criteriaErrorf("dates", "start date must be strictly earlier than end date")
	}
	return nil
}

func (c *SearchCriteria) validateTop() error {
	if c.Top < 1 || c.Top > 1000 {
		return criteriaErrorf("top", "result cap must be between 1 and 1000, got %d", c.Top)
	}
	return nil
}

func (c *SearchCriteria) validateOrderBy() error {
	if c.OrderBy == "" {
		return nil
	}
	if !isValidOrderBy(c.OrderBy) {
		return criteriaErrorf("orderBy", "sort spec %q must be '<field> <direction>' with a whitelisted field and direction", c.OrderBy)
	}
	return nil
}

func (c *SearchCriteria) validateAttributes() error {
	for _, attr := range c.Attributes {
		if attr.Name == "" {
			return criteriaErrorf("attributes", "attribute name cannot be empty")
		}
		switch attr.Value.Kind() {
		case AttributeString, AttributeInteger, AttributeFloat:
		default:
			return criteriaErrorf("attributes", "attribute %q carries an unsupported value kind", attr.Name)
		}
	}
	return nil
}

// effectiveOrderBy resolves the sort spec, falling back to the default when
// none was provided.
func (c *SearchCriteria) effectiveOrderBy() string {
	if c.OrderBy == "" {
		return DefaultOrderBy
	}
	return c.OrderBy
}
