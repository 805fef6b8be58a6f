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

	"github.com/pkg/errors"
)

type (
	// FilterExpression is the textual query-language filter derived from a
	// SearchCriteria.  It is regenerated from scratch on every build and is
	// never mutated in place.
	FilterExpression string

	// Query is everything the executor needs to issue one catalog request:
	// the sub-resource, the filter, and the paging/order/count options.
	Query struct {
		Resource string
		Filter   FilterExpression
		OrderBy  string
		Top      int
		Count    bool
	}
)

// Catalog sub-resources.  Whole-product and burst searches use different
// sub-resources with disjoint attribute vocabularies.
const (
	ResourceProducts = "Products"
	ResourceBursts   = "Bursts"
)

// ErrUnconstrainedQuery is returned when a criteria object yields no filter
// clause at all.  An unconstrained query would scan the full catalog, so it
// is rejected outright.
var ErrUnconstrainedQuery = errors.New("no filter clauses produced; refusing to issue an unconstrained catalog query")

// BuildFilter validates the criteria and renders its filter expression.
// Clauses are emitted in a fixed order so the result is deterministic:
// collection, product type, orbit direction, cloud cover, AOI intersection,
// start date, end date, then one clause per extended attribute.
func BuildFilter(c *SearchCriteria) (FilterExpression, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}

	var clauses []string
	if c.burstMode() {
		clauses = c.burstClauses()
	} else {
		clauses = c.productClauses()
	}
	if len(clauses) == 0 {
		return "", ErrUnconstrainedQuery
	}
	return FilterExpression(strings.Join(clauses, " and ")), nil
}

// BuildQuery validates the criteria and assembles the complete query,
// including the sub-resource, sort spec, result cap, and count flag.
func BuildQuery(c *SearchCriteria, count bool) (Query, error) {
	filter, err := BuildFilter(c)
	if err != nil {
		return Query{}, err
	}
	resource := ResourceProducts
	if c.burstMode() {
		resource = ResourceBursts
	}
	return Query{
		Resource: resource,
		Filter:   filter,
		OrderBy:  c.effectiveOrderBy(),
		Top:      c.Top,
		Count:    count,
	}, nil
}

func (c *SearchCriteria) productClauses() (clauses []string) {
	if c.Collection != "" {
		clauses = append(clauses, fmt.Sprintf("(Collection/Name eq '%s')", c.Collection))
	}
	if c.ProductType != "" {
		clauses = append(clauses, renderAttributeClause("productType", StringAttribute(c.ProductType)))
	}
	if c.OrbitDirection != "" {
		clauses = append(clauses, renderAttributeClause("orbitDirection", StringAttribute(c.OrbitDirection)))
	}
	if c.CloudCoverMax != nil {
		clauses = append(clauses, fmt.Sprintf(
			"Attributes/OData.CSC.DoubleAttribute/any(att:att/Name eq 'cloudCover' and att/OData.CSC.DoubleAttribute/Value lt %s)",
			strconv.FormatFloat(*c.CloudCoverMax, 'f', -1, 64)))
	}
	clauses = append(clauses, c.commonClauses()...)
	for _, attr := range c.Attributes {
		clauses = append(clauses, renderAttributeClause(attr.Name, attr.Value))
	}
	return
}

// burstClauses renders the burst vocabulary.  Burst fields are plain
// properties of the sub-resource rather than extended attributes, so each
// one renders as a direct field comparison, dispatched on the same tagged
// value kinds as the whole-product templates.
func (c *SearchCriteria) burstClauses() (clauses []string) {
	clauses = append(clauses, c.commonClauses()...)
	b := c.Burst
	if b.BurstID != nil {
		clauses = append(clauses, renderFieldClause("BurstId", IntegerAttribute(*b.BurstID)))
	}
	if b.SwathIdentifier != "" {
		clauses = append(clauses, renderFieldClause("SwathIdentifier", StringAttribute(b.SwathIdentifier)))
	}
	if b.ParentProductName != "" {
		clauses = append(clauses, renderFieldClause("ParentProductName", StringAttribute(b.ParentProductName)))
	}
	if b.ParentProductType != "" {
		clauses = append(clauses, renderFieldClause("ParentProductType", StringAttribute(b.ParentProductType)))
	}
	if b.PlatformSerialIdentifier != "" {
		clauses = append(clauses, renderFieldClause("PlatformSerialIdentifier", StringAttribute(b.PlatformSerialIdentifier)))
	}
	if b.RelativeOrbitNumber != nil {
		clauses = append(clauses, renderFieldClause("RelativeOrbitNumber", IntegerAttribute(*b.RelativeOrbitNumber)))
	}
	if b.PolarisationChannels != "" {
		clauses = append(clauses, renderFieldClause("PolarisationChannels", StringAttribute(b.PolarisationChannels)))
	}
	return
}

// commonClauses covers the fields shared by both modes: the AOI intersection
// and the content-date window.
func (c *SearchCriteria) commonClauses() (clauses []string) {
	if c.AOI != "" {
		clauses = append(clauses, fmt.Sprintf("OData.CSC.Intersects(area=geography'SRID=4326;%s')", c.AOI))
	}
	if c.StartDate != "" {
		clauses = append(clauses, fmt.Sprintf("ContentDate/Start ge %s", c.StartDate))
	}
	if c.EndDate != "" {
		clauses = append(clauses, fmt.Sprintf("ContentDate/Start lt %s", c.EndDate))
	}
	return
}

// renderAttributeClause emits the extended-attribute sub-expression for one
// name/value pair.  The remote schema partitions attributes into String,
// Integer, and Double collections, hence the three templates.
func renderAttributeClause(name string, value AttributeValue) string {
	var attrType string
	switch value.Kind() {
	case AttributeInteger:
		attrType = "IntegerAttribute"
	case AttributeFloat:
		attrType = "DoubleAttribute"
	default:
		attrType = "StringAttribute"
	}
	return fmt.Sprintf("Attributes/OData.CSC.%s/any(att:att/Name eq '%s' and att/OData.CSC.%s/Value eq %s)",
		attrType, name, attrType, value.literal())
}

// renderFieldClause emits a direct property comparison, used by burst mode.
func renderFieldClause(name string, value AttributeValue) string {
	return fmt.Sprintf("%s eq %s", name, value.literal())
}
