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
	"sort"
	"strings"
)

// The catalog vocabulary: which collections exist, which product types each
// collection understands, and which fields a query may be ordered by.  Each
// collection has a disjoint product-type vocabulary, so product types are
// always validated in the context of a collection.
var (
	validCollections = map[string]struct{}{
		"SENTINEL-1":     {},
		"SENTINEL-2":     {},
		"SENTINEL-3":     {},
		"SENTINEL-5P":    {},
		"SENTINEL-6":     {},
		"SENTINEL-1-RTC": {},
		"LANDSAT-5":      {},
		"LANDSAT-7":      {},
		"LANDSAT-8":      {},
		"SMOS":           {},
		"ENVISAT":        {},
		"TERRAAQUA":      {},
		"COP-DEM":        {},
		"GLOBAL-MOSAICS": {},
		"CCM":            {},
	}

	validProductTypes = map[string][]string{
		"SENTINEL-1":  {"RAW", "SLC", "GRD", "GRDH", "GRDM", "OCN"},
		"SENTINEL-2":  {"S2MSI1C", "S2MSI2A", "S2MSI2Ap"},
		"SENTINEL-3":  {"OL_1_EFR___", "OL_1_ERR___", "OL_2_LFR___", "OL_2_LRR___", "SR_1_SRA___", "SR_2_LAN___", "SL_1_RBT___", "SL_2_LST___", "SY_2_SYN___"},
		"SENTINEL-5P": {"L1B_IR_SIR", "L1B_IR_UVN", "L2__AER_AI", "L2__AER_LH", "L2__CH4___", "L2__CLOUD_", "L2__CO____", "L2__HCHO__", "L2__NO2___", "L2__O3____", "L2__SO2___"},
		"SENTINEL-6":  {"MW_2__AMR____", "P4_1B_LR_____", "P4_2__LR_____"},
		"LANDSAT-5":   {"L1G", "L1T"},
		"LANDSAT-7":   {"L1G", "L1GT", "L1T", "GTC_1P"},
		"LANDSAT-8":   {"L1GT", "L1T", "L1TP", "L2SP"},
		"SMOS":        {"MIR_OSUDP2", "MIR_SMUDP2"},
		"ENVISAT":     {"ASA_IM__0P", "ASA_WS__0P"},
		"COP-DEM":     {"DGE_30", "DGE_90", "DTE_30", "DTE_90"},
	}

	validOrderByFields = map[string]struct{}{
		"ContentDate/Start": {},
		"ContentDate/End":   {},
		"PublicationDate":   {},
		"ModificationDate":  {},
	}

	validOrderByDirections = map[string]struct{}{
		"asc":  {},
		"desc": {},
	}
)

// DefaultOrderBy is used whenever a criteria object does not carry an
// explicit sort spec.
const DefaultOrderBy = "ContentDate/Start desc"

// ValidCollections returns the collection vocabulary in sorted order, for
// error messages and CLI help text.
func ValidCollections() []string {
	names := make([]string, 0, len(validCollections))
	for name := range validCollections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidProductTypes returns the product-type vocabulary scoped to the given
// collection.  Collections without a configured vocabulary return nil.
func ValidProductTypes(collection string) []string {
	return validProductTypes[collection]
}

func isValidCollection(name string) bool {
	_, ok := validCollections[name]
	return ok
}

func isValidProductType(collection, productType string) bool {
	for _, pt := range validProductTypes[collection] {
		if pt == productType {
			return true
		}
	}
	return false
}

func isValidOrderBy(orderBy string) bool {
	tokens := strings.Fields(orderBy)
	if len(tokens) != 2 {
		return false
	}
	if _, ok := validOrderByFields[tokens[0]]; !ok {
		return false
	}
	_, ok := validOrderByDirections[tokens[1]]
	return ok
}
