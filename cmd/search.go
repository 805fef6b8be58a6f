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

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/eodiscover/skyhook/catalog"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the product catalog",
	Long: `Search the product catalog by collection, acquisition window, area of
interest, and extended attributes.  Burst-level search uses the --burst-*
flags and cannot be combined with collection-level criteria.`,
	RunE: searchMain,
}

func init() {
	flagSet := searchCmd.Flags()
	flagSet.StringP("collection", "c", "", "Mission collection (e.g. SENTINEL-1)")
	flagSet.StringP("product-type", "p", "", "Product type within the collection (e.g. SLC)")
	flagSet.String("orbit-direction", "", "Orbit direction: ASCENDING or DESCENDING")
	flagSet.Float64("cloud-cover", -1, "Maximum cloud cover percentage (0-100)")
	flagSet.String("aoi", "", "Area of interest as a closed-ring WKT POLYGON")
	flagSet.String("start", "", "Acquisition window start (RFC 3339)")
	flagSet.String("end", "", "Acquisition window end (RFC 3339)")
	flagSet.IntP("top", "t", 100, "Maximum number of results (1-1000)")
	flagSet.String("order-by", "", "Sort spec, e.g. 'ContentDate/Start desc'")
	flagSet.StringArray("attribute", nil, "Extended attribute constraint as name=value (repeatable)")
	flagSet.Bool("count", false, "Request the total server-side match count")

	flagSet.String("name", "", "Look up one product by exact name")
	flagSet.String("name-pattern", "", "Search product names by pattern")
	flagSet.String("match-type", "contains", "Pattern match type: exact, contains, startswith, endswith")

	flagSet.Int64("burst-id", -1, "Burst identifier")
	flagSet.String("burst-swath", "", "Burst swath identifier (e.g. IW2)")
	flagSet.String("burst-parent-name", "", "Burst parent product name")
	flagSet.String("burst-parent-type", "", "Burst parent product type")
	flagSet.String("burst-platform", "", "Burst platform serial identifier")
	flagSet.Int64("burst-relative-orbit", -1, "Burst relative orbit number")
	flagSet.String("burst-polarisation", "", "Burst polarisation channels (e.g. VV)")

	rootCmd.AddCommand(searchCmd)
}

func searchMain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	exec := catalog.NewExecutor()

	if name, _ := cmd.Flags().GetString("name"); name != "" {
		result, err := exec.QueryByName(ctx, name)
		if err != nil {
			return err
		}
		return printResult(result)
	}
	if pattern, _ := cmd.Flags().GetString("name-pattern"); pattern != "" {
		matchType, _ := cmd.Flags().GetString("match-type")
		collection, _ := cmd.Flags().GetString("collection")
		top, _ := cmd.Flags().GetInt("top")
		result, err := exec.QueryByNamePattern(ctx, pattern, matchType, collection, top)
		if err != nil {
			return err
		}
		return printResult(result)
	}

	criteria, err := criteriaFromFlags(cmd)
	if err != nil {
		return err
	}
	count, _ := cmd.Flags().GetBool("count")
	query, err := catalog.BuildQuery(criteria, count)
	if err != nil {
		return err
	}
	result, err := exec.Execute(ctx, query)
	if err != nil {
		return err
	}
	return printResult(result)
}

func criteriaFromFlags(cmd *cobra.Command) (*catalog.SearchCriteria, error) {
	flags := cmd.Flags()
	criteria := &catalog.SearchCriteria{}
	criteria.Collection, _ = flags.GetString("collection")
	criteria.ProductType, _ = flags.GetString("product-type")
	criteria.OrbitDirection, _ = flags.GetString("orbit-direction")
	criteria.AOI, _ = flags.GetString("aoi")
	criteria.StartDate, _ = flags.GetString("start")
	criteria.EndDate, _ = flags.GetString("end")
	criteria.Top, _ = flags.GetInt("top")
	criteria.OrderBy, _ = flags.GetString("order-by")

	if cover, _ := flags.GetFloat64("cloud-cover"); cover >= 0 {
		criteria.CloudCoverMax = &cover
	}

	attrSpecs, _ := flags.GetStringArray("attribute")
	for _, spec := range attrSpecs {
		attr, err := parseAttributeSpec(spec)
		if err != nil {
			return nil, err
		}
		criteria.Attributes = append(criteria.Attributes, attr)
	}

	burst := burstFromFlags(cmd)
	if burst != nil {
		criteria.Burst = burst
	}
	return criteria, nil
}

func burstFromFlags(cmd *cobra.Command) *catalog.BurstCriteria {
	flags := cmd.Flags()
	burst := &catalog.BurstCriteria{}
	used := false

	if id, _ := flags.GetInt64("burst-id"); id >= 0 {
		burst.BurstID = &id
		used = true
	}
	if orbit, _ := flags.GetInt64("burst-relative-orbit"); orbit >= 0 {
		burst.RelativeOrbitNumber = &orbit
		used = true
	}
	for flag, field := range map[string]*string{
		"burst-swath":        &burst.SwathIdentifier,
		"burst-parent-name":  &burst.ParentProductName,
		"burst-parent-type":  &burst.ParentProductType,
		"burst-platform":     &burst.PlatformSerialIdentifier,
		"burst-polarisation": &burst.PolarisationChannels,
	} {
		if v, _ := flags.GetString(flag); v != "" {
			*field = v
			used = true
		}
	}
	if !used {
		return nil
	}
	return burst
}

// parseAttributeSpec turns a name=value flag into a typed attribute.  The
// value's type is inferred: integers and floats render as numeric clauses,
// everything else is a string.
func parseAttributeSpec(spec string) (catalog.Attribute, error) {
	parts := strings.SplitN(spec, "=", 2)
	if len(parts) != 2 || parts[0] == "" {
		return catalog.Attribute{}, errors.Errorf("attribute %q must have the form name=value", spec)
	}
	name, raw := parts[0], parts[1]
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return catalog.Attribute{Name: name, Value: catalog.IntegerAttribute(v)}, nil
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return catalog.Attribute{Name: name, Value: catalog.FloatAttribute(v)}, nil
	}
	return catalog.Attribute{Name: name, Value: catalog.StringAttribute(raw)}, nil
}

func printResult(result *catalog.QueryResult) error {
	if outputJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	if result.TotalCount != nil {
		fmt.Printf("Total matches: %d\n", *result.TotalCount)
	}
	if len(result.Records) == 0 {
		fmt.Println("No products found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tSIZE\tSENSED\tID")
	for _, rec := range result.Records {
		sensed := ""
		if !rec.ContentStart.IsZero() {
			sensed = rec.ContentStart.Format("2006-01-02T15:04:05Z")
		}
		fmt.Fprintf(writer, "%s\t%d\t%s\t%s\n", rec.Name, rec.ContentLength, sensed, rec.ID)
	}
	if err := writer.Flush(); err != nil {
		log.Errorln("Failed to flush output:", err)
	}
	return nil
}
