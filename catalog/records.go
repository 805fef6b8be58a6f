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
	"encoding/json"
	"fmt"
	"time"
)

type (
	// AttributeRecord is one name/type/value triple attached to a catalog
	// entry.  Values are kept in their textual form; Type names the remote
	// schema's attribute collection (String, Integer, Double, DateTimeOffset).
	AttributeRecord struct {
		Name  string
		Type  string
		Value string
	}

	// ProductRecord is one catalog entry.  StorePath is empty for entries
	// the caller has no direct object-store rights to.  Records are
	// immutable once produced by the executor.
	ProductRecord struct {
		ID            string
		Name          string
		ContentLength int64
		StorePath     string
		ContentStart  time.Time
		ContentEnd    time.Time
		Attributes    []AttributeRecord
	}

	// QueryResult is one page of records plus, when requested, the
	// server-reported total match count.  TotalCount being non-nil and
	// larger than len(Records) means the page was capped by the result cap.
	QueryResult struct {
		Records    []ProductRecord
		TotalCount *int64
	}
)

// Wire forms of the catalog response.
type (
	attributeWire struct {
		Name      string      `json:"Name"`
		Value     interface{} `json:"Value"`
		ValueType string      `json:"ValueType"`
	}

	contentDateWire struct {
		Start time.Time `json:"Start"`
		End   time.Time `json:"End"`
	}

	productWire struct {
		ID            string          `json:"Id"`
		Name          string          `json:"Name"`
		ContentLength int64           `json:"ContentLength"`
		S3Path        string          `json:"S3Path"`
		ContentDate   contentDateWire `json:"ContentDate"`
		Attributes    []attributeWire `json:"Attributes"`
	}

	queryResponseWire struct {
		Count *int64        `json:"@odata.count"`
		Value []productWire `json:"value"`
	}
)

func (w productWire) toRecord() ProductRecord {
	rec := ProductRecord{
		ID:            w.ID,
		Name:          w.Name,
		ContentLength: w.ContentLength,
		StorePath:     w.S3Path,
		ContentStart:  w.ContentDate.Start,
		ContentEnd:    w.ContentDate.End,
	}
	for _, attr := range w.Attributes {
		rec.Attributes = append(rec.Attributes, AttributeRecord{
			Name:  attr.Name,
			Type:  attr.ValueType,
			Value: attributeValueText(attr.Value),
		})
	}
	return rec
}

// attributeValueText normalizes a decoded JSON attribute value to text.
// Integer-typed attributes arrive as float64 from encoding/json; render
// them without a fractional part when they are whole numbers.
func attributeValueText(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	case nil:
		return ""
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(raw)
	}
}
