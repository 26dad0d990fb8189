package recipient

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jwalitptl/campaign-api/internal/model"
	"github.com/jwalitptl/campaign-api/pkg/errors"
)

// Columns with a dedicated recipient field. They never land in custom data.
const (
	FieldPhoneNumber = "phone_number"
	FieldName        = "name"
	FieldEmail       = "email"
)

var reservedFields = map[string]struct{}{
	FieldPhoneNumber: {},
	FieldName:        {},
	FieldEmail:       {},
}

// ExtractCustomData keeps the non-reserved entries of record whose trimmed
// value is non-empty. It returns nil when nothing is left. Keys that collide
// once trimmed resolve to the first in sorted order.
func ExtractCustomData(record map[string]string, reserved map[string]struct{}) model.CustomData {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out model.CustomData
	for _, k := range keys {
		v := record[k]
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		if _, ok := reserved[key]; ok {
			continue
		}
		val := strings.TrimSpace(v)
		if val == "" {
			continue
		}
		if _, taken := out[key]; taken {
			continue
		}
		if out == nil {
			out = make(model.CustomData)
		}
		out[key] = val
	}
	return out
}

// customDataFromJSON flattens a decoded JSON object into custom data.
// Scalars are stringified; nested objects and arrays are rejected.
func customDataFromJSON(raw map[string]interface{}) (model.CustomData, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	record := make(map[string]string, len(raw))
	keys := make(map[string]string, len(raw))
	for k, v := range raw {
		key := strings.TrimSpace(k)
		if other, dup := keys[key]; dup && key != "" {
			return nil, errors.Validation("custom_data",
				fmt.Sprintf("custom_data keys %q and %q are the same once trimmed", other, k))
		}
		keys[key] = k

		switch val := v.(type) {
		case nil:
		case string:
			record[k] = val
		case bool:
			record[k] = strconv.FormatBool(val)
		case float64:
			record[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case json.Number:
			record[k] = val.String()
		default:
			return nil, errors.Validation("custom_data",
				fmt.Sprintf("custom_data value for %q must be a string, number or boolean", k))
		}
	}
	return ExtractCustomData(record, reservedFields), nil
}
