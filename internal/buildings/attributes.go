package buildings

import (
	"encoding/json"
	"hash/fnv"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// Default height range in metres.
const (
	DefaultMinHeight = 10.0
	DefaultMaxHeight = 60.0
)

// Category is a coarse building classification.
type Category string

const (
	Residential Category = "Residential"
	Office      Category = "Office"
	Retail      Category = "Retail"
	Industrial  Category = "Industrial"
	Education   Category = "Education"
	Healthcare  Category = "Healthcare"
	Religious   Category = "Religious"
	Public      Category = "Public"
	Hospitality Category = "Hospitality"
	Transport   Category = "Transport"
	Other       Category = "Other"
)

// DefaultRawType is used when no type property is present.
const DefaultRawType = "other"

// Property lookup order for the stable id and the raw type.
var (
	idKeys   = []string{"id", "osm_id"}
	typeKeys = []string{"building", "building_type", "type", "use", "class"}
)

var categoryTable = map[Category][]string{
	Residential: {"apartments", "residential", "house", "detached", "semidetached_house", "terrace", "dormitory", "bungalow", "cabin", "farm", "houseboat", "static_caravan"},
	Office:      {"office", "commercial"},
	Retail:      {"retail", "supermarket", "kiosk", "shop", "mall"},
	Industrial:  {"industrial", "warehouse", "factory", "manufacture", "hangar", "storage_tank"},
	Education:   {"school", "university", "college", "kindergarten"},
	Healthcare:  {"hospital", "clinic"},
	Religious:   {"church", "cathedral", "chapel", "mosque", "synagogue", "temple", "shrine", "religious"},
	Public:      {"public", "civic", "government", "townhall", "fire_station", "police"},
	Hospitality: {"hotel"},
	Transport:   {"train_station", "transportation", "garage", "garages", "parking", "carport"},
}

var categoryByRawType = func() map[string]Category {
	m := make(map[string]Category)
	for category, values := range categoryTable {
		for _, v := range values {
			m[v] = category
		}
	}
	return m
}()

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{Residential, Office, Retail, Industrial, Education, Healthcare, Religious, Public, Hospitality, Transport, Other}
}

// Hash01 maps s to [0, 1) with 32-bit FNV-1a over its UTF-8 bytes.
func Hash01(s string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return float64(h.Sum32()) / (1 << 32)
}

// DeriveHeight returns a deterministic height in [minHeight, maxHeight) for
// a stable id.
func DeriveHeight(stableID string, minHeight, maxHeight float64) float64 {
	return minHeight + Hash01(stableID)*(maxHeight-minHeight)
}

// StableID resolves the identifier for a matched feature: the feature id,
// then the id and osm_id properties, then position.
func StableID(f *geojson.Feature, position int) string {
	if f != nil {
		if id, ok := formatID(f.ID); ok {
			return id
		}
		for _, key := range idKeys {
			if id, ok := formatID(f.Properties[key]); ok {
				return id
			}
		}
	}
	return strconv.Itoa(position)
}

// Classify returns the category and the normalised raw type of props.
func Classify(props geojson.Properties) (Category, string) {
	raw := DefaultRawType
	for _, key := range typeKeys {
		if s, ok := props[key].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				raw = strings.ToLower(s)
				break
			}
		}
	}

	if category, ok := categoryByRawType[raw]; ok {
		return category, raw
	}
	return Other, raw
}

func formatID(v interface{}) (string, bool) {
	switch id := v.(type) {
	case string:
		if id == "" {
			return "", false
		}
		return id, true
	case float64:
		if math.IsNaN(id) || math.IsInf(id, 0) {
			return "", false
		}
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case float32:
		return formatID(float64(id))
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case uint64:
		return strconv.FormatUint(id, 10), true
	case json.Number:
		if id == "" {
			return "", false
		}
		return id.String(), true
	default:
		return "", false
	}
}
