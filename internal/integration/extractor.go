package integration

import (
	"bytes"
	"fmt"
	"math"
	"mime"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/PuerkitoBio/goquery"
	"github.com/abelzeko/nuclear-bot/internal/entities"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Extractor turns one source payload into a normalized plant snapshot
type Extractor interface {
	Extract(body []byte, plant entities.PlantDescriptor, fetchedAt time.Time) (*entities.PlantSnapshot, error)
}

// EmbeddedJSONExtractor reads production data from JSON script blocks inside an HTML page
type EmbeddedJSONExtractor struct {
	logger *zap.Logger
}

// NewEmbeddedJSONExtractor creates an HTML-embedded-JSON extractor
func NewEmbeddedJSONExtractor(logger *zap.Logger) *EmbeddedJSONExtractor {
	return &EmbeddedJSONExtractor{logger: logger}
}

// embeddedProduction is the production block found on a plant page
type embeddedProduction struct {
	timestamp  gjson.Result
	powerPlant string
	entries    gjson.Result
}

// Extract scans the page for the production block of the given plant
func (e *EmbeddedJSONExtractor) Extract(body []byte, plant entities.PlantDescriptor, fetchedAt time.Time) (*entities.PlantSnapshot, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, entities.ExtractionFailed(plant.Key, fmt.Errorf("failed to parse the webpage: %w", err))
	}

	block, candidates := e.findBlock(doc, plant)
	if block == nil {
		return nil, entities.ExtractionFailed(plant.Key,
			fmt.Errorf("no production block for %q among %d json script blocks", plant.CanonicalName(), candidates))
	}

	readings := normalizeEntries(block.entries, plant, e.logger)
	if len(readings) == 0 {
		return nil, entities.ExtractionFailed(plant.Key, fmt.Errorf("production block for %q has no usable reactor entries", block.powerPlant))
	}

	return &entities.PlantSnapshot{
		Plant:      plant.Key,
		PowerPlant: block.powerPlant,
		Timestamp:  parseTimestamp(block.timestamp, fetchedAt, e.logger),
		Readings:   readings,
	}, nil
}

// findBlock returns the first JSON script block describing the plant, and how many JSON blocks were seen
func (e *EmbeddedJSONExtractor) findBlock(doc *goquery.Document, plant entities.PlantDescriptor) (*embeddedProduction, int) {
	var found *embeddedProduction
	candidates := 0

	doc.Find("script[type]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if !isJSONScript(s.AttrOr("type", "")) {
			return true
		}
		candidates++

		raw := strings.TrimSpace(s.Text())
		if !gjson.Valid(raw) {
			e.logger.Debug("Skipping script block with invalid JSON",
				zap.String("plant", plant.Key), zap.Int("block", i))
			return true
		}

		parsed := gjson.Parse(raw)
		name := parsed.Get("powerPlant")
		entries := parsed.Get("blockProductionDataList")
		if name.Type != gjson.String || !entries.IsArray() {
			return true
		}
		if !strings.EqualFold(strings.TrimSpace(name.String()), plant.CanonicalName()) {
			return true
		}

		found = &embeddedProduction{
			timestamp:  parsed.Get("timestamp"),
			powerPlant: name.String(),
			entries:    entries,
		}
		return false
	})

	return found, candidates
}

// isJSONScript reports whether a script type attribute declares JSON content
func isJSONScript(typ string) bool {
	mediaType, _, err := mime.ParseMediaType(typ)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// normalizeEntries converts the per-reactor list, skipping entries that cannot be used
func normalizeEntries(list gjson.Result, plant entities.PlantDescriptor, logger *zap.Logger) []entities.ReactorReading {
	byReactor := make(map[string]entities.ReactorReading)
	index := -1

	list.ForEach(func(_, entry gjson.Result) bool {
		index++
		skip := func(reason string) bool {
			logger.Warn("Skipping production entry",
				zap.String("plant", plant.Key),
				zap.Int("index", index),
				zap.String("reason", reason))
			return true
		}

		if !entry.IsObject() {
			return skip("entry is not an object")
		}
		name := entry.Get("name")
		if name.Type != gjson.String || strings.TrimSpace(name.String()) == "" {
			return skip("entry has no reactor name")
		}
		reactor, ok := matchReactor(plant, name.String())
		if !ok {
			return skip(fmt.Sprintf("reactor %q is not part of the plant", name.String()))
		}
		if _, dup := byReactor[reactor]; dup {
			return skip(fmt.Sprintf("duplicate entry for reactor %q", reactor))
		}
		output, ok := numeric(entry.Get("production"))
		if !ok {
			return skip(fmt.Sprintf("reactor %q has no numeric production", reactor))
		}

		byReactor[reactor] = newReading(plant, reactor, output, stringField(entry.Get("valueDate")))
		return true
	})

	readings := make([]entities.ReactorReading, 0, len(byReactor))
	for _, id := range plant.Reactors {
		if r, ok := byReactor[id]; ok {
			readings = append(readings, r)
		}
	}
	return readings
}

// APIExtractor reads the single instantaneous value of a one-reactor JSON endpoint
type APIExtractor struct {
	logger *zap.Logger
}

// NewAPIExtractor creates a JSON-API extractor
func NewAPIExtractor(logger *zap.Logger) *APIExtractor {
	return &APIExtractor{logger: logger}
}

// Extract parses the API response into a one-reactor snapshot
func (a *APIExtractor) Extract(body []byte, plant entities.PlantDescriptor, fetchedAt time.Time) (*entities.PlantSnapshot, error) {
	if len(plant.Reactors) != 1 {
		return nil, entities.ExtractionFailed(plant.Key, fmt.Errorf("api source needs exactly one reactor, plant lists %d", len(plant.Reactors)))
	}
	if !gjson.ValidBytes(body) {
		return nil, entities.ExtractionFailed(plant.Key, fmt.Errorf("response is not valid JSON"))
	}

	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, entities.ExtractionFailed(plant.Key, fmt.Errorf("response is not a JSON object"))
	}

	value := doc.Get("value")
	output, ok := numeric(value)
	if !ok {
		return nil, entities.ExtractionFailed(plant.Key, fmt.Errorf("field \"value\" is missing or not numeric: %s", value.Raw))
	}

	reactor := plant.Reactors[0]
	a.logger.Debug("Parsed reactor output",
		zap.String("plant", plant.Key), zap.String("reactor", reactor), zap.Float64("output", output))

	return &entities.PlantSnapshot{
		Plant:      plant.Key,
		PowerPlant: plant.Name,
		Timestamp:  parseTimestamp(doc.Get("timestamp"), fetchedAt, a.logger),
		Readings:   []entities.ReactorReading{newReading(plant, reactor, output, stringField(doc.Get("valueDate")))},
	}, nil
}

func newReading(plant entities.PlantDescriptor, reactor string, output float64, valueDate string) entities.ReactorReading {
	r := entities.ReactorReading{
		Reactor:   reactor,
		Output:    output,
		ValueDate: valueDate,
		Unit:      entities.UnitMegawatt,
	}
	if capacity, ok := plant.RatedCapacity(reactor); ok {
		r.Percent = entities.PercentOfCapacity(output, capacity)
	}
	return r
}

// matchReactor maps a source reactor name onto the descriptor's reactor id
func matchReactor(plant entities.PlantDescriptor, name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, id := range plant.Reactors {
		if strings.EqualFold(id, name) {
			return id, true
		}
	}
	return "", false
}

// numeric reads a JSON number, or a string holding one; anything else is absent
func numeric(v gjson.Result) (float64, bool) {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Float()
	case gjson.String:
		s := strings.ReplaceAll(strings.TrimSpace(v.String()), ",", ".")
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func stringField(v gjson.Result) string {
	if v.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(v.String())
}

// Offset-carrying layouts
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05-0700",
}

// Zone-less layouts, read as Swedish local time
var localTimestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

var sourceLocation = mustLoadLocation("Europe/Stockholm")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// parseTimestamp reads a source timestamp, falling back to the fetch time
func parseTimestamp(v gjson.Result, fallback time.Time, logger *zap.Logger) time.Time {
	switch v.Type {
	case gjson.String:
		s := strings.TrimSpace(v.String())
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
		for _, layout := range localTimestampLayouts {
			if t, err := time.ParseInLocation(layout, s, sourceLocation); err == nil {
				return t
			}
		}
	case gjson.Number:
		n := v.Int()
		if n <= 0 {
			break
		}
		// Values this large are epoch milliseconds
		if n > 1e10 {
			return time.UnixMilli(n).UTC()
		}
		return time.Unix(n, 0).UTC()
	case gjson.Null:
		return fallback
	}
	if v.Exists() {
		logger.Debug("Discarding unparseable source timestamp",
			zap.String("timestamp", v.Raw), zap.Time("fallback", fallback))
	}
	return fallback
}
