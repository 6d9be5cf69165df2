package output

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Version is the source map version
const Version = 3

// Segment represents a segment in a source map line
type Segment struct {
	Col0        int
	SourceURL   string
	SourceLine0 int
	SourceCol0  int
}

// SourceMap represents a source map
type SourceMap struct {
	Version        int       `json:"version"`
	File           string    `json:"file"`
	SourceRoot     string    `json:"sourceRoot"`
	Sources        []string  `json:"sources"`
	SourcesContent []*string `json:"sourcesContent"`
	Mappings       string    `json:"mappings"`
}

// SourceMapGenerator generates source maps
type SourceMapGenerator struct {
	sourcesContent map[string]*string
	lines          [][]Segment
	lastCol0       int
	hasMappings    bool
	file           string
}

// NewSourceMapGenerator creates a new SourceMapGenerator
func NewSourceMapGenerator(file string) *SourceMapGenerator {
	return &SourceMapGenerator{
		sourcesContent: make(map[string]*string),
		file:           file,
	}
}

// AddSource adds a source file to the source map.
// The content is nil when it is expected to be loaded using the URL.
func (smg *SourceMapGenerator) AddSource(url string, content *string) *SourceMapGenerator {
	if _, exists := smg.sourcesContent[url]; !exists {
		smg.sourcesContent[url] = content
	}
	return smg
}

// AddLine adds a new line to the source map
func (smg *SourceMapGenerator) AddLine() *SourceMapGenerator {
	smg.lines = append(smg.lines, []Segment{})
	smg.lastCol0 = 0
	return smg
}

// AddMapping adds a mapping to the current line
func (smg *SourceMapGenerator) AddMapping(col0 int, sourceURL string, sourceLine0, sourceCol0 int) error {
	if len(smg.lines) == 0 {
		return fmt.Errorf("a line must be added before mappings can be added")
	}
	if _, exists := smg.sourcesContent[sourceURL]; !exists {
		return fmt.Errorf("unknown source file %q", sourceURL)
	}
	if col0 < smg.lastCol0 {
		return fmt.Errorf("mapping should be added in output order")
	}

	smg.hasMappings = true
	smg.lastCol0 = col0
	current := &smg.lines[len(smg.lines)-1]
	*current = append(*current, Segment{
		Col0:        col0,
		SourceURL:   sourceURL,
		SourceLine0: sourceLine0,
		SourceCol0:  sourceCol0,
	})
	return nil
}

// ToJSON builds the source map, or returns nil when nothing was mapped.
func (smg *SourceMapGenerator) ToJSON() *SourceMap {
	if !smg.hasMappings {
		return nil
	}

	sources := make([]string, 0, len(smg.sourcesContent))
	for url := range smg.sourcesContent {
		sources = append(sources, url)
	}
	sort.Strings(sources)

	sourcesIndex := make(map[string]int, len(sources))
	sourcesContent := make([]*string, 0, len(sources))
	for i, url := range sources {
		sourcesIndex[url] = i
		sourcesContent = append(sourcesContent, smg.sourcesContent[url])
	}

	lastSourceIndex := 0
	lastSourceLine0 := 0
	lastSourceCol0 := 0

	lineStrs := make([]string, 0, len(smg.lines))
	for _, segments := range smg.lines {
		lastCol0 := 0
		var b strings.Builder
		for i, segment := range segments {
			if i > 0 {
				b.WriteByte(',')
			}
			// zero-based starting column of the line in the generated code
			b.WriteString(toBase64VLQ(segment.Col0 - lastCol0))
			lastCol0 = segment.Col0
			// zero-based index into the "sources" list
			sourceIndex := sourcesIndex[segment.SourceURL]
			b.WriteString(toBase64VLQ(sourceIndex - lastSourceIndex))
			lastSourceIndex = sourceIndex
			// zero-based starting line and column in the template
			b.WriteString(toBase64VLQ(segment.SourceLine0 - lastSourceLine0))
			lastSourceLine0 = segment.SourceLine0
			b.WriteString(toBase64VLQ(segment.SourceCol0 - lastSourceCol0))
			lastSourceCol0 = segment.SourceCol0
		}
		lineStrs = append(lineStrs, b.String())
	}

	return &SourceMap{
		Version:        Version,
		File:           smg.file,
		Sources:        sources,
		SourcesContent: sourcesContent,
		Mappings:       strings.Join(lineStrs, ";"),
	}
}

// Marshal encodes the source map as indented JSON.
func (sm *SourceMap) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(sm, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

var atCall = regexp.MustCompile(`^\s*out\.At\((\d+), (\d+)\)$`)

// MapGenerated maps every line of formatted generated code that follows an
// out.At(line, col) annotation back to that template position. Lines
// before the first annotation of a function body stay unmapped.
func MapGenerated(genFile, templateURL string, templateContent *string, generated string) *SourceMap {
	smg := NewSourceMapGenerator(genFile).AddSource(templateURL, templateContent)
	line0, col0 := -1, -1
	for _, text := range strings.Split(strings.TrimSuffix(generated, "\n"), "\n") {
		smg.AddLine()
		if strings.HasPrefix(text, "}") || strings.HasPrefix(text, "func ") {
			line0, col0 = -1, -1
		}
		if m := atCall.FindStringSubmatch(text); m != nil {
			line, _ := strconv.Atoi(m[1])
			col, _ := strconv.Atoi(m[2])
			line0, col0 = line-1, col-1
		}
		if line0 < 0 || strings.TrimSpace(text) == "" {
			continue
		}
		indent := len(text) - len(strings.TrimLeft(text, "\t "))
		// Segments are added in output order with a known source, so the
		// generator cannot reject them.
		_ = smg.AddMapping(indent, templateURL, line0, col0)
	}
	return smg.ToJSON()
}

// toBase64VLQ converts a number to base64 VLQ encoding
func toBase64VLQ(value int) string {
	if value < 0 {
		value = (-value << 1) + 1
	} else {
		value = value << 1
	}

	var out []byte
	for {
		digit := value & 31
		value = value >> 5
		if value > 0 {
			digit = digit | 32
		}
		out = append(out, toBase64Digit(digit))
		if value == 0 {
			break
		}
	}

	return string(out)
}

const b64Digits = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// toBase64Digit converts a value to a base64 digit
func toBase64Digit(value int) byte {
	if value < 0 || value >= 64 {
		panic(fmt.Sprintf("can only encode value in the range [0, 63], got %d", value))
	}
	return b64Digits[value]
}
