package classifier

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmptyKeywords is returned when a keyword file defines no usable data.
var ErrEmptyKeywords = errors.New("classifier: keyword set is empty")

// Keywords is the data that drives classification. It is plain data so it can
// be loaded from a file and tested apart from the scheduler.
type Keywords struct {
	// Capture phrases select the capture-device task (case-insensitive substring).
	Capture []string `yaml:"capture"`
	// Web phrases select the fetch task (case-insensitive substring).
	Web []string `yaml:"web"`
	// URLSchemes also select the fetch task when present anywhere in the text.
	URLSchemes []string `yaml:"url_schemes"`
	// CommandPrefix marks a command when it leads the trimmed text.
	CommandPrefix string `yaml:"command_prefix"`
}

// DefaultKeywords returns the built-in keyword set.
func DefaultKeywords() Keywords {
	return Keywords{
		Capture: []string{
			"take a photo",
			"take a picture",
			"take a pic",
			"snap a photo",
			"screenshot",
			"webcam",
			"camera",
			"selfie",
		},
		Web: []string{
			"search for",
			"search the web",
			"look up",
			"google",
			"browse",
			"website",
			"web page",
			"webpage",
			"latest news",
			"weather",
		},
		URLSchemes:    []string{"http://", "https://", "www."},
		CommandPrefix: "/",
	}
}

// normalized lower-cases and trims every phrase, dropping blanks.
func (k Keywords) normalized() Keywords {
	return Keywords{
		Capture:       normalizePhrases(k.Capture),
		Web:           normalizePhrases(k.Web),
		URLSchemes:    normalizePhrases(k.URLSchemes),
		CommandPrefix: strings.TrimSpace(k.CommandPrefix),
	}
}

func normalizePhrases(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadKeywords parses a YAML keyword document. Sections left out of the
// document keep their default values.
func LoadKeywords(r io.Reader) (Keywords, error) {
	var doc struct {
		Capture       *[]string `yaml:"capture"`
		Web           *[]string `yaml:"web"`
		URLSchemes    *[]string `yaml:"url_schemes"`
		CommandPrefix *string   `yaml:"command_prefix"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Keywords{}, ErrEmptyKeywords
		}
		return Keywords{}, fmt.Errorf("classifier: decode keywords: %w", err)
	}
	kw := DefaultKeywords()
	if doc.Capture != nil {
		kw.Capture = *doc.Capture
	}
	if doc.Web != nil {
		kw.Web = *doc.Web
	}
	if doc.URLSchemes != nil {
		kw.URLSchemes = *doc.URLSchemes
	}
	if doc.CommandPrefix != nil {
		kw.CommandPrefix = *doc.CommandPrefix
	}
	n := kw.normalized()
	if len(n.Capture) == 0 && len(n.Web) == 0 && len(n.URLSchemes) == 0 && n.CommandPrefix == "" {
		return Keywords{}, ErrEmptyKeywords
	}
	return kw, nil
}

// LoadKeywordsFile reads a YAML keyword file from disk.
func LoadKeywordsFile(path string) (Keywords, error) {
	f, err := os.Open(path)
	if err != nil {
		return Keywords{}, fmt.Errorf("classifier: open keywords: %w", err)
	}
	defer f.Close()
	return LoadKeywords(f)
}
