package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

type entry struct {
	code2   string   // ISO 639-1 (2-letter)
	code3   string   // ISO 639-2 primary (3-letter)
	alt3    string   // ISO 639-2 alternate (e.g. "fre" vs "fra")
	display string   // Human-readable name
	words   []string // Full word forms (e.g. "english")
}

// Languages the recorder companion is commonly configured with. Anything
// else falls through to BCP 47 parsing.
var languages = []entry{
	{"en", "eng", "", "English", []string{"english"}},
	{"es", "spa", "", "Spanish", []string{"spanish"}},
	{"fr", "fra", "fre", "French", []string{"french"}},
	{"de", "deu", "ger", "German", []string{"german"}},
	{"it", "ita", "", "Italian", []string{"italian"}},
	{"pt", "por", "", "Portuguese", []string{"portuguese"}},
	{"ja", "jpn", "", "Japanese", []string{"japanese"}},
	{"zh", "zho", "chi", "Chinese", []string{"chinese"}},
	{"nl", "nld", "dut", "Dutch", []string{"dutch"}},
	{"pl", "pol", "", "Polish", []string{"polish"}},
}

var (
	byCode2 map[string]*entry
	byCode3 map[string]*entry
	byWord  map[string]*entry
)

func init() {
	byCode2 = make(map[string]*entry, len(languages))
	byCode3 = make(map[string]*entry, len(languages)*2)
	byWord = make(map[string]*entry, len(languages))
	for i := range languages {
		e := &languages[i]
		byCode2[e.code2] = e
		byCode3[e.code3] = e
		if e.alt3 != "" {
			byCode3[e.alt3] = e
		}
		for _, w := range e.words {
			byWord[w] = e
		}
	}
}

func lookup(code string) *entry {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil
	}
	if e, ok := byCode2[code]; ok {
		return e
	}
	if e, ok := byCode3[code]; ok {
		return e
	}
	if e, ok := byWord[code]; ok {
		return e
	}
	return nil
}

// IsAuto reports whether code asks the transcription engine to detect the
// spoken language itself.
func IsAuto(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	return code == "" || code == "auto"
}

// ToISO2 converts a language code, BCP 47 tag, or word form to ISO 639-1.
// Regions and scripts are dropped ("pt-BR" becomes "pt"). Returns an empty
// string for "auto" and for unrecognized input.
func ToISO2(code string) string {
	if IsAuto(code) {
		return ""
	}
	if e := lookup(code); e != nil {
		return e.code2
	}
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return ""
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return ""
	}
	if s := base.String(); len(s) == 2 {
		return s
	}
	return ""
}

// DisplayName returns a human-readable English language name.
// Returns "Auto-detect" for "auto", or the uppercased input when it cannot be
// parsed.
func DisplayName(code string) string {
	if IsAuto(code) {
		return "Auto-detect"
	}
	if e := lookup(code); e != nil {
		return e.display
	}
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return strings.ToUpper(strings.TrimSpace(code))
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return strings.ToUpper(strings.TrimSpace(code))
}
