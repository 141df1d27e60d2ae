package pacs

import "strings"

// FilterConfig narrows extracted studies by anatomical region and
// modality class. An absent axis disables that predicate entirely.
type FilterConfig struct {
	// Keys into the region keyword table, e.g. "shoulder", "spine".
	Regions []string
	// Modality classes, e.g. "xr", "ct", "mr".
	Modalities []string
	// When false (the default), a description whose leading token
	// matches no known modality code at all is still accepted whenever
	// the X-ray class is selected: unlabeled studies are usually plain
	// film.
	StrictModality bool
}

// Case-insensitive substring keywords per anatomical region.
var regionKeywords = map[string][]string{
	"shoulder": {"shoulder", "clavicle", "ac joint", "scapula", "humerus"},
	"elbow":    {"elbow", "forearm", "radius", "ulna"},
	"hand":     {"hand", "wrist", "finger", "thumb", "carpal"},
	"hip":      {"hip", "pelvis", "femur", "acetab"},
	"knee":     {"knee", "patella", "tibia", "fibula"},
	"foot":     {"foot", "ankle", "toe", "calcaneus", "tarsal"},
	"spine":    {"spine", "cervical", "thoracic", "lumbar", "sacrum", "coccyx", "scoliosis"},
}

// Modality codes a description's leading token can carry, per class.
var modalityCodes = map[string][]string{
	"xr": {"XR", "CR", "DX", "DR", "RF", "XA"},
	"ct": {"CT"},
	"mr": {"MR", "MRI"},
	"us": {"US"},
	"nm": {"NM", "PT", "PET"},
}

// FilterStudies applies the region and modality predicates in sequence.
func FilterStudies(studies []StudyRecord, cfg FilterConfig) []StudyRecord {
	var kept []StudyRecord
	for _, study := range studies {
		if !matchesRegion(study.Description, cfg.Regions) {
			continue
		}
		if !matchesModality(study.Description, cfg) {
			continue
		}
		kept = append(kept, study)
	}
	return kept
}

func matchesRegion(description string, regions []string) bool {
	if len(regions) == 0 {
		return true
	}
	description = strings.ToLower(description)
	for _, region := range regions {
		for _, keyword := range regionKeywords[strings.ToLower(region)] {
			if strings.Contains(description, keyword) {
				return true
			}
		}
	}
	return false
}

func matchesModality(description string, cfg FilterConfig) bool {
	if len(cfg.Modalities) == 0 {
		return true
	}

	leading := leadingToken(description)
	class := classifyModality(leading)

	if class == "" {
		// Unlabeled description: accept as probable plain film when the
		// X-ray class is in play.
		if cfg.StrictModality {
			return false
		}
		for _, m := range cfg.Modalities {
			if strings.EqualFold(m, "xr") {
				return true
			}
		}
		return false
	}

	for _, m := range cfg.Modalities {
		if strings.EqualFold(m, class) {
			return true
		}
	}
	return false
}

func leadingToken(description string) string {
	fields := strings.Fields(strings.TrimSpace(description))
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(strings.Trim(fields[0], ".:,-"))
}

func classifyModality(token string) string {
	if token == "" {
		return ""
	}
	for class, codes := range modalityCodes {
		for _, code := range codes {
			if token == code {
				return class
			}
		}
	}
	return ""
}
