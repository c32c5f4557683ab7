package domain

import "fmt"

// ProcessingMode controls which document types a processing pass attempts.
type ProcessingMode string

const (
	// ModeSmart detects document types first and falls back to the common
	// set when detection fails.
	ModeSmart ProcessingMode = "smart"
	// ModeFast skips detection and extracts only the common set.
	ModeFast ProcessingMode = "fast"
	// ModeExtractAll attempts every supported type and merges non-empty
	// results.
	ModeExtractAll ProcessingMode = "extract_all"
	// ModeDetectOnly runs detection and stops; detection failure is fatal.
	ModeDetectOnly ProcessingMode = "detect_only"
)

func ParseProcessingMode(raw string) (ProcessingMode, error) {
	switch ProcessingMode(raw) {
	case ModeSmart, ModeFast, ModeExtractAll, ModeDetectOnly:
		return ProcessingMode(raw), nil
	case "":
		return ModeSmart, nil
	default:
		return "", WrapError(ErrValidation, "parse processing mode", fmt.Errorf("unknown mode %q", raw))
	}
}
