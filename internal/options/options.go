// Package options decodes free-form option maps from configuration into
// typed structs.
package options

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Decode copies in onto out, which must be a pointer to a struct with
// mapstructure tags. Strings are converted to numbers, booleans and
// durations where the target field requires it. Unknown keys are an error.
func Decode(in map[string]any, out any) error {
	if len(in) == 0 {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("options decoder: %w", err)
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}
	return nil
}
