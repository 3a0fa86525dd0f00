package store

import (
	"encoding/json"

	"github.com/heysubinoy/flagstore/pkg/flags"
)

// encodeFlag and decodeFlag are the only place the stored representation
// of a flag is defined.
func encodeFlag(f flags.Flag) (string, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeFlag(data string) (flags.Flag, error) {
	var f flags.Flag
	err := json.Unmarshal([]byte(data), &f)
	return f, err
}
