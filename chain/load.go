package chain

import (
	"encoding/json"
	"os"
)

// Load reads a chain from a JSON file and validates it. The file holds an
// array of slices in the same shape the HTTP API accepts.
func Load(filename string) (Chain, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var ch Chain
	if err := json.Unmarshal(file, &ch); err != nil {
		return nil, err
	}
	if err := ch.Validate(); err != nil {
		return nil, err
	}
	return ch, nil
}
