package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tidwall/pretty"
)

// WriteJSON writes v as indented JSON with sorted keys.
func WriteJSON(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	opts := *pretty.DefaultOptions
	opts.SortKeys = true
	_, err = w.Write(pretty.PrettyOptions(data, &opts))
	return err
}
