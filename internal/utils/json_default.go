//go:build !sonic

package utils

import (
	"io"

	"github.com/goccy/go-json"
)

var JSONMarshal = json.Marshal
var JSONUnmarshal = json.Unmarshal

// JSONEncodeIndent writes v as indented JSON followed by a newline.
func JSONEncodeIndent(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(v)
}

func JSONDecode(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}
