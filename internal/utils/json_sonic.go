//go:build sonic

package utils

import (
	"io"

	"github.com/bytedance/sonic"
)

var JSONMarshal = sonic.Marshal
var JSONUnmarshal = sonic.Unmarshal

// JSONEncodeIndent writes v as indented JSON followed by a newline.
func JSONEncodeIndent(w io.Writer, v any) error {
	enc := sonic.ConfigStd.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(v)
}

func JSONDecode(r io.Reader, v any) error {
	return sonic.ConfigStd.NewDecoder(r).Decode(v)
}
