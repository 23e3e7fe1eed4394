package metadata

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/ianaindex"

	"github.com/starford/beamline/internal/apperr"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// declEncodingRe finds the encoding pseudo-attribute of the XML declaration.
var declEncodingRe = regexp.MustCompile(`\A\s*<\?xml[^>]*?\bencoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

// Decode returns the document as UTF-8. A leading byte-order mark is dropped,
// and a document declaring another charset is transcoded with its declaration
// rewritten to name UTF-8.
func Decode(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	m := declEncodingRe.FindSubmatchIndex(data)
	if m == nil {
		return data, nil
	}
	name := string(data[m[2]:m[3]])
	if isUTF8(name) {
		return data, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("%w: unsupported charset %q", apperr.ErrMalformed, name)
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", apperr.ErrMalformed, name, err)
	}

	// The declaration is ASCII in every IANA charset we accept, so the match
	// offsets still apply after transcoding.
	m = declEncodingRe.FindSubmatchIndex(decoded)
	if m == nil {
		return decoded, nil
	}
	var out bytes.Buffer
	out.Grow(len(decoded))
	out.Write(decoded[:m[2]])
	out.WriteString("UTF-8")
	out.Write(decoded[m[3]:])
	return out.Bytes(), nil
}

func isUTF8(name string) bool {
	n := strings.ToLower(name)
	return n == "utf-8" || n == "utf8"
}
