package utils

import (
	"errors"
	"os"
	"runtime"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// ErrUndecodableContent signals that no supported text encoding accepted the content.
var ErrUndecodableContent = errors.New("unable to decode file with available encodings")

const windowsOperatingSystemName = "windows"

// textEncoding pairs an encoding name with its decoder source. A nil encoding
// means strict UTF-8 validation without transformation.
type textEncoding struct {
	name     string
	encoding encoding.Encoding
}

// supportedTextEncodings returns the decode priority list. Latin-1 accepts any
// byte sequence, so it terminates the walk for content the stricter encodings
// reject.
func supportedTextEncodings() []textEncoding {
	supported := []textEncoding{
		{name: "utf-8", encoding: nil},
		{name: "utf-8-bom", encoding: unicode.UTF8BOM},
		{name: "utf-16", encoding: unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)},
		{name: "utf-16le", encoding: unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)},
		{name: "latin-1", encoding: charmap.ISO8859_1},
	}
	if runtime.GOOS == windowsOperatingSystemName {
		supported = append(supported, textEncoding{name: "windows-1252", encoding: charmap.Windows1252})
	}
	return supported
}

// DecodeText decodes data using the first encoding in the priority list that
// accepts it without substitutions.
func DecodeText(data []byte) (string, bool) {
	for _, candidate := range supportedTextEncodings() {
		decoded, decodeError := decodeWith(candidate, data)
		if decodeError == nil {
			return decoded, true
		}
	}
	return "", false
}

func decodeWith(candidate textEncoding, data []byte) (string, error) {
	if candidate.encoding == nil {
		if !utf8.Valid(data) {
			return "", ErrUndecodableContent
		}
		return string(data), nil
	}
	decodedBytes, decodeError := candidate.encoding.NewDecoder().Bytes(data)
	if decodeError != nil {
		return "", decodeError
	}
	decoded := string(decodedBytes)
	// The x/text decoders substitute U+FFFD for input they cannot map instead
	// of failing; treat a substitution as a rejected decode so the next
	// encoding gets a chance.
	if strings.ContainsRune(decoded, utf8.RuneError) {
		return "", ErrUndecodableContent
	}
	return decoded, nil
}

// ReadTextFile reads the file at path and decodes it with the supported
// encodings. It returns ErrUndecodableContent when every encoding rejects the
// content and the underlying read error when the file cannot be read.
func ReadTextFile(path string) (string, error) {
	rawContent, readError := os.ReadFile(path)
	if readError != nil {
		return "", readError
	}
	decoded, decodable := DecodeText(rawContent)
	if !decodable {
		return "", ErrUndecodableContent
	}
	return decoded, nil
}
