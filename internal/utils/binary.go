package utils

import (
	"io"
	"os"
)

// classificationSniffLength is the number of leading bytes examined when
// deciding whether a file holds text.
const classificationSniffLength = 1024

// IsTextContent reports whether the provided leading bytes look like decodable
// text. Empty content counts as text.
func IsTextContent(prefix []byte) bool {
	if len(prefix) == 0 {
		return true
	}
	for _, byteValue := range prefix {
		if byteValue == 0x00 || byteValue == 0xff {
			return false
		}
	}
	_, decodable := DecodeText(prefix)
	return decodable
}

// IsTextFile reads up to classificationSniffLength bytes from the file at path
// and reports whether the content appears to be text rather than binary.
func IsTextFile(path string) bool {
	fileHandle, openError := os.Open(path)
	if openError != nil {
		return false
	}
	defer fileHandle.Close()

	buffer := make([]byte, classificationSniffLength)
	bytesRead, readError := fileHandle.Read(buffer)
	if readError != nil && readError != io.EOF {
		return false
	}
	return IsTextContent(buffer[:bytesRead])
}
