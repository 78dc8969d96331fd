package kml

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/encoding/htmlindex"

	"kmlstore/pkg/apperr"
	"kmlstore/pkg/log"
)

const (
	// compressionLevel is fixed so the stored length of a given logical
	// document is reproducible across uploads.
	compressionLevel = 5

	// MultipartOverhead is the slack added to the declared content length
	// check. The multipart boundary is chosen by the client so the exact
	// overhead is unknown, 1 KiB covers it. The goal of the declared check
	// is to reject huge uploads before reading the body; the exact limit
	// is enforced after decompression.
	MultipartOverhead = 1024
)

// gzipMagic identifies a gzip stream. Detection is done on the bytes, the
// client-declared encoding is not trusted.
var gzipMagic = []byte{0x1f, 0x8b}

var (
	// Event handler attributes (onload="...", onclick='...') are stripped
	// before parsing. Best effort, not a security boundary.
	onAttrPattern = regexp.MustCompile(`(?i)on\w*=(".+?"|'.+?')`)

	// Script blocks, including ones hidden behind entity-encoded angle
	// brackets, are replaced with a single space.
	scriptPattern = regexp.MustCompile(`(?is)(<|&lt;)\s*script\b.*?(>|&gt;).*?(<|&lt;)/\s*script\b\s*(>|&gt;)`)
)

// Result is the outcome of validating an uploaded document.
type Result struct {
	// Gzipped is the sanitized document text recompressed at the fixed
	// level, ready for the object store.
	Gzipped []byte

	// Empty reports whether the root element has no children, no
	// attributes and no non-whitespace text.
	Empty bool
}

// Validator runs the upload validation pipeline.
type Validator struct {
	maxSize int64
}

func NewValidator(maxSize int64) *Validator {
	return &Validator{maxSize: maxSize}
}

// CheckDeclaredSize cheaply rejects oversized uploads from the declared
// content length before the body is read.
func (v *Validator) CheckDeclaredSize(declared int64) error {
	maxLength := v.maxSize + MultipartOverhead
	if declared > maxLength {
		log.Error().
			Str("payload", humanize.IBytes(uint64(declared))).
			Str("max_allowed", humanize.IBytes(uint64(maxLength))).
			Msg("Payload too large")
		return apperr.Newf(apperr.KindPayloadTooLarge,
			"Payload too large, max allowed=%s", humanize.IBytes(uint64(maxLength)))
	}
	return nil
}

// Validate runs the full pipeline on the raw uploaded bytes: decompress
// if gzipped, enforce the size limit, decode using the declared charset,
// URL-decode, sanitize, parse and recompress.
func (v *Validator) Validate(raw []byte, charset string) (*Result, error) {
	content, err := DecompressIfGzipped(raw)
	if err != nil {
		return nil, err
	}

	if int64(len(content)) > v.maxSize {
		log.Error().
			Str("payload", humanize.IBytes(uint64(len(content)))).
			Str("max_allowed", humanize.IBytes(uint64(v.maxSize))).
			Msg("KML file too large")
		return nil, apperr.Newf(apperr.KindPayloadTooLarge,
			"KML file too large, max allowed=%s", humanize.IBytes(uint64(v.maxSize)))
	}

	text, err := decode(content, charset)
	if err != nil {
		log.Error().Err(err).Str("charset", charset).Msg("Could not decode file content")
		return nil, apperr.Wrap(apperr.KindBadRequest, "Could not decode file content", err)
	}

	// Historic clients send their payload form-urlencoded.
	text = unquotePlus(text)

	sanitized := Sanitize(text)

	empty, err := parse(sanitized)
	if err != nil {
		log.Error().Err(err).Msg("Invalid kml file")
		return nil, apperr.Wrap(apperr.KindBadRequest, "Invalid kml file", err)
	}

	gzipped, err := Gzip([]byte(sanitized))
	if err != nil {
		return nil, fmt.Errorf("compress kml: %w", err)
	}

	return &Result{Gzipped: gzipped, Empty: empty}, nil
}

// Sanitize strips event-handler attributes and script blocks from the
// document text. Runs before XML parsing.
func Sanitize(text string) string {
	text = onAttrPattern.ReplaceAllString(text, "")
	return scriptPattern.ReplaceAllString(text, " ")
}

// decode converts the uploaded bytes to a string using the declared
// charset, defaulting to UTF-8.
func decode(content []byte, charset string) (string, error) {
	if charset == "" || strings.EqualFold(charset, "utf-8") {
		if !utf8.Valid(content) {
			return "", fmt.Errorf("content is not valid UTF-8")
		}
		return string(content), nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", fmt.Errorf("unknown charset %q: %w", charset, err)
	}
	decoded, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		return "", fmt.Errorf("decode %q content: %w", charset, err)
	}
	return string(decoded), nil
}

// unquotePlus reverses form-urlencoding: '+' becomes a space and valid
// percent escapes are decoded. A stray '%' that does not start a valid
// escape is kept as-is, it must not block the '+' conversion elsewhere
// in the document.
func unquotePlus(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		switch c := text[i]; c {
		case '+':
			b.WriteByte(' ')
		case '%':
			if i+2 < len(text) && isHex(text[i+1]) && isHex(text[i+2]) {
				b.WriteByte(unhex(text[i+1])<<4 | unhex(text[i+2]))
				i += 2
			} else {
				b.WriteByte(c)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isHex(c byte) bool {
	switch {
	case '0' <= c && c <= '9':
		return true
	case 'a' <= c && c <= 'f':
		return true
	case 'A' <= c && c <= 'F':
		return true
	}
	return false
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// Gzip compresses data at the fixed compression level.
func Gzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, compressionLevel)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecompressIfGzipped returns the content decompressed when it carries the
// gzip magic bytes and unchanged otherwise. A stream that merely lacks the
// magic is not an error; a corrupt gzip stream is.
func DecompressIfGzipped(content []byte) ([]byte, error) {
	if !bytes.HasPrefix(content, gzipMagic) {
		log.Debug().Int("size", len(content)).Msg("Received unzipped kml-string")
		return content, nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(content))
	if err != nil {
		log.Error().Err(err).Msg("Error when trying to decompress kml file")
		return nil, fmt.Errorf("decompress kml: %w", err)
	}
	defer zr.Close()

	decompressed, err := io.ReadAll(zr)
	if err != nil {
		log.Error().Err(err).Msg("Error when trying to decompress kml file")
		return nil, fmt.Errorf("decompress kml: %w", err)
	}
	return decompressed, nil
}
