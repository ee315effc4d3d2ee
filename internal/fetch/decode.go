package fetch

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
)

// readBody decompresses the response according to Content-Encoding, caps it
// at maxSize decoded bytes and converts it to UTF-8.
func readBody(resp *http.Response, maxSize int64) (string, error) {
	defer drain(resp.Body)

	reader, err := decompress(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return "", err
	}
	if maxSize > 0 {
		reader = io.LimitReader(reader, maxSize)
	}

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return toUTF8(raw, resp.Header.Get("Content-Type")), nil
}

// decompress wraps body with a reader for the given Content-Encoding.
// Unknown encodings are passed through unchanged.
func decompress(body io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		reader, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return reader, nil
	case "deflate":
		return inflate(body)
	case "br":
		return brotli.NewReader(body), nil
	default:
		return body, nil
	}
}

// inflate handles deflate bodies, which servers send either zlib wrapped
// or as raw deflate streams. The body is streamed so that the size limit
// applied by the caller also bounds what is read from the connection.
func inflate(body io.Reader) (io.Reader, error) {
	buffered := bufio.NewReader(body)
	header, err := buffered.Peek(2)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return buffered, nil
		}
		return nil, err
	}
	if isZlibHeader(header) {
		reader, err := zlib.NewReader(buffered)
		if err != nil {
			return nil, fmt.Errorf("zlib: %w", err)
		}
		return reader, nil
	}
	return flate.NewReader(buffered), nil
}

// isZlibHeader reports whether the two bytes are a valid zlib CMF/FLG pair
// declaring the deflate method.
func isZlibHeader(header []byte) bool {
	cmf, flg := header[0], header[1]
	return cmf&0x0f == 8 && cmf>>4 <= 7 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}

// toUTF8 converts raw to UTF-8. Valid UTF-8 is kept unless the Content-Type
// header names another charset; otherwise a <meta> declaration is used.
func toUTF8(raw []byte, contentType string) string {
	enc, name, certain := charset.DetermineEncoding(raw, contentType)
	if name == "utf-8" || (!certain && utf8.Valid(raw)) {
		return string(raw)
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}
