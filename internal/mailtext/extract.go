package mailtext

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// errFound stops a Walk once a usable text/plain part has been decoded.
var errFound = errors.New("text part found")

// Extractor turns a raw RFC 5322 message into a single plain-text body.
type Extractor struct {
	fallbackCharset string
	htmlFallback    bool
	logger          *slog.Logger
}

// NewExtractor returns an Extractor. fallbackCharset is tried when a part
// does not decode with its declared charset; an empty value disables the
// fallback. With htmlFallback set, a message that has no text/plain part
// yields the text content of its first text/html part.
func NewExtractor(fallbackCharset string, htmlFallback bool, logger *slog.Logger) *Extractor {
	return &Extractor{
		fallbackCharset: fallbackCharset,
		htmlFallback:    htmlFallback,
		logger:          logger,
	}
}

// ExtractText returns the body of the first text/plain part, or "" when
// there is none or nothing decodes. It never fails.
//
// A message that is not multipart is decoded whatever its content type.
func (x *Extractor) ExtractText(raw []byte) string {
	root, err := message.Read(bytes.NewReader(raw))
	if root == nil {
		x.logger.Debug("unparseable message", "error", err)
		return ""
	}

	mediaType, _, _ := root.Header.ContentType()
	if !strings.HasPrefix(mediaType, "multipart/") {
		text, ok := x.decodePart(root, err)
		if !ok {
			return ""
		}
		if mediaType == "text/html" && x.htmlFallback {
			text = HTMLToText(text)
		}
		return nonBlank(text)
	}

	var plain, html string
	walkErr := root.Walk(func(_ []int, part *message.Entity, partErr error) error {
		ct, _, _ := part.Header.ContentType()
		if disp, _, _ := part.Header.ContentDisposition(); disp == "attachment" {
			return nil
		}
		switch ct {
		case "text/plain":
			text, ok := x.decodePart(part, partErr)
			if !ok {
				// Try the next text/plain part, if any.
				return nil
			}
			plain = text
			return errFound
		case "text/html":
			if html == "" && x.htmlFallback {
				if text, ok := x.decodePart(part, partErr); ok {
					html = text
				}
			}
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, errFound) {
		x.logger.Debug("walking message parts", "error", walkErr)
	}

	if plain != "" {
		return nonBlank(plain)
	}
	if html != "" {
		return nonBlank(HTMLToText(html))
	}
	return ""
}

// decodePart reads a part body and converts it to UTF-8: first with the
// declared charset, then with the fallback charset.
func (x *Extractor) decodePart(part *message.Entity, partErr error) (string, bool) {
	body, err := io.ReadAll(part.Body)
	if err != nil {
		x.logger.Debug("reading part body", "error", err)
		return "", false
	}

	_, params, _ := part.Header.ContentType()
	declared := params["charset"]

	// go-message already converted utf-8 and us-ascii parts; anything else
	// comes back untouched together with an unknown-charset error.
	if message.IsUnknownCharset(partErr) && declared != "" {
		if text, err := decodeWith(declared, body); err == nil && utf8.ValidString(text) {
			return text, true
		}
	} else if utf8.Valid(body) {
		return string(body), true
	}

	if x.fallbackCharset == "" {
		return "", false
	}
	text, err := decodeWith(x.fallbackCharset, body)
	if err != nil {
		x.logger.Debug("fallback charset failed", "charset", x.fallbackCharset, "error", err)
		return "", false
	}
	return text, true
}

func decodeWith(charset string, body []byte) (string, error) {
	enc, err := lookupCharset(charset)
	if err != nil {
		return "", err
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", charset, err)
	}
	return string(out), nil
}

// lookupCharset resolves a MIME charset label. Latin-1 is kept distinct
// from windows-1252, which the WHATWG index folds it into.
func lookupCharset(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "iso-8859-1", "iso8859-1", "latin1", "latin-1", "l1":
		return charmap.ISO8859_1, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", name, err)
	}
	return enc, nil
}

func nonBlank(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}
