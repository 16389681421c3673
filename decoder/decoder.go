package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"

	"github.com/dhcgn/jobmail-export/charset"
	"github.com/dhcgn/jobmail-export/model"
)

// ErrMalformedMessage marks messages whose MIME structure cannot be parsed.
var ErrMalformedMessage = errors.New("malformed message")

const defaultMediaType = "text/plain"

// Decoder turns raw RFC 5322 bytes into a model.DecodedMessage.
type Decoder struct {
	mode charset.Mode
}

// New returns a Decoder that handles undecodable text according to mode.
func New(mode charset.Mode) *Decoder {
	return &Decoder{mode: mode}
}

// Decode parses raw and extracts Subject, From, Date and the plain-text body.
//
// A non-multipart message contributes its whole decoded payload. For a
// multipart message every text/plain part that is not an attachment is
// appended in document order, including those of attached messages. Damaged
// transfer encodings and character sets never fail; broken multipart
// structure returns an error wrapping ErrMalformedMessage.
func (d *Decoder) Decode(raw []byte) (model.DecodedMessage, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !recoverable(err) {
		return model.DecodedMessage{}, fmt.Errorf("%w: read header: %v", ErrMalformedMessage, err)
	}

	body, err := d.body(entity, message.IsUnknownCharset(err))
	if err != nil {
		return model.DecodedMessage{}, err
	}

	return model.DecodedMessage{
		Subject: entity.Header.Get("Subject"),
		From:    entity.Header.Get("From"),
		Date:    entity.Header.Get("Date"),
		Body:    body,
	}, nil
}

func (d *Decoder) body(entity *message.Entity, charsetPending bool) (string, error) {
	mediaType, params := contentType(entity)
	if !strings.HasPrefix(mediaType, "multipart/") {
		return d.text(entity, params, charsetPending), nil
	}

	var sb strings.Builder
	if err := d.walk(entity, params, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (d *Decoder) walk(entity *message.Entity, params map[string]string, sb *strings.Builder) error {
	if params["boundary"] == "" {
		return fmt.Errorf("%w: multipart without boundary", ErrMalformedMessage)
	}

	mr := entity.MultipartReader()
	if mr == nil {
		return fmt.Errorf("%w: multipart reader unavailable", ErrMalformedMessage)
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil && !recoverable(err) {
			return fmt.Errorf("%w: next part: %v", ErrMalformedMessage, err)
		}

		mediaType, partParams := contentType(part)
		switch {
		case strings.HasPrefix(mediaType, "multipart/"):
			if err := d.walk(part, partParams, sb); err != nil {
				return err
			}
		case mediaType == "message/rfc822":
			if err := d.embedded(part, sb); err != nil {
				return err
			}
		case mediaType == defaultMediaType && !isAttachment(part):
			sb.WriteString(d.text(part, partParams, message.IsUnknownCharset(err)))
		}
	}
}

// embedded appends the plain text of an attached message.
func (d *Decoder) embedded(part *message.Entity, sb *strings.Builder) error {
	inner, err := message.Read(part.Body)
	if err != nil && !recoverable(err) {
		return fmt.Errorf("%w: read attached message: %v", ErrMalformedMessage, err)
	}

	text, err := d.body(inner, message.IsUnknownCharset(err))
	if err != nil {
		return err
	}
	sb.WriteString(text)
	return nil
}

// text reads a leaf entity whose transfer encoding has already been removed
// by go-message. A body that stops decoding midway keeps the bytes read so
// far. go-message converts known charsets itself; only when it reported the
// charset as unknown is the declared charset applied here.
func (d *Decoder) text(entity *message.Entity, params map[string]string, charsetPending bool) string {
	data, _ := io.ReadAll(entity.Body)
	declared := "utf-8"
	if charsetPending {
		declared = params["charset"]
	}
	return charset.Decode(data, declared, d.mode)
}

func recoverable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

// contentType falls back to the bare media type when the parameters do not
// parse, and to text/plain only when the header is absent.
func contentType(entity *message.Entity) (string, map[string]string) {
	mediaType, params, err := entity.Header.ContentType()
	if err != nil {
		mediaType, _, _ = strings.Cut(entity.Header.Get("Content-Type"), ";")
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if mediaType == "" {
		return defaultMediaType, params
	}
	return mediaType, params
}

func isAttachment(entity *message.Entity) bool {
	disp, _, err := entity.Header.ContentDisposition()
	if err != nil {
		return false
	}
	return strings.EqualFold(disp, "attachment")
}
