package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

const (
	wrapperPrefix = "Search.setIndex("
	wrapperSuffix = ")"
)

// Marshal encodes s as a searchindex.js payload. Map keys are written in
// sorted order so equal snapshots encode to equal bytes.
func Marshal(s *Snapshot) ([]byte, error) {
	body, err := MarshalJSON(s)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(body) + len(wrapperPrefix) + len(wrapperSuffix))
	buf.WriteString(wrapperPrefix)
	buf.Write(body)
	buf.WriteString(wrapperSuffix)
	return buf.Bytes(), nil
}

// MarshalJSON encodes s as bare JSON without the Search.setIndex wrapper.
func MarshalJSON(s *Snapshot) ([]byte, error) {
	out := *s
	if len(out.Objects) == 0 {
		out.Objects = emptyObject
	}
	if len(out.ObjNames) == 0 {
		out.ObjNames = emptyObject
	}
	if len(out.ObjTypes) == 0 {
		out.ObjTypes = emptyObject
	}
	if out.Terms == nil {
		out.Terms = map[string]DocRefs{}
	}
	if out.TitleTerms == nil {
		out.TitleTerms = map[string]DocRefs{}
	}
	body, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return body, nil
}

// Encode converts ix into a wrapped searchindex.js payload.
func Encode(ix *index.Index, env map[string]int) ([]byte, error) {
	return Marshal(FromIndex(ix, env))
}

// Unmarshal decodes a searchindex.js payload. The Search.setIndex wrapper
// and unquoted object keys are both optional. Malformed input fails with
// ErrInvalidSnapshot.
func Unmarshal(data []byte) (*Snapshot, error) {
	body := bytes.TrimSpace(data)
	body = bytes.TrimSuffix(body, []byte(";"))
	if bytes.HasPrefix(body, []byte(wrapperPrefix)) {
		body = bytes.TrimPrefix(body, []byte(wrapperPrefix))
		if !bytes.HasSuffix(body, []byte(wrapperSuffix)) {
			return nil, fmt.Errorf("%w: unterminated %s wrapper", apperrors.ErrInvalidSnapshot, wrapperPrefix)
		}
		body = bytes.TrimSuffix(body, []byte(wrapperSuffix))
	}
	if len(body) == 0 || body[0] != '{' {
		return nil, fmt.Errorf("%w: payload is not an object", apperrors.ErrInvalidSnapshot)
	}

	var s Snapshot
	if err := json.Unmarshal(quoteBareKeys(body), &s); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidSnapshot, err)
	}
	if s.Docnames == nil {
		return nil, fmt.Errorf("%w: missing docnames", apperrors.ErrInvalidSnapshot)
	}
	return &s, nil
}

// Decode parses a payload and builds a validated Index from it.
func Decode(data []byte) (*index.Index, error) {
	s, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return s.ToIndex()
}

// Checksum returns the hex SHA-256 of a payload. Stores and events use it
// to tell snapshot versions apart.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
