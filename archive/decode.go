package archive

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ExportFileName is the name of the conversations file inside an export archive.
const ExportFileName = "conversations.json"

// DecodeOptions controls how an export is read.
type DecodeOptions struct {
	// ArrayField is the JSON field name that contains the conversation array, when
	// the top-level JSON value is an object. If empty, the first array-valued field
	// is used.
	ArrayField string
}

// Batch is the decoded content of one export. Positions[i] is the index of
// Records[i] in the export array; Failures hold elements that could not be decoded.
type Batch struct {
	Records   []Record
	Positions []int
	Failures  []Failure
}

// DecodeRecords reads an export that is either a top-level JSON array of
// conversations or an object wrapping such an array. Elements are decoded one at a
// time; an element that does not decode as a conversation becomes a Failure and
// decoding continues. Only input that is not a conversation collection at all is an
// error.
func DecodeRecords(ctx context.Context, r io.Reader, opts DecodeOptions) (Batch, error) {
	if ctx == nil {
		return Batch{}, errors.New("DecodeRecords: ctx is nil")
	}

	// The export is typically one huge line; use a larger buffer than default.
	dec := json.NewDecoder(bufio.NewReaderSize(r, 1<<20))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return Batch{}, errors.Wrap(err, "DecodeRecords: read first token")
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return Batch{}, errors.Errorf("DecodeRecords: expected JSON array/object, got %T", tok)
	}

	var batch Batch
	switch delim {
	case '[':
		if err := decodeArray(ctx, dec, &batch); err != nil {
			return Batch{}, err
		}
		return batch, nil
	case '{':
		found := false
		for dec.More() {
			if err := ctx.Err(); err != nil {
				return Batch{}, err
			}
			keyTok, err := dec.Token()
			if err != nil {
				return Batch{}, errors.Wrap(err, "DecodeRecords: read object key")
			}
			key, ok := keyTok.(string)
			if !ok {
				return Batch{}, errors.Errorf("DecodeRecords: expected string key, got %T", keyTok)
			}
			valTok, err := dec.Token()
			if err != nil {
				return Batch{}, errors.Wrapf(err, "DecodeRecords: read value token for key %q", key)
			}

			isTarget := opts.ArrayField != "" && key == opts.ArrayField
			if !isTarget && opts.ArrayField == "" && !found {
				if d, ok := valTok.(json.Delim); ok && d == '[' {
					isTarget = true
				}
			}
			if isTarget {
				if d, ok := valTok.(json.Delim); !ok || d != '[' {
					return Batch{}, errors.Errorf("DecodeRecords: key %q was chosen as array but value isn't an array", key)
				}
				found = true
				if err := decodeArray(ctx, dec, &batch); err != nil {
					return Batch{}, err
				}
				continue
			}
			if err := skipValue(dec, valTok); err != nil {
				return Batch{}, errors.Wrapf(err, "DecodeRecords: skip key %q value", key)
			}
		}
		if tok, err := dec.Token(); err != nil {
			return Batch{}, errors.Wrap(err, "DecodeRecords: read closing object token")
		} else if d, ok := tok.(json.Delim); !ok || d != '}' {
			return Batch{}, errors.Errorf("DecodeRecords: expected closing '}', got %v", tok)
		}
		if !found {
			return Batch{}, errors.New("DecodeRecords: no conversations array found in top-level object")
		}
		return batch, nil
	default:
		return Batch{}, errors.Errorf("DecodeRecords: unsupported top-level delimiter %q", delim)
	}
}

// decodeArray consumes array elements after the opening '[' up to and including the
// closing ']'.
func decodeArray(ctx context.Context, dec *json.Decoder, batch *Batch) error {
	for pos := 0; dec.More(); pos++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return errors.Wrapf(err, "DecodeRecords: decode conversation element %d", pos)
		}
		if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '{' {
			batch.Failures = append(batch.Failures, Failure{
				Index: pos,
				Err:   errors.Errorf("decode conversation: element is %s, not an object", jsonKind(trimmed)),
			})
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			batch.Failures = append(batch.Failures, Failure{
				Index:          pos,
				ConversationID: probeID(raw),
				Err:            errors.Wrap(err, "decode conversation"),
			})
			continue
		}
		batch.Records = append(batch.Records, rec)
		batch.Positions = append(batch.Positions, pos)
	}
	if tok, err := dec.Token(); err != nil {
		return errors.Wrap(err, "DecodeRecords: read closing array token")
	} else if d, ok := tok.(json.Delim); !ok || d != ']' {
		return errors.Errorf("DecodeRecords: expected closing ']', got %v", tok)
	}
	return nil
}

func jsonKind(raw []byte) string {
	if len(raw) == 0 {
		return "empty"
	}
	switch raw[0] {
	case 'n':
		return "null"
	case '[':
		return "an array"
	case '"':
		return "a string"
	case 't', 'f':
		return "a boolean"
	default:
		return "a number"
	}
}

func probeID(raw json.RawMessage) string {
	var probe struct {
		ConversationID any `json:"conversation_id"`
		ID             any `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	for _, v := range []any{probe.ConversationID, probe.ID} {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func skipValue(dec *json.Decoder, first json.Token) error {
	d, ok := first.(json.Delim)
	if !ok {
		// Primitive (string/number/bool/null): already fully consumed.
		return nil
	}
	switch d {
	case '{', '[':
	default:
		return errors.Errorf("skipValue: unexpected delimiter %q", d)
	}

	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if dd, ok := tok.(json.Delim); ok {
			switch dd {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

// LoadFile decodes an export from a conversations.json file or from a .zip export
// containing one.
func LoadFile(ctx context.Context, inputPath string, opts DecodeOptions) (Batch, error) {
	if inputPath == "" {
		return Batch{}, errors.New("LoadFile: inputPath is empty")
	}
	if strings.EqualFold(filepath.Ext(inputPath), ".zip") {
		return loadZip(ctx, inputPath, opts)
	}
	f, err := os.Open(inputPath)
	if err != nil {
		return Batch{}, errors.Wrap(err, "LoadFile: open input")
	}
	defer f.Close()
	return DecodeRecords(ctx, f, opts)
}

func loadZip(ctx context.Context, zipPath string, opts DecodeOptions) (Batch, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return Batch{}, errors.Wrap(err, "LoadFile: open zip")
	}
	defer zr.Close()

	for _, zf := range zr.File {
		if path.Base(zf.Name) != ExportFileName {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return Batch{}, errors.Wrapf(err, "LoadFile: open %s in zip", zf.Name)
		}
		defer rc.Close()
		return DecodeRecords(ctx, rc, opts)
	}
	return Batch{}, errors.Errorf("LoadFile: %s not found in %s", ExportFileName, zipPath)
}

// LatestZip returns the most recently modified .zip file in dir.
func LatestZip(dir string) (string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.Wrap(err, "LatestZip: read dir")
	}
	var (
		best    string
		bestMod int64
	)
	for _, e := range ents {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".zip") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", errors.Wrap(err, "LatestZip: stat")
		}
		if mod := info.ModTime().UnixNano(); best == "" || mod > bestMod {
			best = filepath.Join(dir, e.Name())
			bestMod = mod
		}
	}
	if best == "" {
		return "", errors.Errorf("LatestZip: no .zip files in %s", dir)
	}
	return best, nil
}

// Load decodes an export file and builds its ConversationSet. Decode and build
// failures are merged and indexed by position in the export.
func Load(ctx context.Context, inputPath string, dopts DecodeOptions, sopts SetOptions) (*ConversationSet, error) {
	batch, err := LoadFile(ctx, inputPath, dopts)
	if err != nil {
		return nil, err
	}
	return FromBatch(batch, sopts), nil
}
