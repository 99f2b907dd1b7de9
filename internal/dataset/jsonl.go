package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// maxLineBytes bounds a single JSONL record.
const maxLineBytes = 16 << 20

// RecordError reports a malformed line. Reading continues past it.
type RecordError struct {
	Line int
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

const labeledExampleSchema = `{
  "type": "object",
  "required": ["text"],
  "properties": {
    "text": {"type": "string"},
    "labels": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["start", "end", "type"],
        "properties": {
          "start": {"type": "integer", "minimum": 0},
          "end": {"type": "integer", "minimum": 0},
          "type": {"type": "string", "minLength": 1},
          "text": {"type": "string"}
        }
      }
    }
  }
}`

const textRecordSchema = `{
  "type": "object",
  "required": ["text"],
  "properties": {
    "id": {"type": ["string", "integer"]},
    "text": {"type": "string"}
  }
}`

var (
	schemaOnce    sync.Once
	exampleSchema *gojsonschema.Schema
	recordSchema  *gojsonschema.Schema
	schemaErr     error
)

func schemas() (*gojsonschema.Schema, *gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		exampleSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(labeledExampleSchema))
		if schemaErr != nil {
			return
		}
		recordSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(textRecordSchema))
	})
	return exampleSchema, recordSchema, schemaErr
}

// checkSchema validates one JSON document against schema.
func checkSchema(schema *gojsonschema.Schema, line []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(line))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, verr := range result.Errors() {
			msgs = append(msgs, verr.String())
		}
		return fmt.Errorf("schema validation: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// eachLine calls fn with every non-blank line and its 1-based number.
func eachLine(r io.Reader, fn func(n int, line []byte)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	n := 0
	for sc.Scan() {
		n++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		fn(n, line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading line %d: %w", n+1, err)
	}
	return nil
}

// ReadExamples decodes labeled examples from JSONL. Malformed lines are
// skipped and reported as *RecordError; err is set only when r fails.
func ReadExamples(r io.Reader) ([]LabeledExample, []*RecordError, error) {
	schema, _, err := schemas()
	if err != nil {
		return nil, nil, fmt.Errorf("compiling example schema: %w", err)
	}
	var (
		out []LabeledExample
		bad []*RecordError
	)
	err = eachLine(r, func(n int, line []byte) {
		if err := checkSchema(schema, line); err != nil {
			bad = append(bad, &RecordError{Line: n, Err: err})
			return
		}
		var ex LabeledExample
		if err := json.Unmarshal(line, &ex); err != nil {
			bad = append(bad, &RecordError{Line: n, Err: err})
			return
		}
		out = append(out, ex)
	})
	return out, bad, err
}

// LoadExamples reads a labeled example JSONL file.
func LoadExamples(path string) ([]LabeledExample, []*RecordError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening dataset %s: %w", path, err)
	}
	defer f.Close()
	return ReadExamples(f)
}

// WriteExamples encodes examples as JSONL, one per line.
func WriteExamples(w io.Writer, examples []LabeledExample) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, ex := range examples {
		if err := enc.Encode(ex); err != nil {
			return fmt.Errorf("encoding example %d: %w", i, err)
		}
	}
	return nil
}

// SaveExamples writes examples to path, creating parent dirs.
func SaveExamples(path string, examples []LabeledExample) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating dataset dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating dataset %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if err := WriteExamples(w, examples); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing dataset %s: %w", path, err)
	}
	return f.Close()
}

// ReadTextRecords decodes {"id","text"} scan inputs. A missing id is
// replaced by the line number. Numeric ids are kept as their decimal form.
func ReadTextRecords(r io.Reader) ([]TextRecord, []*RecordError, error) {
	_, schema, err := schemas()
	if err != nil {
		return nil, nil, fmt.Errorf("compiling record schema: %w", err)
	}
	var (
		out []TextRecord
		bad []*RecordError
	)
	err = eachLine(r, func(n int, line []byte) {
		if err := checkSchema(schema, line); err != nil {
			bad = append(bad, &RecordError{Line: n, Err: err})
			return
		}
		var raw struct {
			ID   json.RawMessage `json:"id"`
			Text string          `json:"text"`
		}
		if err := json.Unmarshal(line, &raw); err != nil {
			bad = append(bad, &RecordError{Line: n, Err: err})
			return
		}
		rec := TextRecord{ID: fmt.Sprintf("%d", n), Text: raw.Text}
		if len(raw.ID) > 0 {
			var s string
			if json.Unmarshal(raw.ID, &s) == nil {
				rec.ID = s
			} else {
				rec.ID = string(raw.ID)
			}
		}
		out = append(out, rec)
	})
	return out, bad, err
}
