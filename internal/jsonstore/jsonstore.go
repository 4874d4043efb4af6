// Package jsonstore provides the atomic JSON read/write primitive every
// manifest, lock file, and report artifact in WCBT is built on: write to a
// temp file beside the target, then rename into place.
package jsonstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteOptions controls serialization of WriteAtomic.
type WriteOptions struct {
	// Pretty indents with two spaces and sorts object keys. When false,
	// output is compact (",", ":") separators.
	Pretty bool
}

// DefaultWriteOptions matches the manifest/report convention: pretty,
// sorted keys, trailing newline.
var DefaultWriteOptions = WriteOptions{Pretty: true}

// WriteAtomic serializes v to path using a temp-file-then-rename so that
// readers never observe a partially written file. Parent directories are
// created as needed.
func WriteAtomic(path string, v any, opts WriteOptions) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("jsonstore: creating parent directory for %s: %w", path, err)
	}

	data, err := marshal(v, opts)
	if err != nil {
		return fmt.Errorf("jsonstore: marshaling %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("jsonstore: writing temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("jsonstore: renaming temp file into place for %s: %w", path, err)
	}
	return nil
}

func marshal(v any, opts WriteOptions) ([]byte, error) {
	// encoding/json sorts map keys but emits struct fields in declaration
	// order, so pretty output re-encodes v through a generic value (numbers
	// kept verbatim via UseNumber) to sort every object's keys.
	var buf bytes.Buffer
	if opts.Pretty {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var generic any
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&generic); err != nil {
			return nil, err
		}
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(generic); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	compact, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	compact = append(compact, '\n')
	return compact, nil
}

// ReadJSON reads and unmarshals the JSON document at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("jsonstore: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("jsonstore: parsing %s: %w", path, err)
	}
	return nil
}

// AppendJSONLAtomic appends one compact JSON line to a JSONL file, creating
// it (and parent directories) if needed. Unlike WriteAtomic this is not a
// full rewrite: journals are append-only by design.
func AppendJSONLAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("jsonstore: creating parent directory for %s: %w", path, err)
	}
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("jsonstore: marshaling journal line for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("jsonstore: opening %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("jsonstore: appending to %s: %w", path, err)
	}
	return f.Sync()
}

// WriteTextAtomic atomically writes plain text (e.g. plan.txt) the same way
// WriteAtomic does for JSON.
func WriteTextAtomic(path string, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("jsonstore: creating parent directory for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(text), 0o644); err != nil {
		return fmt.Errorf("jsonstore: writing temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("jsonstore: renaming temp file into place for %s: %w", path, err)
	}
	return nil
}
