package ops

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/zzeiidann/DNAI/internal/chat"
	"github.com/zzeiidann/DNAI/internal/config"
	"github.com/zzeiidann/DNAI/internal/db"
	"github.com/zzeiidann/DNAI/internal/errors"
	"github.com/zzeiidann/DNAI/internal/ledger"
)

// maxImportLine bounds one JSONL line; conversations can be long.
const maxImportLine = 8 << 20

// ImportMode controls collision behavior during import.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // fail on any collision, write nothing
	ImportModeSkip    ImportMode = "skip"    // keep existing records
	ImportModeReplace ImportMode = "replace" // overwrite existing records
)

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     // required; .jsonl export or .json calorieData dump
	Mode ImportMode // default: error
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Entries       ledger.ImportResult `json:"entries"`
	Conversations chat.ImportResult   `json:"conversations"`
	Errors        []ImportError       `json:"errors"`
}

// ImportError describes one record that was not imported.
type ImportError struct {
	Line    int    `json:"line,omitempty"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Import loads entries and conversations from an export file. A .json file
// is read as a bare entry array, the format browsers kept under calorieData.
func Import(ctx context.Context, st *State, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if input.Path == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	if input.Mode != ImportModeError && input.Mode != ImportModeSkip && input.Mode != ImportModeReplace {
		return nil, errors.NewInvalidRequest("mode must be one of: error, skip, replace")
	}

	if err := ValidatePath(input.Path, PathCheckRead, cfg); err != nil {
		return nil, err
	}
	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if errors.As(err).Code != errors.ErrInternal {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	var parsed parsedImport
	if filepath.Ext(input.Path) == ".json" {
		parsed, err = parseEntryDump(file)
		if err != nil {
			return nil, err
		}
	} else {
		parsed = parseExportFile(file)
	}

	out := &ImportOutput{Errors: []ImportError{}}
	out.Errors = append(out.Errors, parsed.errors...)

	if input.Mode == ImportModeError {
		if len(parsed.errors) > 0 {
			return out, nil
		}
		if collisions := findCollisions(st, parsed); len(collisions) > 0 {
			out.Errors = append(out.Errors, collisions...)
			return out, nil
		}
	}

	if ctx.Err() != nil {
		return nil, errors.NewCancelled("import")
	}

	if len(parsed.entries) > 0 {
		res, err := st.Ledger.Import(ctx, parsed.entries, ledger.ImportMode(input.Mode))
		if err != nil {
			return nil, err
		}
		out.Entries = *res
	}
	if len(parsed.conversations) > 0 {
		res, err := st.Chat.Import(ctx, parsed.conversations, chat.ImportMode(input.Mode))
		if err != nil {
			return nil, err
		}
		out.Conversations = *res
	}
	return out, nil
}

type parsedImport struct {
	entries       []ledger.FoodEntry
	conversations []chat.Conversation
	errors        []ImportError
}

// parseExportFile reads a JSONL export. Each record is validated with the
// same rules as stored state; bad lines become ImportErrors.
func parseExportFile(r io.Reader) parsedImport {
	var p parsedImport

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxImportLine)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var record struct {
			DNAIExport   bool            `json:"_dnai_export"`
			Kind         string          `json:"kind"`
			Entry        json.RawMessage `json:"entry"`
			Conversation json.RawMessage `json:"conversation"`
		}
		if err := json.Unmarshal(line, &record); err != nil {
			p.errors = append(p.errors, ImportError{
				Line:    lineNum,
				Code:    "PARSE_ERROR",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}
		if record.DNAIExport {
			continue
		}

		switch record.Kind {
		case RecordEntry:
			entries, err := ledger.Decode(db.KeyCalorieData, wrapArray(record.Entry))
			if err != nil || len(entries) != 1 {
				p.errors = append(p.errors, invalidRecord(lineNum, err))
				continue
			}
			p.entries = append(p.entries, entries[0])
		case RecordConversation:
			convs, err := chat.DecodeConversations(db.KeyConversations, wrapArray(record.Conversation))
			if err != nil || len(convs) != 1 {
				p.errors = append(p.errors, invalidRecord(lineNum, err))
				continue
			}
			p.conversations = append(p.conversations, convs[0])
		default:
			p.errors = append(p.errors, ImportError{
				Line:    lineNum,
				Code:    "INVALID_RECORD",
				Message: fmt.Sprintf("unknown record kind %q", record.Kind),
			})
		}
	}

	if err := scanner.Err(); err != nil {
		p.errors = append(p.errors, ImportError{
			Line:    lineNum,
			Code:    "READ_ERROR",
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
	}
	return p
}

// parseEntryDump reads a whole-file entry array. The dump is validated as a
// unit, so any bad entry fails the import.
func parseEntryDump(r io.Reader) (parsedImport, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return parsedImport{}, errors.NewInternal(fmt.Errorf("failed to read import file: %w", err))
	}
	entries, err := ledger.Decode(db.KeyCalorieData, data)
	if err != nil {
		return parsedImport{}, errors.NewInvalidRequest(errors.As(err).Message)
	}
	return parsedImport{entries: entries}, nil
}

func wrapArray(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	out := make([]byte, 0, len(raw)+2)
	out = append(out, '[')
	out = append(out, raw...)
	return append(out, ']')
}

func invalidRecord(line int, err error) ImportError {
	msg := "record has no payload"
	if err != nil {
		msg = errors.As(err).Message
	}
	return ImportError{Line: line, Code: "INVALID_RECORD", Message: msg}
}

// findCollisions lists ids that already exist locally or repeat in the file.
func findCollisions(st *State, p parsedImport) []ImportError {
	var out []ImportError
	seen := make(map[string]bool)
	for _, e := range p.entries {
		if _, ok := st.Ledger.Get(e.ID); ok || seen["e:"+e.ID] {
			out = append(out, ImportError{ID: e.ID, Code: "ID_COLLISION", Message: fmt.Sprintf("entry with id %q already exists", e.ID)})
		}
		seen["e:"+e.ID] = true
	}
	for _, c := range p.conversations {
		if _, ok := st.Chat.Get(c.ID); ok || seen["c:"+c.ID] {
			out = append(out, ImportError{ID: c.ID, Code: "ID_COLLISION", Message: fmt.Sprintf("conversation with id %q already exists", c.ID)})
		}
		seen["c:"+c.ID] = true
	}
	return out
}
