package ops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/zzeiidann/DNAI/internal/chat"
	"github.com/zzeiidann/DNAI/internal/config"
	"github.com/zzeiidann/DNAI/internal/errors"
	"github.com/zzeiidann/DNAI/internal/ledger"
)

// Record kinds in an export file.
const (
	RecordEntry        = "entry"
	RecordConversation = "conversation"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path string // optional, default: ~/.dnai/exports/dnai-<timestamp>.jsonl
	Only string // optional: "entry" or "conversation"; default both
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path          string `json:"path"`
	Entries       int    `json:"entries"`
	Conversations int    `json:"conversations"`
	ExportedAt    int64  `json:"exported_at"`
}

// ExportHeader is the first line of an export file.
type ExportHeader struct {
	DNAIExport    bool   `json:"_dnai_export"`
	SchemaVersion string `json:"schema_version"`
	ExportedAt    int64  `json:"exported_at"`
}

// ExportRecord is one data line of an export file. Exactly one of Entry
// and Conversation is set, matching Kind.
type ExportRecord struct {
	DNAIExport   bool               `json:"_dnai_export,omitempty"`
	Kind         string             `json:"kind"`
	Entry        *ledger.FoodEntry  `json:"entry,omitempty"`
	Conversation *chat.Conversation `json:"conversation,omitempty"`
}

// Export writes the ledger and conversations to a JSONL file.
func Export(ctx context.Context, st *State, cfg *config.Config, input ExportInput) (*ExportOutput, error) {
	if input.Only != "" && input.Only != RecordEntry && input.Only != RecordConversation {
		return nil, errors.NewInvalidRequest("only must be one of: entry, conversation")
	}

	now := time.Now()
	exportedAt := now.Unix()

	exportPath := input.Path
	if exportPath == "" {
		dir, err := DefaultExportsDir()
		if err != nil {
			return nil, err
		}
		exportPath = filepath.Join(dir, fmt.Sprintf("dnai-%s.jsonl", now.Format("2006-01-02T150405")))
	}

	if err := ValidatePath(exportPath, PathCheckWrite, cfg); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	// Write to a temp file and rename, so a failed export keeps the old file
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	enc := json.NewEncoder(file)
	if err := enc.Encode(ExportHeader{DNAIExport: true, SchemaVersion: "1.0", ExportedAt: exportedAt}); err != nil {
		return nil, errors.NewInternal(err)
	}

	out := &ExportOutput{ExportedAt: exportedAt}
	if input.Only != RecordConversation {
		for _, e := range st.Ledger.Entries() {
			if ctx.Err() != nil {
				return nil, errors.NewCancelled("export")
			}
			if err := enc.Encode(ExportRecord{Kind: RecordEntry, Entry: &e}); err != nil {
				return nil, errors.NewInternal(err)
			}
			out.Entries++
		}
	}
	if input.Only != RecordEntry {
		for _, c := range st.Chat.List() {
			if ctx.Err() != nil {
				return nil, errors.NewCancelled("export")
			}
			if err := enc.Encode(ExportRecord{Kind: RecordConversation, Conversation: &c}); err != nil {
				return nil, errors.NewInternal(err)
			}
			out.Conversations++
		}
	}

	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInvalidRequest("export path is a symlink")
	}

	// Windows os.Rename fails when the destination exists; the old file is kept.
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	out.Path = exportPath
	return out, nil
}
