// Package audit provides audit logging with HMAC chain for tamper detection.
//
// Lock, unlock, setup and forced-logout events are appended to monthly
// JSONL files under the app-lock state directory. Each record carries an
// HMAC over its significant fields chained to the previous record, so
// deleting or editing a failed-attempt record is detectable. The chain
// key is derived from a per-install random key via HKDF; unlike secret
// material it must be usable while the app is still locked, since failed
// attempts are exactly what the log exists to capture.
package audit

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// MinAuditDiskSpace is the minimum free space required for log writes.
const MinAuditDiskSpace = 1024 * 1024 // 1 MB

// Operation types for audit logging.
const (
	OpSetup          = "applock.setup"
	OpUnlock         = "applock.unlock"
	OpUnlockFailed   = "applock.unlock_failed"
	OpCooldown       = "applock.cooldown"
	OpForcedLogout   = "applock.forced_logout"
	OpLock           = "applock.lock"
	OpDisable        = "applock.disable"
	OpLogout         = "applock.logout"
	OpIntegrityError = "applock.integrity_error"
)

// Source identifies where the operation originated.
const (
	SourceCLI = "cli"
	SourceMCP = "mcp"
	SourceUI  = "ui"
)

// Result indicates the outcome of an operation.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultDenied  = "denied"
)

// Event is a single audit log record.
type Event struct {
	Version   int    `json:"v"`  // Schema version (1)
	ID        string `json:"id"` // Event ID
	Timestamp string `json:"ts"` // RFC 3339 nanosecond precision

	Operation string `json:"op"`
	Source    string `json:"source"`     // cli | mcp | ui
	SessionID string `json:"session_id"` // Surface session ID

	Result string     `json:"result"` // success | error | denied
	Error  *ErrorInfo `json:"error,omitempty"`

	Context map[string]interface{} `json:"ctx,omitempty"`

	Chain Chain `json:"chain"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Chain provides the HMAC chain for tamper detection.
type Chain struct {
	Sequence int64  `json:"seq"`  // Sequence number
	PrevHash string `json:"prev"` // Previous record hash
	HMAC     string `json:"hmac"` // This record's HMAC
}

// Logger handles audit log writing with an HMAC chain.
type Logger struct {
	path      string     // Audit log directory path
	hmacKey   []byte     // Chain key, HKDF-derived from the install key
	mu        sync.Mutex // Protects concurrent writes
	sequence  int64      // Current sequence number
	prevHash  string     // Previous record hash
	sessionID string     // Current surface session ID
	ready     bool       // Whether the chain key is available
}

// NewLogger creates an audit logger rooted at path. The chain key is
// loaded from the install key file, created on first use. A logger that
// failed to obtain a key reports errors from Log rather than panicking;
// callers treat audit as best-effort.
func NewLogger(path string) *Logger {
	l := &Logger{
		path:      path,
		prevHash:  "genesis",
		sessionID: uuid.NewString(),
	}
	if err := l.initChainKey(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: audit chain key unavailable: %v\n", err)
		return l
	}
	if err := l.loadChainState(); err != nil {
		// First run, or the meta file is gone; Verify will flag the gap.
		l.sequence = 0
		l.prevHash = "genesis"
	}
	return l
}

// initChainKey loads or creates the per-install key, then expands it into
// the chain HMAC key with HKDF-SHA256.
func (l *Logger) initChainKey() error {
	if err := os.MkdirAll(l.path, 0700); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}

	keyPath := filepath.Join(l.path, "audit.key")
	install, err := os.ReadFile(keyPath)
	if err != nil || len(install) != 32 {
		install = make([]byte, 32)
		if _, err := rand.Read(install); err != nil {
			return fmt.Errorf("audit: failed to generate install key: %w", err)
		}
		if err := os.WriteFile(keyPath, install, 0600); err != nil {
			return fmt.Errorf("audit: failed to save install key: %w", err)
		}
	}

	hkdfReader := hkdf.New(sha256.New, install, nil, []byte("applock-audit-v1"))
	l.hmacKey = make([]byte, 32)
	if _, err := hkdfReader.Read(l.hmacKey); err != nil {
		return fmt.Errorf("audit: failed to derive chain key: %w", err)
	}
	l.ready = true
	return nil
}

// Log records an audit event.
func (l *Logger) Log(op, source, result string, errInfo *ErrorInfo, ctx map[string]interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.ready {
		return fmt.Errorf("audit: chain key not available")
	}

	if err := os.MkdirAll(l.path, 0700); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}
	if err := l.checkDiskSpace(); err != nil {
		return err
	}

	event := Event{
		Version:   1,
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Operation: op,
		Source:    source,
		SessionID: l.sessionID,
		Result:    result,
		Error:     errInfo,
		Context:   ctx,
	}

	l.sequence++
	event.Chain.Sequence = l.sequence
	event.Chain.PrevHash = l.prevHash

	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write(l.buildRecordData(&event))
	event.Chain.HMAC = hex.EncodeToString(mac.Sum(nil))
	l.prevHash = event.Chain.HMAC

	if err := l.writeEvent(&event); err != nil {
		return err
	}
	return l.saveChainState()
}

// LogSuccess is a convenience method for successful operations.
func (l *Logger) LogSuccess(op, source string) error {
	return l.Log(op, source, ResultSuccess, nil, nil)
}

// LogError is a convenience method for failed operations.
func (l *Logger) LogError(op, source, errCode, errMsg string) error {
	return l.Log(op, source, ResultError, &ErrorInfo{Code: errCode, Message: errMsg}, nil)
}

// LogDenied is a convenience method for refused operations (cooldown,
// forced logout).
func (l *Logger) LogDenied(op, source, reason string) error {
	return l.Log(op, source, ResultDenied, nil, map[string]interface{}{"reason": reason})
}

// buildRecordData creates the data to be HMACed. Every significant field
// participates so edits to any of them break the chain.
func (l *Logger) buildRecordData(event *Event) []byte {
	errorData := ""
	if event.Error != nil {
		errorData = fmt.Sprintf("%s|%s", event.Error.Code, event.Error.Message)
	}

	contextData := ""
	if event.Context != nil {
		keys := make([]string, 0, len(event.Context))
		for k := range event.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			contextData += fmt.Sprintf("%s=%v|", k, event.Context[k])
		}
	}

	data := fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%s|%s|%d|%s",
		event.Version,
		event.ID,
		event.Timestamp,
		event.Operation,
		event.Source,
		event.SessionID,
		event.Result,
		errorData,
		contextData,
		event.Chain.Sequence,
		event.Chain.PrevHash,
	)
	return []byte(data)
}

// writeEvent appends an event to the current month's log file.
func (l *Logger) writeEvent(event *Event) error {
	filename := time.Now().UTC().Format("2006-01") + ".jsonl"
	f, err := os.OpenFile(filepath.Join(l.path, filename), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

// ChainState holds the persistent chain state.
type ChainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
}

func (l *Logger) loadChainState() error {
	data, err := os.ReadFile(filepath.Join(l.path, "audit.meta"))
	if err != nil {
		return err
	}

	var state ChainState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	return nil
}

func (l *Logger) saveChainState() error {
	data, err := json.Marshal(ChainState{Sequence: l.sequence, PrevHash: l.prevHash})
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.path, "audit.meta"), data, 0600); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}
	return nil
}

// Verify checks the integrity of the audit log chain.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.ready {
		return nil, fmt.Errorf("audit: chain key not available")
	}

	result := &VerifyResult{Valid: true}

	files, err := filepath.Glob(filepath.Join(l.path, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	// YYYY-MM.jsonl names sort chronologically.
	sort.Strings(files)

	expectedPrevHash := "genesis"
	var expectedSeq int64 = 1

	for _, file := range files {
		events, err := l.readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}

		for _, event := range events {
			result.RecordsTotal++

			if event.Chain.Sequence != expectedSeq {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"sequence gap at record %s: expected %d, got %d",
					event.ID, expectedSeq, event.Chain.Sequence))
			}
			if event.Chain.PrevHash != expectedPrevHash {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"chain broken at record %s: expected prev %s, got %s",
					event.ID, expectedPrevHash, event.Chain.PrevHash))
			}

			mac := hmac.New(sha256.New, l.hmacKey)
			mac.Write(l.buildRecordData(&event))
			if event.Chain.HMAC != hex.EncodeToString(mac.Sum(nil)) {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"HMAC mismatch at record %s: possible tampering", event.ID))
			}

			expectedPrevHash = event.Chain.HMAC
			expectedSeq++
		}
	}

	result.RecordsVerified = result.RecordsTotal
	return result, nil
}

// VerifyResult contains the results of chain verification.
type VerifyResult struct {
	Valid           bool     `json:"valid"`
	RecordsTotal    int      `json:"records_total"`
	RecordsVerified int      `json:"records_verified"`
	Errors          []string `json:"errors,omitempty"`
}

func (l *Logger) readLogFile(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var events []Event
	for _, line := range splitLines(data) {
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("failed to parse line: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}

// ListEvents returns audit events, most recent last.
// limit: maximum number of events to return (0 = all)
// since: only return events after this time (zero = no filter)
func (l *Logger) ListEvents(limit int, since time.Time) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(l.path, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	sort.Strings(files)

	var all []Event
	for _, file := range files {
		events, err := l.readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}
		all = append(all, events...)
	}

	filtered := all
	if !since.IsZero() {
		filtered = filtered[:0:0]
		for _, event := range all {
			eventTime, err := time.Parse(time.RFC3339Nano, event.Timestamp)
			if err != nil {
				continue
			}
			if eventTime.After(since) {
				filtered = append(filtered, event)
			}
		}
	}

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered, nil
}

// Path returns the audit log directory path.
func (l *Logger) Path() string {
	return l.path
}
