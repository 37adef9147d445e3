package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/applockctl/pkg/applock"
)

// StatusInput represents input for the applock_status tool.
type StatusInput struct{}

// StatusOutput represents output for the applock_status tool.
type StatusOutput struct {
	Enabled             bool   `json:"enabled"`
	LockType            string `json:"lock_type"`
	IsLocked            bool   `json:"is_locked"`
	LockScreenMode      string `json:"lock_screen_mode,omitempty"`
	InvalidAttemptCount int    `json:"invalid_attempt_count"`
	CooldownExpiresAt   int64  `json:"cooldown_expires_at,omitempty"`
	CooldownRemainingMs int64  `json:"cooldown_remaining_ms,omitempty"`
	AutoLockTimeMs      int64  `json:"auto_lock_time_ms"`
}

// LockInput represents input for the applock_lock tool.
type LockInput struct {
	// Mode is "lock" (default) or "reauthenticate".
	Mode string `json:"mode,omitempty"`
}

// LockOutput represents output for the applock_lock tool.
type LockOutput struct {
	IsLocked       bool   `json:"is_locked"`
	LockScreenMode string `json:"lock_screen_mode,omitempty"`
	Enabled        bool   `json:"enabled"`
}

// handleStatus handles the applock_status tool call.
func (s *Server) handleStatus(_ context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	s.sched.Touch()
	st := s.manager.Snapshot()

	out := StatusOutput{
		Enabled:             st.Enabled,
		LockType:            string(st.LockType),
		IsLocked:            st.IsLocked,
		InvalidAttemptCount: st.InvalidAttemptCount,
		AutoLockTimeMs:      st.AutoLockTimeMs,
	}
	if st.IsLocked {
		out.LockScreenMode = string(st.LockScreenMode)
	}
	if st.CooldownExpiresAt > 0 {
		out.CooldownExpiresAt = st.CooldownExpiresAt
		if remaining := st.CooldownExpiresAt - time.Now().UnixMilli(); remaining > 0 {
			out.CooldownRemainingMs = remaining
		}
	}
	return nil, out, nil
}

// handleLock handles the applock_lock tool call.
func (s *Server) handleLock(_ context.Context, _ *mcp.CallToolRequest, input LockInput) (*mcp.CallToolResult, LockOutput, error) {
	switch input.Mode {
	case "", string(applock.ModeLock):
		s.manager.Lock()
	case string(applock.ModeReauthenticate):
		s.manager.Reauthenticate()
	default:
		return nil, LockOutput{}, fmt.Errorf("unknown lock mode: %q", input.Mode)
	}

	st := s.manager.Snapshot()
	out := LockOutput{
		IsLocked: st.IsLocked,
		Enabled:  st.Enabled,
	}
	if st.IsLocked {
		out.LockScreenMode = string(st.LockScreenMode)
	}
	return nil, out, nil
}
