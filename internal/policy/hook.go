package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/updraft-sys/updraft/internal/descriptor"
)

// scriptTimeout bounds a single policy evaluation. Scripts are decision
// functions and should return immediately.
const scriptTimeout = 5 * time.Second

// Decision is the outcome of a policy hook evaluation.
type Decision int

const (
	// Allow lets the update proceed.
	Allow Decision = iota
	// Warn lets the update proceed but records a warning.
	Warn
	// Deny blocks the update.
	Deny
)

// HookResult carries the decision and the script's message, if any.
type HookResult struct {
	Decision Decision
	Message  string
}

// Hook evaluates an operator-provided Lua script against a candidate
// update. The script runs sandboxed with a read-only `update` table and
// must return "allow", "warn: <msg>" or "deny: <msg>".
type Hook struct {
	scriptPath string
}

// NewHook creates a hook for the given script path. An empty path yields a
// nil hook, which always allows.
func NewHook(scriptPath string) *Hook {
	if scriptPath == "" {
		return nil
	}
	return &Hook{scriptPath: scriptPath}
}

// Evaluate runs the script against the descriptor. Script errors are
// returned as errors, not decisions: a broken policy must not silently
// allow.
func (h *Hook) Evaluate(d *descriptor.Descriptor, currentVersion string) (*HookResult, error) {
	if h == nil {
		return &HookResult{Decision: Allow}, nil
	}

	L := newSandboxedState()
	defer L.Close()

	ctx, cancel := context.WithTimeout(context.Background(), scriptTimeout)
	defer cancel()
	L.SetContext(ctx)

	injectUpdateTable(L, d, currentVersion)

	if err := L.DoFile(h.scriptPath); err != nil {
		return nil, fmt.Errorf("policy script failed: %w", err)
	}

	ret := L.Get(-1)
	str, ok := ret.(lua.LString)
	if !ok {
		return nil, fmt.Errorf("policy script returned %s, want a string", ret.Type())
	}

	return parseDecision(string(str))
}

// parseDecision maps the script's return string onto a HookResult.
func parseDecision(s string) (*HookResult, error) {
	trimmed := strings.TrimSpace(s)
	lower := strings.ToLower(trimmed)

	switch {
	case lower == "allow":
		return &HookResult{Decision: Allow}, nil
	case strings.HasPrefix(lower, "warn"):
		return &HookResult{Decision: Warn, Message: decisionMessage(trimmed)}, nil
	case strings.HasPrefix(lower, "deny"):
		return &HookResult{Decision: Deny, Message: decisionMessage(trimmed)}, nil
	default:
		return nil, fmt.Errorf("policy script returned %q, want allow, warn or deny", trimmed)
	}
}

func decisionMessage(s string) string {
	if _, msg, found := strings.Cut(s, ":"); found {
		return strings.TrimSpace(msg)
	}
	return ""
}

// newSandboxedState creates a Lua VM with the dangerous globals removed.
// Policy scripts are pure decision functions and get no filesystem, process
// or module-loading access.
func newSandboxedState() *lua.LState {
	L := lua.NewState()

	L.SetGlobal("os", lua.LNil)
	L.SetGlobal("io", lua.LNil)
	L.SetGlobal("require", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("debug", lua.LNil)

	// string, table, math and the basic utilities stay available.

	return L
}

// injectUpdateTable exposes the candidate update to the script as a
// read-only global.
func injectUpdateTable(L *lua.LState, d *descriptor.Descriptor, currentVersion string) {
	tbl := L.NewTable()

	L.SetField(tbl, "version", lua.LString(d.Version))
	L.SetField(tbl, "current_version", lua.LString(currentVersion))
	L.SetField(tbl, "url", lua.LString(d.URL))
	L.SetField(tbl, "size", lua.LNumber(d.Size))
	L.SetField(tbl, "mandatory", lua.LBool(d.Mandatory))
	L.SetField(tbl, "target_platform", lua.LString(d.TargetPlatform))
	L.SetField(tbl, "min_app_version", lua.LString(d.MinAppVersion))
	L.SetField(tbl, "release_notes", lua.LString(d.ReleaseNotes))

	L.SetGlobal("update", makeReadOnly(L, tbl))
}

// makeReadOnly wraps a table in a proxy whose metatable rejects writes.
func makeReadOnly(L *lua.LState, table *lua.LTable) *lua.LTable {
	mt := L.NewTable()
	L.SetField(mt, "__index", table)
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("update table is read-only")
		return 0
	}))
	L.SetField(mt, "__metatable", lua.LString("protected"))

	proxy := L.NewTable()
	L.SetMetatable(proxy, mt)
	return proxy
}
