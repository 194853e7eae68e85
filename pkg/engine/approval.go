package engine

import "context"

// ApprovalFunc gates a tool call before execution when a session does not
// run with auto_approve_tools. It returns true to allow the call.
type ApprovalFunc func(ctx context.Context, toolName string, arguments map[string]any) (bool, error)

// AlwaysApprove is the ApprovalFunc used when no gating is needed; it is
// distinct from auto_approve_tools=true, which skips the approval call
// entirely rather than calling an approval function that always says yes.
func AlwaysApprove(context.Context, string, map[string]any) (bool, error) {
	return true, nil
}
