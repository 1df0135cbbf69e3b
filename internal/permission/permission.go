// Package permission defines the permission levels plugins may require for
// their commands. The runtime only records levels; the decision of whether a
// caller meets one is delegated to an Evaluator supplied by the surrounding
// chat transport.
package permission

import (
	"context"
	"fmt"
	"strings"
)

// Level orders the access tiers a command may require.
type Level int

const (
	// LevelUser is the default tier; every caller meets it.
	LevelUser Level = iota + 1
	// LevelModerator covers callers with moderation powers.
	LevelModerator
	// LevelAdmin covers callers with administrative powers.
	LevelAdmin
	// LevelOwner is the host owner.
	LevelOwner
)

// String returns the lowercase name of the level.
func (l Level) String() string {
	switch l {
	case LevelUser:
		return "user"
	case LevelModerator:
		return "moderator"
	case LevelAdmin:
		return "admin"
	case LevelOwner:
		return "owner"
	default:
		return "unknown"
	}
}

// Meets reports whether a caller holding this level satisfies the required one.
func (l Level) Meets(required Level) bool {
	return l >= required
}

// ParseLevel converts a metadata value into a Level. The empty string maps to
// LevelUser, matching the documented default.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "user":
		return LevelUser, nil
	case "moderator", "mod":
		return LevelModerator, nil
	case "admin", "administrator":
		return LevelAdmin, nil
	case "owner":
		return LevelOwner, nil
	default:
		return 0, fmt.Errorf("unknown permission level %q", s)
	}
}

// Caller identifies who invoked a command.
type Caller struct {
	ID   string
	Name string
}

// Evaluator answers whether a caller meets a required level. Implementations
// live in the chat transport layer; the runtime never decides this itself.
type Evaluator interface {
	Allow(ctx context.Context, caller Caller, required Level) bool
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, caller Caller, required Level) bool

// Allow implements Evaluator.
func (f EvaluatorFunc) Allow(ctx context.Context, caller Caller, required Level) bool {
	return f(ctx, caller, required)
}

// AllowAll permits every caller regardless of level. Useful as a default and
// in tests.
var AllowAll Evaluator = EvaluatorFunc(func(context.Context, Caller, Level) bool {
	return true
})
