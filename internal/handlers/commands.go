package handlers

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"

	"habit-streak-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// Tier is the capability a sender needs to run a command
type Tier int

const (
	TierUser Tier = iota
	TierSudo
)

// HandlerFunc handles one inbound event and returns the reply for its chat
type HandlerFunc func(ctx context.Context, ev models.InboundEvent, args []string) (models.OutboundMessage, error)

// Middleware wraps a HandlerFunc
type Middleware func(HandlerFunc) HandlerFunc

// Chain applies middleware so that the first one listed runs outermost
func Chain(h HandlerFunc, mws ...Middleware) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Command is a registered chat command
type Command struct {
	Name    string
	Aliases []string
	Tier    Tier
	Usage   string
	Handle  HandlerFunc
}

// Registry maps command names and aliases to commands
type Registry struct {
	byName   map[string]*Command
	commands []*Command
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Command)}
}

// Register adds a command under its name and aliases. Registering a
// name twice panics, since it is a wiring mistake.
func (r *Registry) Register(cmd Command) {
	c := &cmd
	for _, name := range append([]string{cmd.Name}, cmd.Aliases...) {
		if _, exists := r.byName[name]; exists {
			panic(fmt.Sprintf("command %q registered twice", name))
		}
		r.byName[name] = c
	}
	r.commands = append(r.commands, c)
}

// Lookup finds a command by name or alias, without the leading slash
func (r *Registry) Lookup(name string) (*Command, bool) {
	cmd, ok := r.byName[strings.ToLower(name)]
	return cmd, ok
}

// Help lists the commands available at the given tier
func (r *Registry) Help(tier Tier) string {
	commands := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		if cmd.Tier <= tier {
			commands = append(commands, cmd)
		}
	}
	sort.SliceStable(commands, func(i, j int) bool { return commands[i].Tier < commands[j].Tier })

	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(&b, "\n%s", cmd.Usage)
	}
	b.WriteString("\n\nSend a photo to submit proof for a habit.")
	return b.String()
}

// ParseCommand splits "/name arg1 arg2" into its name and arguments.
// A "@botname" suffix on the name is dropped.
func ParseCommand(text string) (string, []string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), fields[1:], true
}

// requireSudo refuses the event unless isAdmin accepts its sender
func requireSudo(isAdmin func(userID string) bool) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, ev models.InboundEvent, args []string) (models.OutboundMessage, error) {
			if !isAdmin(ev.UserID) {
				log.Warn().Str("user_id", ev.UserID).Str("type", ev.Type).Msg("Unauthorized sudo action")
				return models.OutboundMessage{Text: "Unauthorized."}, nil
			}
			return next(ctx, ev, args)
		}
	}
}

// recoverPanics turns a panicking handler into a logged error
func recoverPanics(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, ev models.InboundEvent, args []string) (msg models.OutboundMessage, err error) {
		defer func() {
			if p := recover(); p != nil {
				log.Error().
					Str("user_id", ev.UserID).
					Str("type", ev.Type).
					Interface("panic", p).
					Bytes("stack", debug.Stack()).
					Msg("Handler panicked")
				err = fmt.Errorf("handler panicked: %v", p)
			}
		}()
		return next(ctx, ev, args)
	}
}
