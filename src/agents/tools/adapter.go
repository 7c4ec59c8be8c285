// Package tools wraps external command-line OSINT tools as adapters.
package tools

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"

	agentcore "github.com/stake-plus/osintops/src/agents/core"
	"github.com/stake-plus/osintops/src/logging"
	"github.com/stake-plus/osintops/src/shared/osint"
)

const (
	maxLineBytes = 1 << 20
	stderrTail   = 4 << 10
	waitDelay    = 2 * time.Second
)

// CommandAdapter runs one tool binary per invocation and parses its stdout.
type CommandAdapter struct {
	def     ToolDef
	profile Profile
	logger  *zap.Logger
}

// New builds an adapter from a definition.
func New(def ToolDef, logger *zap.Logger) (*CommandAdapter, error) {
	profileName := def.Profile
	if profileName == "" {
		profileName = def.Name
	}
	profile, ok := LookupProfile(profileName)
	if !ok {
		return nil, fmt.Errorf("tools: %s: unknown output profile %q", def.Name, profileName)
	}
	if def.Binary == "" {
		def.Binary = def.Name
	}
	return &CommandAdapter{def: def, profile: profile, logger: logging.OrNop(logger)}, nil
}

func (a *CommandAdapter) Name() string { return a.def.Name }

// Capability returns the registry row for this adapter.
func (a *CommandAdapter) Capability() (agentcore.Capability, error) {
	return a.def.Capability(a.profile)
}

// Available reports whether the binary resolves through PATH.
func (a *CommandAdapter) Available() (bool, string) {
	if _, err := resolveBinary(a.def.Binary); err != nil {
		return false, err.Error()
	}
	return true, ""
}

func (a *CommandAdapter) Collect(ctx context.Context, target osint.Target, opts agentcore.Options) ([]osint.RawFinding, error) {
	path, err := resolveBinary(a.def.Binary)
	if err != nil {
		return nil, agentcore.Permanent(a.def.Name, err)
	}
	args := expandArgs(a.def.Args, a.profile.Prepare(target))

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.WaitDelay = waitDelay
	stderr := &tailBuffer{max: stderrTail}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, agentcore.Transient(a.def.Name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, agentcore.Transient(a.def.Name, fmt.Errorf("start %s: %w", a.def.Binary, err))
	}

	parser := a.profile.newParser(target)
	var (
		findings    []osint.RawFinding
		rateLimited bool
	)
	emit := func(attrs []map[string]string) {
		for _, set := range attrs {
			findings = append(findings, osint.RawFinding{
				TaskID:     opts.TaskID,
				Adapter:    a.def.Name,
				Attributes: set,
			})
		}
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	for scanner.Scan() {
		attrs, limited := parser.Line(scanner.Text())
		rateLimited = rateLimited || limited
		emit(attrs)
	}
	scanErr := scanner.Err()
	waitErr := cmd.Wait()
	emit(parser.Flush())

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, agentcore.Transient(a.def.Name, ctxErr)
	}
	if scanErr != nil && !errors.Is(scanErr, bufio.ErrTooLong) {
		a.logger.Warn("tool output read failed", zap.String("tool", a.def.Name), zap.Error(scanErr))
	}

	if waitErr != nil {
		if len(findings) > 0 {
			a.logger.Warn("tool exited with error after producing output",
				zap.String("tool", a.def.Name), zap.Int("findings", len(findings)), zap.Error(waitErr))
			return findings, nil
		}
		failure := fmt.Errorf("%s: %w: %s", a.def.Binary, waitErr, stderr.String())
		if rateLimited || logging.IsRateLimit(errors.New(stderr.String())) {
			return nil, agentcore.RateLimited(a.def.Name, 0, failure)
		}
		return nil, agentcore.Transient(a.def.Name, failure)
	}
	if rateLimited && len(findings) == 0 {
		return nil, agentcore.RateLimited(a.def.Name, 0, fmt.Errorf("%s reported rate limiting", a.def.Binary))
	}

	a.logger.Debug("tool finished",
		zap.String("tool", a.def.Name),
		zap.String("task", opts.TaskID),
		zap.Int("attempt", opts.Attempt),
		zap.Int("findings", len(findings)))
	return findings, nil
}

// Load builds adapters for every enabled definition.
func Load(defs []ToolDef, logger *zap.Logger) ([]*CommandAdapter, error) {
	var out []*CommandAdapter
	for _, def := range defs {
		if !def.IsEnabled() {
			continue
		}
		adapter, err := New(def, logger)
		if err != nil {
			return nil, err
		}
		out = append(out, adapter)
	}
	return out, nil
}
