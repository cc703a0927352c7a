package action

import (
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/ids"
)

// ShellExecutor runs a trigger's command through /bin/sh -c after
// substituting {cfg}/{fspath}/{fid}/... template placeholders, the
// placeholder scheme spec.md's action params use for an entry's path,
// id, and rule-supplied extra args.
type ShellExecutor struct {
	Shell          string // defaults to /bin/sh
	DefaultTimeout time.Duration
}

func NewShellExecutor() *ShellExecutor {
	return &ShellExecutor{Shell: "/bin/sh", DefaultTimeout: 5 * time.Minute}
}

func (e *ShellExecutor) Execute(ctx context.Context, id ids.ID, a *attrs.AttrSet, p Params) (Status, Feedback, error) {
	cmdline, err := e.render(id, a, p)
	if err != nil {
		return StatusFailed, Feedback{}, err
	}

	timeout := e.DefaultTimeout
	if p.Timeout > 0 {
		timeout = time.Duration(p.Timeout) * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	shell := e.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	cmd := exec.CommandContext(execCtx, shell, "-c", cmdline)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger := log.With().Str("component", "action").Str("entry", id.String()).Logger()
	if err := cmd.Run(); err != nil {
		logger.Warn().Err(err).Str("stderr", stderr.String()).Msg("action command failed")
		return StatusFailed, Feedback{}, err
	}

	fb := Feedback{}
	if v, ok := a.Get(attrs.ATTR_size); ok {
		fb.Volume = v.Uint
	}
	if v, ok := a.Get(attrs.ATTR_blocks); ok {
		fb.Blocks = v.Uint
	}
	return StatusOK, fb, nil
}

// placeholderPattern rewrites the {name} placeholder syntax spec.md's
// action params use into text/template's {{.name}} field syntax.
var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

func (e *ShellExecutor) render(id ids.ID, a *attrs.AttrSet, p Params) (string, error) {
	tmpl, err := template.New("action").Parse(placeholderPattern.ReplaceAllString(p.Command, "{{.$1}}"))
	if err != nil {
		return "", err
	}
	data := map[string]string{"fid": id.String()}
	if fullpath, ok := a.Get(attrs.ATTR_fullpath); ok {
		data["fspath"] = fullpath.Str
	}
	for k, v := range p.Args {
		data[k] = v
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// NoopExecutor runs no command; used for dry-run policy checks and
// tests.
type NoopExecutor struct{}

func (NoopExecutor) Execute(ctx context.Context, id ids.ID, a *attrs.AttrSet, p Params) (Status, Feedback, error) {
	return StatusOK, Feedback{}, nil
}
