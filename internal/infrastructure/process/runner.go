package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/internal/cfg"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
)

const (
	// ResultFDEnv сообщает дочернему процессу номер дескриптора канала результата.
	ResultFDEnv = "CONVEYOR_RESULT_FD"
	resultFD    = 3 // первый элемент ExtraFiles

	maxResultSize = 4 << 20
	stderrTail    = 2048
	pipeDrainWait = time.Second
)

// Runner запускает внешние скрипты. Успех определяется только так:
// код выхода 0 и ровно один JSON-объект в канале результата (fd 3).
// В режиме legacySentinel объект ищется в stdout между маркерами.
type Runner struct {
	interpreter    string
	dir            string
	timeout        time.Duration
	legacySentinel bool
	logger         logger.Logger
}

func NewRunner(cfg *cfg.ScriptsCfg, logger logger.Logger) *Runner {
	return &Runner{
		interpreter:    cfg.Interpreter,
		dir:            cfg.Dir,
		timeout:        cfg.Timeout,
		legacySentinel: cfg.LegacySentinel,
		logger:         logger,
	}
}

// Run выполняет script с аргументами и возвращает JSON-объект результата.
func (r *Runner) Run(ctx context.Context, script string, args ...string) (json.RawMessage, error) {
	op := "process.Runner.Run(" + script + ")"

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmdArgs := append([]string{filepath.Join(r.dir, script)}, args...)
	cmd := exec.CommandContext(ctx, r.interpreter, cmdArgs...)
	cmd.WaitDelay = pipeDrainWait

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	var (
		resultR *os.File
		readCh  chan readResult
	)
	if !r.legacySentinel {
		pr, pw, err := os.Pipe()
		if err != nil {
			return nil, e.Wrap(op, err)
		}
		defer pr.Close()

		cmd.ExtraFiles = []*os.File{pw}
		cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%d", ResultFDEnv, resultFD))
		resultR = pr

		if err := cmd.Start(); err != nil {
			_ = pw.Close()
			return nil, e.Upstream(op, err)
		}
		// Родительская копия пишущего конца закрывается, иначе чтение не получит EOF
		_ = pw.Close()

		readCh = make(chan readResult, 1)
		go func() {
			data, err := io.ReadAll(io.LimitReader(resultR, maxResultSize))
			readCh <- readResult{data: data, err: err}
		}()
	} else if err := cmd.Start(); err != nil {
		return nil, e.Upstream(op, err)
	}

	start := time.Now()
	waitErr := cmd.Wait()
	r.logger.Debugf("%s finished in %v, stdout %d bytes", script, time.Since(start), stdout.Len())

	if waitErr != nil {
		if ctx.Err() != nil {
			return nil, e.Upstream(op, fmt.Errorf("timed out: %w", ctx.Err()))
		}
		return nil, e.Upstream(op, fmt.Errorf("%w: %s", waitErr, tail(stderr.String())))
	}

	var raw []byte
	if r.legacySentinel {
		payload, err := ExtractSentinelJSON(stdout.String())
		if err != nil {
			return nil, e.Upstream(op, err)
		}
		raw = payload
	} else {
		var res readResult
		select {
		case res = <-readCh:
		case <-time.After(pipeDrainWait):
			// Канал держит открытым потомок скрипта
			_ = resultR.Close()
			res = <-readCh
		}
		if res.err != nil {
			return nil, e.Upstream(op, fmt.Errorf("%w: read result channel: %v", e.ErrMalformedOutput, res.err))
		}
		raw = res.data
	}

	obj, err := singleObject(raw)
	if err != nil {
		r.logger.Warnf("%s produced no valid result; stderr: %s", script, tail(stderr.String()))
		return nil, e.Upstream(op, err)
	}

	return obj, nil
}

type readResult struct {
	data []byte
	err  error
}

// singleObject проверяет, что data содержит ровно один JSON-объект.
func singleObject(data []byte) (json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	var obj json.RawMessage
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %v", e.ErrMalformedOutput, err)
	}
	if len(obj) == 0 || obj[0] != '{' {
		return nil, fmt.Errorf("%w: result is not a JSON object", e.ErrMalformedOutput)
	}

	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after result object", e.ErrMalformedOutput)
	}

	return obj, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		s = "..." + s[len(s)-stderrTail:]
	}
	return s
}
