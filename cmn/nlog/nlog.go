// Package nlog is flowcore's logger: a trimmed, in-idiom port of the
// severity-leveled, package-function logging style used throughout the
// reference corpus. No structured logger is threaded through call sites;
// callers just call nlog.Infof/nlog.Warningln/nlog.Errorf.
/*
 * Copyright (c) 2024, Flowcore authors.
 */
package nlog

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var sevChar = [...]byte{'I', 'W', 'E'}

var (
	mu           sync.Mutex
	out          io.Writer = os.Stderr
	toStderr     bool
	alsoToStderr bool
	title        string
)

// InitFlags registers the two boolean flags the teacher's own logger
// exposes, so a host binary can opt into stderr-only logging the same way.
func InitFlags(flset *flag.FlagSet) {
	flset.BoolVar(&toStderr, "logtostderr", false, "log to standard error instead of the configured writer")
	flset.BoolVar(&alsoToStderr, "alsologtostderr", false, "log to standard error as well as the configured writer")
}

// SetOutput redirects non-stderr log lines (e.g. to a file opened by the host).
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

func SetTitle(s string) { title = s }

func Infof(format string, args ...any)    { log(sevInfo, format, args...) }
func Infoln(args ...any)                  { log(sevInfo, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, format, args...) }
func Warningln(args ...any)               { log(sevWarn, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, format, args...) }
func Errorln(args ...any)                 { log(sevErr, "", args...) }

func log(sev severity, format string, args ...any) {
	line := sprintf(sev, format, args...)

	mu.Lock()
	defer mu.Unlock()
	if toStderr || alsoToStderr || sev >= sevWarn {
		os.Stderr.WriteString(line)
	}
	if !toStderr {
		io.WriteString(out, line)
	}
}

func sprintf(sev severity, format string, args ...any) string {
	var b strings.Builder
	b.WriteByte(sevChar[sev])
	b.WriteByte(' ')
	b.WriteString(time.Now().Format("15:04:05.000000"))
	b.WriteByte(' ')
	if _, fn, ln, ok := runtime.Caller(3); ok {
		if idx := strings.LastIndexByte(fn, filepath.Separator); idx >= 0 {
			fn = fn[idx+1:]
		}
		b.WriteString(fn)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(ln))
		b.WriteByte(' ')
	}
	if format == "" {
		fmt.Fprintln(&b, args...)
	} else {
		fmt.Fprintf(&b, format, args...)
		if !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
