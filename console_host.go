//go:build !windows

// console_host.go - Raw stdin line reader for the interactive console

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"
)

// ConsoleHost reads raw stdin, assembles edited lines and hands them to
// the script console. Only instantiated in main.go for interactive use,
// never in tests.
type ConsoleHost struct {
	lines        chan string
	stopCh       chan struct{}
	done         chan struct{}
	stopped      sync.Once
	fd           int
	nonblockSet  bool
	oldTermState *term.State
}

func NewConsoleHost() *ConsoleHost {
	return &ConsoleHost{
		lines:  make(chan string),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Lines returns the channel complete input lines arrive on. Ctrl+D on an
// empty line delivers "exit".
func (h *ConsoleHost) Lines() <-chan string {
	return h.lines
}

// Start sets stdin to raw non-blocking mode and begins reading in a
// goroutine. Echo and backspace are handled here since raw mode turns
// the OS line discipline off. Call Stop() to restore stdin.
func (h *ConsoleHost) Start() {
	h.fd = int(os.Stdin.Fd())

	oldState, err := term.MakeRaw(h.fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "console_host: failed to set raw mode: %v\n", err)
		close(h.done)
		return
	}
	h.oldTermState = oldState

	if err := syscall.SetNonblock(h.fd, true); err != nil {
		fmt.Fprintf(os.Stderr, "console_host: failed to set nonblocking stdin: %v\n", err)
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
		close(h.done)
		return
	}
	h.nonblockSet = true

	go func() {
		defer close(h.done)
		buf := make([]byte, 1)
		var line []byte

		for {
			select {
			case <-h.stopCh:
				return
			default:
			}

			n, err := syscall.Read(h.fd, buf)
			if n > 0 {
				if !h.consumeByte(&line, buf[0]) {
					return
				}
			}
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			if err != nil {
				return
			}
			if n == 0 {
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()
}

// consumeByte folds one raw byte into the line buffer. Returns false
// when the reader should exit.
func (h *ConsoleHost) consumeByte(line *[]byte, b byte) bool {
	switch b {
	case '\r', '\n':
		fmt.Print("\r\n")
		return h.deliver(line)
	case 0x7F, 0x08: // DEL or BS
		if len(*line) > 0 {
			*line = (*line)[:len(*line)-1]
			fmt.Print("\b \b")
		}
	case 0x03: // Ctrl+C discards the current line
		fmt.Print("^C\r\n")
		*line = (*line)[:0]
	case 0x04: // Ctrl+D on an empty line exits
		if len(*line) == 0 {
			*line = append(*line, "exit"...)
			fmt.Print("\r\n")
			return h.deliver(line)
		}
	default:
		if b >= 0x20 && b < 0x7F {
			*line = append(*line, b)
			fmt.Printf("%c", b)
		}
	}
	return true
}

func (h *ConsoleHost) deliver(line *[]byte) bool {
	s := string(*line)
	*line = (*line)[:0]
	select {
	case h.lines <- s:
		return true
	case <-h.stopCh:
		return false
	}
}

// Stop terminates the stdin reading goroutine and restores stdin to
// blocking cooked mode.
func (h *ConsoleHost) Stop() {
	h.stopped.Do(func() {
		close(h.stopCh)
	})
	<-h.done
	if h.nonblockSet {
		_ = syscall.SetNonblock(h.fd, false)
		h.nonblockSet = false
	}
	if h.oldTermState != nil {
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
	}
}
