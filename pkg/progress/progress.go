// Package progress draws a spinner while a benchmark phase runs.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

var frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const tick = 100 * time.Millisecond

// Spinner redraws "[elapsed] frame message" until finished. On writers that
// are not terminals it prints the message once and the final line.
type Spinner struct {
	w     io.Writer
	tty   bool
	start time.Time

	mu   sync.Mutex
	msg  string
	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	_, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)
	return err == nil
}

// Start begins drawing msg to w.
func Start(w io.Writer, msg string) *Spinner {
	s := &Spinner{
		w:     w,
		tty:   IsTerminal(w),
		start: time.Now(),
		msg:   msg,
		done:  make(chan struct{}),
	}
	if !s.tty {
		fmt.Fprintln(w, msg)
		return s
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Nop returns a spinner that draws nothing.
func Nop() *Spinner {
	return Start(io.Discard, "")
}

func (s *Spinner) run() {
	defer s.wg.Done()
	t := time.NewTicker(tick)
	defer t.Stop()
	for i := 0; ; i++ {
		s.draw(frames[i%len(frames)])
		select {
		case <-s.done:
			return
		case <-t.C:
		}
	}
}

func (s *Spinner) draw(frame string) {
	s.mu.Lock()
	msg := s.msg
	s.mu.Unlock()
	fmt.Fprintf(s.w, "\r\033[2K[%s] %s %s", elapsed(time.Since(s.start)), frame, msg)
}

func elapsed(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	sec := int(d/time.Second) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
}

func (s *Spinner) SetMessage(msg string) {
	s.mu.Lock()
	s.msg = msg
	s.mu.Unlock()
}

func (s *Spinner) stop(final string, clear bool) {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		switch {
		case s.tty && clear:
			fmt.Fprint(s.w, "\r\033[2K")
		case s.tty:
			fmt.Fprintf(s.w, "\r\033[2K[%s] %s\n", elapsed(time.Since(s.start)), final)
		case !clear && final != "":
			fmt.Fprintln(s.w, final)
		}
	})
}

// Finish stops the spinner and leaves its last message.
func (s *Spinner) Finish() {
	s.mu.Lock()
	msg := s.msg
	s.mu.Unlock()
	if !s.tty {
		msg = ""
	}
	s.stop(msg, false)
}

// FinishAndClear stops the spinner and erases its line.
func (s *Spinner) FinishAndClear() { s.stop("", true) }

// FinishWithMessage stops the spinner and prints msg.
func (s *Spinner) FinishWithMessage(msg string) { s.stop(msg, false) }

// AbandonWithMessage stops the spinner on an incomplete phase.
func (s *Spinner) AbandonWithMessage(msg string) { s.stop(msg, false) }
