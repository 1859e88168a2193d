package process

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// signalCloseTimeout bounds the graceful close run on SIGTERM / SIGHUP.
const signalCloseTimeout = 5 * time.Second

// signalHub closes live processes when the host receives a termination
// signal. SIGINT kills them; SIGTERM and SIGHUP close them gracefully. Once
// handled, interception stops and the signal is raised again so the host's
// default behavior (or its own handlers) still applies.
type signalHub struct {
	mu       sync.Mutex
	procs    map[*Process]struct{}
	channels map[os.Signal]chan os.Signal
}

var hub = &signalHub{
	procs:    make(map[*Process]struct{}),
	channels: make(map[os.Signal]chan os.Signal),
}

// raise re-delivers a handled signal; tests replace it.
var raise = raiseSignal

func (p *Process) handles(sig os.Signal) bool {
	switch sig {
	case os.Interrupt:
		return p.opts.HandleSIGINT
	case syscall.SIGTERM:
		return p.opts.HandleSIGTERM
	case syscall.SIGHUP:
		return p.opts.HandleSIGHUP
	}
	return false
}

var handledSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}

func (h *signalHub) register(p *Process) {
	h.mu.Lock()
	defer h.mu.Unlock()

	interested := false
	for _, sig := range handledSignals {
		if !p.handles(sig) {
			continue
		}
		interested = true
		if _, ok := h.channels[sig]; !ok {
			ch := make(chan os.Signal, 1)
			signal.Notify(ch, sig)
			h.channels[sig] = ch
			go h.listen(sig, ch)
		}
	}
	if interested {
		h.procs[p] = struct{}{}
	}
}

func (h *signalHub) unregister(p *Process) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.procs[p]; !ok {
		return
	}
	delete(h.procs, p)
	for _, sig := range handledSignals {
		if h.interestedLocked(sig) {
			continue
		}
		if ch, ok := h.channels[sig]; ok {
			signal.Stop(ch)
			close(ch)
			delete(h.channels, sig)
		}
	}
}

func (h *signalHub) interestedLocked(sig os.Signal) bool {
	for p := range h.procs {
		if p.handles(sig) {
			return true
		}
	}
	return false
}

func (h *signalHub) listen(sig os.Signal, ch chan os.Signal) {
	for range ch {
		h.mu.Lock()
		var targets []*Process
		for p := range h.procs {
			if p.handles(sig) {
				targets = append(targets, p)
			}
		}
		if current, ok := h.channels[sig]; ok && current == ch {
			signal.Stop(ch)
			delete(h.channels, sig)
		}
		h.mu.Unlock()

		var wg sync.WaitGroup
		for _, p := range targets {
			wg.Add(1)
			go func(p *Process) {
				defer wg.Done()
				if sig == os.Interrupt {
					_ = p.Kill()
					return
				}
				_ = p.Close(signalCloseTimeout)
			}(p)
		}
		wg.Wait()
		raise(sig)
		return
	}
}
